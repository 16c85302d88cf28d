// Package dag builds and routes the per-job transform graph.
//
// A graph has exactly one source root, transform interior nodes, and
// destination leaves. It is built once per job from configuration and
// validated eagerly: cycles, unreachable nodes, and non-destination leaves
// all fail construction, so an invalid graph never reaches a running job.
//
// Routing applies transform steps along every path from the root. A node
// whose children include destinations emits one RoutedRecord targeting all
// of them; fan-out to sibling transforms clones the payload per branch. A
// failing step kills only its own branch — the failure is reported through a
// caller-supplied callback and the remaining branches complete normally.
package dag
