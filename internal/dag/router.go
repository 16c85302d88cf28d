package dag

import (
	"context"
	"fmt"

	"github.com/weftlabs/weft/internal/record"
)

// BranchErrorFunc is the side channel for per-branch transform failures.
// Route never returns an error for a single failed branch: the failure is
// reported here and sibling branches continue unaffected.
type BranchErrorFunc func(nodeName string, lineage string, err error)

// TransformError wraps a step failure with the node where it occurred.
// Scoped to one input record on one branch.
type TransformError struct {
	Node    string
	Lineage string
	Err     error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %q failed for %s: %v", e.Node, e.Lineage, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// Router routes source records through a validated graph.
type Router struct {
	graph *Graph
}

// NewRouter creates a router over a validated graph.
func NewRouter(g *Graph) *Router {
	return &Router{graph: g}
}

// Route runs one SourceRecord through the graph and returns the resulting
// RoutedRecords, each tagged with the destinations it must be written to.
//
// Fan-out clones the payload per branch so sibling transforms cannot observe
// each other's mutations; every output shares the record's lineage ID. A
// record the graph filters down to nothing returns an empty slice with no
// branch errors: skipped by design, not by failure.
func (r *Router) Route(ctx context.Context, rec record.SourceRecord, onErr BranchErrorFunc) []record.RoutedRecord {
	if onErr == nil {
		onErr = func(string, string, error) {}
	}

	var routed []record.RoutedRecord
	root := r.graph.nodes[r.graph.root]
	r.descend(ctx, root, rec, rec.Payload, &routed, onErr)
	return routed
}

// descend forwards payload from node to its children. Destination children
// of one node are grouped into a single RoutedRecord carrying all of them as
// targets; each transform child continues the walk with its own clone.
func (r *Router) descend(
	ctx context.Context,
	n *node,
	rec record.SourceRecord,
	payload record.Object,
	routed *[]record.RoutedRecord,
	onErr BranchErrorFunc,
) {
	var destinations []string
	var transforms []*node
	for _, childName := range n.children {
		child := r.graph.nodes[childName]
		if child.typ == NodeDestination {
			destinations = append(destinations, childName)
		} else {
			transforms = append(transforms, child)
		}
	}

	if len(destinations) > 0 {
		*routed = append(*routed, record.RoutedRecord{
			Lineage:   rec.LineageID(),
			SourceID:  rec.SourceID,
			NaturalID: rec.NaturalID,
			Payload:   payload,
			Targets:   destinations,
		})
	}

	for i, child := range transforms {
		in := payload
		// Clone when this payload also went to a destination or to a
		// sibling transform; the last branch may take the original.
		if len(destinations) > 0 || i < len(transforms)-1 {
			in = payload.Clone()
		}

		outputs, err := child.step.Apply(ctx, in)
		if err != nil {
			onErr(child.name, rec.LineageID(), &TransformError{
				Node:    child.name,
				Lineage: rec.LineageID(),
				Err:     err,
			})
			continue
		}

		// Steps return fresh payloads (pure function contract), so
		// outputs are forwarded without another clone.
		for _, out := range outputs {
			r.descend(ctx, child, rec, out, routed, onErr)
		}
	}
}
