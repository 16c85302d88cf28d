package dag

import (
	"context"
	"fmt"
	"slices"

	"github.com/weftlabs/weft/internal/record"
)

// NodeType distinguishes the three node roles in a transform graph.
type NodeType string

const (
	// NodeSource is the graph root: the record producer.
	NodeSource NodeType = "source"
	// NodeTransform is an interior processing step.
	NodeTransform NodeType = "transform"
	// NodeDestination is a leaf write target.
	NodeDestination NodeType = "destination"
)

// TransformStep is one pure processing step: one input payload in, zero or
// more output payloads out. Zero outputs is a valid filter outcome, not an
// error. A returned error is scoped to the one input record.
type TransformStep interface {
	Name() string
	Apply(ctx context.Context, payload record.Object) ([]record.Object, error)
}

// StepResolver resolves a transform node's configured step to an
// implementation. Resolution happens once, at graph construction.
type StepResolver func(spec NodeSpec) (TransformStep, error)

// NodeSpec declares one node of a graph under construction.
type NodeSpec struct {
	Name string
	Type NodeType
	// Step names the transform implementation; only for NodeTransform.
	Step string
	// Params configures the step instance for this node.
	Params map[string]any
}

// EdgeSpec declares one directed edge From → To.
type EdgeSpec struct {
	From string
	To   string
}

// ValidationError reports a structural problem with a configured graph.
// Jobs carrying an invalid graph are rejected before they reach RUNNING.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Validation error codes.
const (
	ErrCodeNoSource        = "NO_SOURCE"
	ErrCodeMultipleSources = "MULTIPLE_SOURCES"
	ErrCodeUnknownNode     = "UNKNOWN_NODE"
	ErrCodeCycle           = "CYCLE"
	ErrCodeDanglingLeaf    = "DANGLING_LEAF"
	ErrCodeUnreachable     = "UNREACHABLE_NODE"
	ErrCodeBadEdge         = "BAD_EDGE"
	ErrCodeUnknownStep     = "UNKNOWN_STEP"
	ErrCodeDuplicateNode   = "DUPLICATE_NODE"
)

func invalid(code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

type node struct {
	name     string
	typ      NodeType
	step     TransformStep // non-nil iff typ == NodeTransform
	children []string      // stable order: declaration order of edges
}

// Graph is a validated transform DAG: a single source root, transform
// interior nodes, destination leaves. Immutable after Build succeeds.
type Graph struct {
	nodes map[string]*node
	root  string
}

// Build constructs and validates a graph. Construction fails with a
// ValidationError if the graph is not a rooted DAG with destination leaves,
// or if any transform step cannot be resolved.
func Build(nodes []NodeSpec, edges []EdgeSpec, resolve StepResolver) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*node, len(nodes))}

	for _, ns := range nodes {
		if _, dup := g.nodes[ns.Name]; dup {
			return nil, invalid(ErrCodeDuplicateNode, "node %q declared twice", ns.Name)
		}
		n := &node{name: ns.Name, typ: ns.Type}
		switch ns.Type {
		case NodeSource:
			if g.root != "" {
				return nil, invalid(ErrCodeMultipleSources, "source nodes %q and %q; exactly one is required", g.root, ns.Name)
			}
			g.root = ns.Name
		case NodeTransform:
			if resolve == nil {
				return nil, invalid(ErrCodeUnknownStep, "transform node %q but no step resolver supplied", ns.Name)
			}
			step, err := resolve(ns)
			if err != nil {
				return nil, invalid(ErrCodeUnknownStep, "node %q: resolving step %q: %v", ns.Name, ns.Step, err)
			}
			n.step = step
		case NodeDestination:
			// leaf; nothing to resolve
		default:
			return nil, invalid(ErrCodeBadEdge, "node %q has unknown type %q", ns.Name, ns.Type)
		}
		g.nodes[ns.Name] = n
	}

	if g.root == "" {
		return nil, invalid(ErrCodeNoSource, "graph has no source node")
	}

	for _, e := range edges {
		from, ok := g.nodes[e.From]
		if !ok {
			return nil, invalid(ErrCodeUnknownNode, "edge from unknown node %q", e.From)
		}
		to, ok := g.nodes[e.To]
		if !ok {
			return nil, invalid(ErrCodeUnknownNode, "edge to unknown node %q", e.To)
		}
		if from.typ == NodeDestination {
			return nil, invalid(ErrCodeBadEdge, "destination %q cannot have outgoing edges", e.From)
		}
		if to.typ == NodeSource {
			return nil, invalid(ErrCodeBadEdge, "source %q cannot have incoming edges", e.To)
		}
		if slices.Contains(from.children, e.To) {
			return nil, invalid(ErrCodeBadEdge, "duplicate edge %q -> %q", e.From, e.To)
		}
		from.children = append(from.children, e.To)
		_ = to
	}

	if err := g.validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Root returns the source node name.
func (g *Graph) Root() string { return g.root }

// Destinations returns the names of all destination nodes, sorted.
func (g *Graph) Destinations() []string {
	var out []string
	for name, n := range g.nodes {
		if n.typ == NodeDestination {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}
