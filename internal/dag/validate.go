package dag

import (
	"slices"
	"strings"
)

// validate runs the structural checks that Build defers until the whole
// graph is assembled: acyclicity, reachability, and leaf shape. Cycles are a
// hard error here; a routing graph with a cycle can never terminate.
func (g *Graph) validate() error {
	if sccs := g.cycles(); len(sccs) > 0 {
		parts := make([]string, len(sccs))
		for i, scc := range sccs {
			slices.Sort(scc)
			parts[i] = strings.Join(scc, " -> ")
		}
		return invalid(ErrCodeCycle, "graph contains cycles: %s", strings.Join(parts, "; "))
	}

	reachable := make(map[string]bool, len(g.nodes))
	g.walk(g.root, reachable)
	for name := range g.nodes {
		if !reachable[name] {
			return invalid(ErrCodeUnreachable, "node %q is not reachable from source %q", name, g.root)
		}
	}

	for name, n := range g.nodes {
		if len(n.children) == 0 && n.typ != NodeDestination {
			return invalid(ErrCodeDanglingLeaf, "%s node %q has no outgoing edges; every path must end at a destination", n.typ, name)
		}
	}

	return nil
}

func (g *Graph) walk(name string, seen map[string]bool) {
	if seen[name] {
		return
	}
	seen[name] = true
	for _, child := range g.nodes[name].children {
		g.walk(child, seen)
	}
}

// cycles finds strongly connected components with more than one node, plus
// self-loops, using Tarjan's algorithm. A valid graph returns none.
func (g *Graph) cycles() [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(v string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.nodes[v].children {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			if len(scc) > 1 || hasSelfLoop(g.nodes[scc[0]]) {
				sccs = append(sccs, scc)
			}
		}
	}

	// Deterministic traversal order for stable error messages.
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if _, visited := indices[name]; !visited {
			strongConnect(name)
		}
	}

	return sccs
}

func hasSelfLoop(n *node) bool {
	return slices.Contains(n.children, n.name)
}
