package plan

import (
	"fmt"

	"github.com/oakmere/addrmatch/internal/stage"
)

// edge records one producer → consumer dependency with the reference that
// created it, so failures can name the exact placeholder.
type edge struct {
	from, to int
	fragment string
	ref      string
}

// resolution is the output of Resolve: a valid execution order over the
// pipeline's stages.
type resolution struct {
	p *Pipeline

	// order holds declared stage indices in execution order.
	order []int
}

// Resolve validates every placeholder in the pipeline and computes a total
// execution order over stages.
//
// The graph's nodes are (stage, fragment) pairs; intra-stage references are
// valid only backwards within the fragment sequence, so per-stage ordering
// is fixed by declaration and only stage-level edges need sorting. The sort
// is Kahn's algorithm with the caller's declared stage order as the
// tie-break key: independent stages are never reordered.
func Resolve(p *Pipeline) (*resolution, error) {
	bindings := make(map[string]bool, len(p.Inputs))
	for _, in := range p.Inputs {
		bindings[in.Name] = true
	}
	outputs := make(map[string]int, len(p.Stages)) // visible output → stage index
	for i, s := range p.Stages {
		outputs[s.Output] = i
	}

	res := &resolution{p: p}

	var edges []edge
	adj := make([][]int, len(p.Stages))
	indegree := make([]int, len(p.Stages))
	seenEdge := make(map[[2]int]bool)

	addEdge := func(e edge) {
		key := [2]int{e.from, e.to}
		if e.from == e.to || seenEdge[key] {
			return
		}
		seenEdge[key] = true
		edges = append(edges, e)
		adj[e.from] = append(adj[e.from], e.to)
		indegree[e.to]++
	}

	for i, s := range p.Stages {
		local := make(map[string]int, len(s.Fragments)) // fragment name → position
		for j, f := range s.Fragments {
			for _, ref := range f.Refs() {
				switch {
				case ref == stage.InputPlaceholder:
					if i > 0 {
						addEdge(edge{from: i - 1, to: i, fragment: f.Name, ref: ref})
					}
				case hasEarlier(local, ref, j):
					// Intra-stage backward reference; per-stage order is
					// fixed by declaration, nothing to sort.
				default:
					if _, later := laterFragment(s, ref, j); later {
						return nil, unresolvedErr(s.Name, f.Name, ref,
							fmt.Sprintf("fragment %q is referenced before it is defined", ref))
					}
					if producerIdx, ok := outputs[ref]; ok {
						addEdge(edge{from: producerIdx, to: i, fragment: f.Name, ref: ref})
					} else if bindings[ref] {
						// External input; no ordering constraint.
					} else {
						return nil, unresolvedErr(s.Name, f.Name, ref,
							fmt.Sprintf("reference %q names no fragment, stage output or input binding in this pipeline", ref))
					}
				}
			}
			local[f.Name] = j
		}
	}

	// Kahn's algorithm; the ready set is scanned for the smallest declared
	// index so ties preserve caller order.
	order := make([]int, 0, len(p.Stages))
	done := make([]bool, len(p.Stages))
	remaining := len(p.Stages)
	for remaining > 0 {
		next := -1
		for i := range p.Stages {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next == -1 {
			return nil, cycleError(p, adj, edges)
		}
		done[next] = true
		remaining--
		order = append(order, next)
		for _, to := range adj[next] {
			indegree[to]--
		}
	}
	res.order = order
	return res, nil
}

func hasEarlier(local map[string]int, ref string, pos int) bool {
	p, ok := local[ref]
	return ok && p < pos
}

func laterFragment(s stage.Stage, ref string, from int) (int, bool) {
	for j := from; j < len(s.Fragments); j++ {
		if s.Fragments[j].Name == ref {
			return j, true
		}
	}
	return 0, false
}

// cycleError reconstructs a concrete cycle to report. Kahn's algorithm only
// proves a cycle exists; Tarjan's SCC decomposition recovers its members so
// the error can name the stages and a fragment on the cycle.
func cycleError(p *Pipeline, adj [][]int, edges []edge) *Error {
	sccs := tarjanSCC(len(p.Stages), adj)
	for _, scc := range sccs {
		if len(scc) < 2 && !selfLoop(scc, adj) {
			continue
		}
		path := cyclePath(scc, adj)
		names := make([]string, len(path))
		for i, idx := range path {
			names[i] = p.Stages[idx].Name
		}
		// Name one reference on the cycle for localization.
		onCycle := make(map[int]bool, len(scc))
		for _, idx := range scc {
			onCycle[idx] = true
		}
		e := &Error{
			Code:    CodeCyclicDependency,
			Path:    names,
			Message: "pipeline reference graph has no topological order",
		}
		for _, ed := range edges {
			if onCycle[ed.from] && onCycle[ed.to] {
				e.Stage = p.Stages[ed.to].Name
				e.Fragment = ed.fragment
				e.Ref = ed.ref
				break
			}
		}
		return e
	}
	// Unreachable: Kahn failed, so some SCC must be cyclic.
	return &Error{Code: CodeCyclicDependency, Message: "pipeline reference graph has no topological order"}
}

func selfLoop(scc []int, adj [][]int) bool {
	if len(scc) != 1 {
		return false
	}
	for _, to := range adj[scc[0]] {
		if to == scc[0] {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components over integer nodes.
func tarjanSCC(n int, adj [][]int) [][]int {
	const unvisited = -1
	var (
		counter = 0
		stack   []int
		index   = make([]int, n)
		lowlink = make([]int, n)
		onStack = make([]bool, n)
		sccs    [][]int
	)
	for i := range index {
		index[i] = unvisited
	}

	var strongConnect func(int)
	strongConnect = func(v int) {
		index[v] = counter
		lowlink[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if index[w] == unvisited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], index[w])
			}
		}

		if lowlink[v] == index[v] {
			var scc []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for v := 0; v < n; v++ {
		if index[v] == unvisited {
			strongConnect(v)
		}
	}
	return sccs
}

// cyclePath walks edges inside an SCC from its first member back to itself.
func cyclePath(scc []int, adj [][]int) []int {
	member := make(map[int]bool, len(scc))
	for _, v := range scc {
		member[v] = true
	}

	start := scc[0]
	path := []int{start}
	visited := map[int]bool{}
	current := start
	for {
		visited[current] = true
		next := -1
		for _, w := range adj[current] {
			if member[w] && (!visited[w] || w == start) {
				next = w
				break
			}
		}
		if next == -1 {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
