package cfg

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// dummyExit is the synthetic exit node linked to infinite loops so the
// post-dominator fixed point still converges.  It never appears in results.
const dummyExit = -1

// Edge is a directed edge between two nodes.
type Edge struct {
	Src, Dst int
}

// Loop describes one natural loop of the graph.
type Loop struct {
	// Header is the destination block of the loop's back edge(s).
	Header int

	// Body is the set of nodes in the loop, including the header.
	Body map[int]bool

	// Entries are the nodes outside the loop with an edge into it.
	Entries map[int]bool

	// Exits are the nodes outside the loop with an edge from it.
	Exits map[int]bool
}

// Graph is a generic control flow graph.  Nodes are arbitrary integer keys
// (block offsets in practice); the graph knows nothing about bytecode
// semantics.  Populate it with AddNode/AddEdge/SetEntry, then call Process to
// compute the derived properties.
type Graph struct {
	nodes    map[int]bool
	preds    map[int]map[int]bool
	succs    map[int]map[int]bool
	edgeData map[Edge]int

	entry    int
	hasEntry bool

	// Derived by Process.
	deadNodes  map[int]bool
	exitPoints map[int]bool
	doms       map[int]map[int]bool
	postDoms   map[int]map[int]bool
	backEdges  map[Edge]bool
	loops      map[int]*Loop
	inLoops    map[int][]int
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:    make(map[int]bool),
		preds:    make(map[int]map[int]bool),
		succs:    make(map[int]map[int]bool),
		edgeData: make(map[Edge]int),
	}
}

// AddNode adds a node to the graph.  This is necessary before adding any
// edges from/to the node.
func (g *Graph) AddNode(node int) {
	g.nodes[node] = true
}

// AddEdge adds an edge from src to dst carrying data (the number of stack
// pops implied by taking the edge).  If such an edge already exists it is
// replaced: duplicate edges are not possible.
func (g *Graph) AddEdge(src, dst, data int) {
	if !g.nodes[src] || !g.nodes[dst] {
		panic(fmt.Sprintf("edge %d -> %d references an unregistered node", src, dst))
	}

	g.addEdge(src, dst, data)
}

// addEdge is the internal version of AddEdge: it allows edges to/from
// unregistered (ghost) nodes such as the dummy exit.
func (g *Graph) addEdge(src, dst, data int) {
	if g.preds[dst] == nil {
		g.preds[dst] = make(map[int]bool)
	}
	if g.succs[src] == nil {
		g.succs[src] = make(map[int]bool)
	}

	g.preds[dst][src] = true
	g.succs[src][dst] = true
	g.edgeData[Edge{src, dst}] = data
}

// removeNodeEdges removes every edge incident to node.
func (g *Graph) removeNodeEdges(node int) {
	for succ := range g.succs[node] {
		delete(g.preds[succ], node)
		delete(g.edgeData, Edge{node, succ})
	}
	delete(g.succs, node)

	for pred := range g.preds[node] {
		delete(g.succs[pred], node)
		delete(g.edgeData, Edge{pred, node})
	}
	delete(g.preds, node)
}

// SetEntry sets the entry point of the graph.
func (g *Graph) SetEntry(node int) {
	if !g.nodes[node] {
		panic(fmt.Sprintf("entry node %d is not registered", node))
	}

	g.entry = node
	g.hasEntry = true
}

// Entry returns the graph's entry node.
func (g *Graph) Entry() int {
	return g.entry
}

// Successors returns the successor set of src with per-edge data.
func (g *Graph) Successors(src int) map[int]int {
	out := make(map[int]int, len(g.succs[src]))
	for dst := range g.succs[src] {
		out[dst] = g.edgeData[Edge{src, dst}]
	}

	return out
}

// Predecessors returns the predecessor set of dst with per-edge data.
func (g *Graph) Predecessors(dst int) map[int]int {
	out := make(map[int]int, len(g.preds[dst]))
	for src := range g.preds[dst] {
		out[src] = g.edgeData[Edge{src, dst}]
	}

	return out
}

// -----------------------------------------------------------------------------

// Process computes the derived properties of the graph.  The graph must have
// been fully populated and its entry point specified.
func (g *Graph) Process() error {
	if !g.hasEntry {
		return errors.New("cfg: no entry point defined")
	}

	g.eliminateDeadNodes()
	g.findExitPoints()

	var err error
	if g.doms, err = g.findDominators(false); err != nil {
		return err
	}
	if err := g.findBackEdges(); err != nil {
		return err
	}
	g.findLoops()
	return g.findPostDominators()
}

// eliminateDeadNodes prunes all nodes unreachable from the entry point along
// with their edges, stashing them into the dead-node set.
func (g *Graph) eliminateDeadNodes() {
	live := make(map[int]bool)
	g.dfs(func(n int) { live[n] = true })

	g.deadNodes = make(map[int]bool)
	for n := range g.nodes {
		if !live[n] {
			g.deadNodes[n] = true
		}
	}

	g.nodes = live
	for dead := range g.deadNodes {
		g.removeNodeEdges(dead)
	}
}

// dfs walks the graph depth first from the entry point.
func (g *Graph) dfs(visit func(int)) {
	seen := make(map[int]bool)
	stack := []int{g.entry}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !seen[n] {
			seen[n] = true
			visit(n)

			for succ := range g.succs[n] {
				stack = append(stack, succ)
			}
		}
	}
}

// findExitPoints computes the set of nodes with no successors.
func (g *Graph) findExitPoints() {
	g.exitPoints = make(map[int]bool)
	for n := range g.nodes {
		if len(g.succs[n]) == 0 {
			g.exitPoints[n] = true
		}
	}
}

// findDominators runs the iterative worklist fixed point:
//
//	doms(n) = {n} ∪ ⋂ doms(pred) for pred in preds(n)
//
// seeded so each entry dominates only itself.  With post set, the same
// algorithm runs on the reversed graph seeded from the exit points, yielding
// post-dominators.
func (g *Graph) findDominators(post bool) (map[int]map[int]bool, error) {
	var entries map[int]bool
	var predsTable, succsTable map[int]map[int]bool

	if post {
		entries = g.exitPoints
		predsTable, succsTable = g.succs, g.preds
	} else {
		entries = map[int]bool{g.entry: true}
		predsTable, succsTable = g.preds, g.succs
	}

	if len(entries) == 0 {
		return nil, errors.New("cfg: no entry points: dominator algorithm cannot be seeded")
	}

	doms := make(map[int]map[int]bool)
	for e := range entries {
		doms[e] = map[int]bool{e: true}
	}

	var todo []int
	for n := range g.nodes {
		if !entries[n] {
			all := make(map[int]bool, len(g.nodes))
			for m := range g.nodes {
				all[m] = true
			}
			if post {
				all[dummyExit] = true
			}
			doms[n] = all
			todo = append(todo, n)
		}
	}
	for len(todo) > 0 {
		n := todo[len(todo)-1]
		todo = todo[:len(todo)-1]

		if entries[n] {
			continue
		}

		newDoms := map[int]bool{n: true}
		first := true
		for p := range predsTable[n] {
			pd, ok := doms[p]
			if !ok {
				continue
			}
			if first {
				for d := range pd {
					newDoms[d] = true
				}
				newDoms[n] = true
				first = false
			} else {
				for d := range newDoms {
					if d != n && !pd[d] {
						delete(newDoms, d)
					}
				}
			}
		}

		if !setsEqual(newDoms, doms[n]) {
			// Dominator sets only ever shrink during the fixed point.
			if len(newDoms) >= len(doms[n]) {
				return nil, fmt.Errorf("cfg: dominator set for %d grew during iteration", n)
			}
			doms[n] = newDoms
			for s := range succsTable[n] {
				todo = append(todo, s)
			}
		}
	}

	return doms, nil
}

// findBackEdges finds all back edges.  An edge (src, dst) is a back edge iff
// dst dominates src.  At most one back edge may leave a given node.
func (g *Graph) findBackEdges() error {
	g.backEdges = make(map[Edge]bool)
	for src, succs := range g.succs {
		count := 0
		for dst := range succs {
			if g.doms[src][dst] {
				g.backEdges[Edge{src, dst}] = true
				count++
			}
		}
		if count > 1 {
			return fmt.Errorf("cfg: node %d has %d back edges", src, count)
		}
	}

	return nil
}

// findLoops builds the loop table from the back edges.  Multiple back edges
// sharing a header merge into a single loop.
func (g *Graph) findLoops() {
	// Build up each loop body from its back edge source(s): everything
	// reachable backward from the source without passing the header again.
	bodies := make(map[int]map[int]bool)
	for edge := range g.backEdges {
		header := edge.Dst

		body := bodies[header]
		if body == nil {
			body = map[int]bool{header: true}
			bodies[header] = body
		}

		queue := []int{edge.Src}
		for len(queue) > 0 {
			n := queue[len(queue)-1]
			queue = queue[:len(queue)-1]

			if !body[n] {
				body[n] = true
				for p := range g.preds[n] {
					queue = append(queue, p)
				}
			}
		}
	}

	g.loops = make(map[int]*Loop)
	for header, body := range bodies {
		loop := &Loop{
			Header:  header,
			Body:    body,
			Entries: make(map[int]bool),
			Exits:   make(map[int]bool),
		}

		for n := range body {
			for p := range g.preds[n] {
				if !body[p] {
					loop.Entries[p] = true
				}
			}
			for s := range g.succs[n] {
				if !body[s] {
					loop.Exits[s] = true
				}
			}
		}

		g.loops[header] = loop
	}

	// Register membership largest-body-first so that in-loop queries return
	// the innermost loop first.
	headers := make([]int, 0, len(g.loops))
	for h := range g.loops {
		headers = append(headers, h)
	}
	sort.Slice(headers, func(i, j int) bool {
		li, lj := g.loops[headers[i]], g.loops[headers[j]]
		if len(li.Body) != len(lj.Body) {
			return len(li.Body) > len(lj.Body)
		}
		return headers[i] < headers[j]
	})

	g.inLoops = make(map[int][]int)
	for _, h := range headers {
		for n := range g.loops[h].Body {
			g.inLoops[n] = append([]int{h}, g.inLoops[n]...)
		}
	}
}

// findPostDominators computes post-dominators on the reversed graph.  Members
// of infinite loops are linked to a synthetic dummy exit first so the fixed
// point converges; all traces of the dummy exit are scrubbed afterwards.
func (g *Graph) findPostDominators() error {
	g.exitPoints[dummyExit] = true
	for _, loop := range g.loops {
		if len(loop.Exits) == 0 {
			for b := range loop.Body {
				g.addEdge(b, dummyExit, 0)
			}
		}
	}

	postDoms, err := g.findDominators(true)
	if err != nil {
		return err
	}

	delete(postDoms, dummyExit)
	for _, pd := range postDoms {
		delete(pd, dummyExit)
	}
	g.removeNodeEdges(dummyExit)
	delete(g.exitPoints, dummyExit)

	g.postDoms = postDoms
	return nil
}

func setsEqual(a, b map[int]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}

	return true
}

// -----------------------------------------------------------------------------

// Dominators returns {node -> set of nodes dominating it}.  A node D
// dominates a node N when every path leading to N passes through D.
func (g *Graph) Dominators() map[int]map[int]bool {
	return g.doms
}

// PostDominators returns {node -> set of nodes post-dominating it}.  A node P
// post-dominates a node N when every path from N to an exit passes through P.
func (g *Graph) PostDominators() map[int]map[int]bool {
	return g.postDoms
}

// ExitPoints returns the computed set of exit nodes (may be empty).
func (g *Graph) ExitPoints() map[int]bool {
	return g.exitPoints
}

// BackEdges returns the computed set of back edges.
func (g *Graph) BackEdges() map[Edge]bool {
	return g.backEdges
}

// Loops returns {loop header -> Loop}.
func (g *Graph) Loops() map[int]*Loop {
	return g.loops
}

// InLoops returns the headers of the loops the node belongs to, innermost
// first.
func (g *Graph) InLoops(node int) []int {
	return g.inLoops[node]
}

// DeadNodes returns the set of nodes eliminated from the graph.
func (g *Graph) DeadNodes() map[int]bool {
	return g.deadNodes
}

// Nodes returns the set of live nodes.
func (g *Graph) Nodes() map[int]bool {
	return g.nodes
}

// Descendants returns every node reachable from the given node, excluding the
// node itself unless a cycle leads back to it.
func (g *Graph) Descendants(node int) map[int]bool {
	out := make(map[int]bool)
	stack := []int{}
	for succ := range g.succs[node] {
		stack = append(stack, succ)
	}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !out[n] {
			out[n] = true
			for succ := range g.succs[n] {
				stack = append(stack, succ)
			}
		}
	}

	return out
}

// Backbone returns the post-dominators of the entry point minus every
// loop-body node: the straight-line part of the graph where simple variable
// redefinition (rather than phi merging) is safe.  This boundary is a
// contract: alternate definitions silently change which reads observe stale
// values.
func (g *Graph) Backbone() map[int]bool {
	backbone := make(map[int]bool)
	for n := range g.postDoms[g.entry] {
		backbone[n] = true
	}

	for _, loop := range g.loops {
		for n := range loop.Body {
			delete(backbone, n)
		}
	}

	return backbone
}

// Dump returns a debug listing of the processed graph.
func (g *Graph) Dump() string {
	sb := strings.Builder{}

	writeSet := func(name string, set map[int]bool) {
		keys := make([]int, 0, len(set))
		for k := range set {
			keys = append(keys, k)
		}
		sort.Ints(keys)
		fmt.Fprintf(&sb, "%s: %v\n", name, keys)
	}

	writeSet("nodes", g.nodes)
	writeSet("exits", g.exitPoints)
	for h, loop := range g.loops {
		writeSet(fmt.Sprintf("loop %d", h), loop.Body)
	}

	return sb.String()
}
