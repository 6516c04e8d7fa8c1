package cfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildGraph assembles a processed graph from an edge list.
func buildGraph(t *testing.T, entry int, edges [][2]int) *Graph {
	t.Helper()

	g := NewGraph()
	nodes := map[int]bool{entry: true}
	for _, e := range edges {
		nodes[e[0]] = true
		nodes[e[1]] = true
	}
	for n := range nodes {
		g.AddNode(n)
	}
	for _, e := range edges {
		g.AddEdge(e[0], e[1], 0)
	}
	g.SetEntry(entry)

	require.NoError(t, g.Process())
	return g
}

func TestDominatorsSelfMembership(t *testing.T) {
	g := buildGraph(t, 0, [][2]int{
		{0, 1}, {0, 2}, {1, 3}, {2, 3}, {3, 4},
	})

	doms := g.Dominators()
	for n := range g.Nodes() {
		assert.True(t, doms[n][n], "node %d must dominate itself", n)
	}

	// The diamond's merge is dominated by the entry but by neither arm.
	assert.True(t, doms[3][0])
	assert.False(t, doms[3][1])
	assert.False(t, doms[3][2])
}

func TestDescendants(t *testing.T) {
	g := buildGraph(t, 0, [][2]int{
		{0, 1}, {1, 2}, {2, 1}, {1, 3},
	})

	// The loop body reaches back to the header, so the header is its own
	// descendant; the exit node reaches nothing.
	assert.Equal(t, map[int]bool{1: true, 2: true, 3: true}, g.Descendants(1))
	assert.Equal(t, map[int]bool{1: true, 2: true, 3: true}, g.Descendants(0))
	assert.Empty(t, g.Descendants(3))
}

func TestPostDominatorsReachExits(t *testing.T) {
	g := buildGraph(t, 0, [][2]int{
		{0, 1}, {0, 2}, {1, 3}, {2, 3},
	})

	postDoms := g.PostDominators()
	exits := g.ExitPoints()

	require.Len(t, exits, 1)
	assert.True(t, exits[3])

	// Every node is post-dominated by the sole exit.
	for n := range g.Nodes() {
		assert.True(t, postDoms[n][3], "exit must post-dominate node %d", n)
	}
}

func TestInfiniteLoopPostDominators(t *testing.T) {
	// 0 -> 1 <-> 2 with no exit: the dummy-exit trick must converge and
	// leave no trace in the results.
	g := buildGraph(t, 0, [][2]int{
		{0, 1}, {1, 2}, {2, 1},
	})

	postDoms := g.PostDominators()
	for n := range g.Nodes() {
		for pd := range postDoms[n] {
			assert.GreaterOrEqual(t, pd, 0, "synthetic exit leaked into results")
		}
	}
}

func TestLoopDetection(t *testing.T) {
	// 0 -> 1 -> 2 -> 1, 1 -> 3
	g := buildGraph(t, 0, [][2]int{
		{0, 1}, {1, 2}, {2, 1}, {1, 3},
	})

	loops := g.Loops()
	require.Len(t, loops, 1)

	loop := loops[1]
	require.NotNil(t, loop)
	assert.Equal(t, map[int]bool{1: true, 2: true}, loop.Body)
	assert.Equal(t, map[int]bool{0: true}, loop.Entries)
	assert.Equal(t, map[int]bool{3: true}, loop.Exits)
}

func TestNestedLoopOrder(t *testing.T) {
	// Outer loop 1..4 with inner loop 2..3.
	g := buildGraph(t, 0, [][2]int{
		{0, 1}, {1, 2}, {2, 3}, {3, 2}, {3, 4}, {4, 1}, {1, 5},
	})

	require.Len(t, g.Loops(), 2)
	assert.True(t, g.Loops()[1].Body[2], "outer loop contains the inner header")

	// Membership queries answer innermost first.
	assert.Equal(t, []int{2, 1}, g.InLoops(3))
	assert.Equal(t, []int{1}, g.InLoops(4))
}

func TestBackEdgeMergingSharedHeader(t *testing.T) {
	// Two back edges into header 1 (from 3 and 4) fold into one loop, not
	// two.
	g := buildGraph(t, 0, [][2]int{
		{0, 1}, {1, 2}, {2, 3}, {2, 4}, {3, 1}, {4, 1}, {1, 5},
	})

	assert.Len(t, g.BackEdges(), 2)

	loops := g.Loops()
	require.Len(t, loops, 1)
	assert.Equal(t, map[int]bool{1: true, 2: true, 3: true, 4: true}, loops[1].Body)
}

func TestTwoBackEdgesFromOneNodeRejected(t *testing.T) {
	// A node whose successors are two of its own dominators is malformed.
	g := NewGraph()
	for n := 0; n <= 2; n++ {
		g.AddNode(n)
	}
	g.AddEdge(0, 1, 0)
	g.AddEdge(1, 2, 0)
	g.AddEdge(2, 1, 0)
	g.AddEdge(2, 0, 0)
	g.SetEntry(0)

	assert.Error(t, g.Process())
}

func TestBackbone(t *testing.T) {
	// 0 -> 1(loop: 1,2) -> 3 -> 4: backbone is the straight-line part.
	g := buildGraph(t, 0, [][2]int{
		{0, 1}, {1, 2}, {2, 1}, {1, 3}, {3, 4},
	})

	backbone := g.Backbone()
	assert.False(t, backbone[1])
	assert.False(t, backbone[2])
	assert.True(t, backbone[3])
	assert.True(t, backbone[4])
}

func TestDeadNodeElimination(t *testing.T) {
	g := NewGraph()
	for n := 0; n <= 3; n++ {
		g.AddNode(n)
	}
	g.AddEdge(0, 1, 0)
	g.AddEdge(2, 3, 0) // unreachable island
	g.SetEntry(0)

	require.NoError(t, g.Process())
	assert.True(t, g.DeadNodes()[2])
	assert.True(t, g.DeadNodes()[3])
	assert.False(t, g.Nodes()[2])
}
