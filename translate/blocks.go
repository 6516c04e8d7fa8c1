package translate

import (
	"sort"

	"pyrite/bytecode"
	"pyrite/cfg"
	"pyrite/report"
)

// blockRange is one scanned basic block: the half-open instruction range
// [Start, End).
type blockRange struct {
	Start, End int
}

// scanBlocks splits the instruction stream into basic blocks.  A block starts
// at offset 0, at every jump target, after every jump or terminator, and at
// every structured-region boundary.
func scanBlocks(fn *bytecode.Function) map[int]blockRange {
	starts := fn.Labels()
	for _, inst := range fn.Code {
		switch {
		case inst.Op.IsJump():
			starts[inst.Next()] = true
		case inst.Op.IsTerminator():
			starts[inst.Next()] = true
		}

		switch inst.Op {
		case bytecode.SetupLoop:
			starts[inst.Offset] = true
			starts[inst.Arg] = true
		case bytecode.SetupWith:
			starts[inst.Next()] = true
			starts[inst.Arg] = true
		case bytecode.ForIter:
			starts[inst.Offset] = true
		}
	}

	order := make([]int, 0, len(starts))
	for off := range starts {
		if off < len(fn.Code) {
			order = append(order, off)
		}
	}
	sort.Ints(order)

	blocks := make(map[int]blockRange, len(order))
	for i, start := range order {
		end := len(fn.Code)
		if i+1 < len(order) {
			end = order[i+1]
		}

		blocks[start] = blockRange{Start: start, End: end}
	}

	return blocks
}

// buildGraph wires the scanned blocks into a control flow graph.  Edge data
// is the number of stack values discarded by taking the edge.
func buildGraph(fn *bytecode.Function, blocks map[int]blockRange) *cfg.Graph {
	g := cfg.NewGraph()
	for start := range blocks {
		g.AddNode(start)
	}

	for start, br := range blocks {
		last := fn.InstAt(br.End - 1)
		switch last.Op {
		case bytecode.Return, bytecode.Raise:
			// Exit blocks have no successors.
		case bytecode.Jump, bytecode.BreakLoop:
			g.AddEdge(start, last.Arg, 0)
		case bytecode.JumpIfTrue, bytecode.JumpIfFalse:
			g.AddEdge(start, last.Arg, 0)
			g.AddEdge(start, last.Next(), 0)
		case bytecode.JumpIfTrueOrPop, bytecode.JumpIfFalseOrPop:
			// The operand survives the jump but is popped on fallthrough.
			g.AddEdge(start, last.Arg, 0)
			g.AddEdge(start, last.Next(), 1)
		case bytecode.ForIter:
			// The loop body sees the iterator plus the yielded value; the exit
			// edge discards both.
			g.AddEdge(start, last.Next(), 0)
			g.AddEdge(start, last.Arg, 2)
		default:
			if br.End < len(fn.Code) {
				g.AddEdge(start, br.End, 0)
			}
		}
	}

	g.SetEntry(0)
	return g
}

// stackEffect returns the net change in operand stack depth caused by one
// instruction on its fallthrough path.
func stackEffect(inst bytecode.Instruction) int {
	switch inst.Op {
	case bytecode.LoadConst, bytecode.LoadLocal, bytecode.LoadGlobal,
		bytecode.LoadFree, bytecode.DupTop:
		return 1
	case bytecode.StoreLocal, bytecode.PopTop, bytecode.BinOp,
		bytecode.InplaceOp, bytecode.Compare, bytecode.GetItem,
		bytecode.JumpIfTrue, bytecode.JumpIfFalse, bytecode.SetupWith,
		bytecode.Return, bytecode.Raise:
		return -1
	case bytecode.SetItem:
		return -3
	case bytecode.DelItem:
		return -2
	case bytecode.BuildTuple, bytecode.BuildList:
		return 1 - inst.Arg
	case bytecode.BuildMap:
		return 1 - 2*inst.Arg
	case bytecode.Call:
		return -inst.Arg
	case bytecode.ForIter:
		return 1
	default:
		return 0
	}
}

// computeDepths propagates operand stack depths from the entry block across
// every live edge.  A block reachable at two different depths is malformed
// input: the stack model requires one fixed live-in depth per block.
func computeDepths(fn *bytecode.Function, blocks map[int]blockRange, g *cfg.Graph) map[int]int {
	depths := map[int]int{g.Entry(): 0}
	work := []int{g.Entry()}

	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]

		d := depths[b]
		br := blocks[b]
		for i := br.Start; i < br.End; i++ {
			d += stackEffect(fn.Code[i])
			if d < 0 {
				report.ReportICE("operand stack underflow at %s+%d", fn.Name, i)
			}
		}

		for succ, pops := range g.Successors(b) {
			in := d - pops
			if in < 0 {
				report.ReportICE("edge %d -> %d pops below an empty stack", b, succ)
			}

			if prev, ok := depths[succ]; ok {
				if prev != in {
					report.ReportICE("block %d entered at stack depths %d and %d", succ, prev, in)
				}
				continue
			}

			depths[succ] = in
			work = append(work, succ)
		}
	}

	return depths
}

// renameBlocks computes the blocks where a store versions its target instead
// of mutating the existing binding: the graph backbone minus every guarded
// with region.
func renameBlocks(fn *bytecode.Function, g *cfg.Graph) map[int]bool {
	backbone := g.Backbone()
	for _, inst := range fn.Code {
		if inst.Op != bytecode.SetupWith {
			continue
		}

		for b := range backbone {
			if b >= inst.Next() && b < inst.Arg {
				delete(backbone, b)
			}
		}
	}

	return backbone
}
