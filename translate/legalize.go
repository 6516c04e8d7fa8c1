package translate

import (
	"pyrite/ir"
	"pyrite/report"
)

// legalize checks the structural contract of every guarded region: control
// enters only through its first block and leaves only to its recorded exit.
// A malformed region means the front end produced bytecode this pipeline
// cannot compile, which is a fatal internal error rather than a user fault.
func (t *Translator) legalize() {
	for _, off := range t.fir.BlockOrder() {
		for _, stmt := range t.fir.Blocks[off].Body {
			if es, ok := stmt.(*ir.EnterScope); ok {
				t.checkRegion(es)
			}
		}
	}
}

func (t *Translator) checkRegion(es *ir.EnterScope) {
	inside := func(b int) bool {
		return b >= es.Begin && b < es.End
	}

	for b := range t.graph.Nodes() {
		if !inside(b) {
			continue
		}

		if t.graph.ExitPoints()[b] {
			report.ReportICE("guarded region [%d..%d) contains function exit %d", es.Begin, es.End, b)
		}

		for succ := range t.graph.Successors(b) {
			if !inside(succ) && succ != es.End {
				report.ReportICE("guarded region [%d..%d) escapes to block %d", es.Begin, es.End, succ)
			}
		}
		for pred := range t.graph.Predecessors(b) {
			if !inside(pred) && b != es.Begin {
				report.ReportICE("guarded region [%d..%d) entered at block %d", es.Begin, es.End, b)
			}
		}
	}
}
