package alloc

import "github.com/coretrace/coretrace/internal/ir"

// Finding is one allocation site's escape-analysis result within a
// single function, per spec.md §4.2.
type Finding struct {
	Instr       *ir.Instruction
	Op          Op
	Unreachable bool // "effectively_unused": use the _unreachable interceptor + immediate autofree
	State       EscapeState
}

// Analyze runs the whole-function escape analysis over every allocator
// call in fn. posix_memalign is excluded: its result is written through
// an out-parameter rather than returned in an SSA register, so this
// register-based use-walker cannot track it; Pass.Alloc still replaces
// its call site (see Run), it just never marks it unreachable or
// inserts a return-site autofree for it.
func Analyze(fn *ir.Function) []*Finding {
	var findings []*Finding
	for _, block := range fn.Blocks {
		for _, instr := range block.Instructions {
			if instr.Kind != ir.Call && instr.Kind != ir.Invoke {
				continue
			}
			op := ClassifyCallee(instr.Callee)
			if !op.IsAllocator() || op == OpPosixMemalign || instr.Result == "" {
				continue
			}
			uses := collectUses(fn, instr)
			findings = append(findings, &Finding{
				Instr:       instr,
				Op:          op,
				Unreachable: isEffectivelyUnused(uses),
				State:       classify(uses),
			})
		}
	}
	return findings
}
