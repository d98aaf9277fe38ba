// Package alloc implements Pass.Alloc: replacing malloc/calloc/realloc/
// aligned_alloc/posix_memalign/mmap/munmap/sbrk/brk and the Itanium
// operator new/delete family with their `__ct_*` runtime symbols, and
// inserting the autofree calls the escape analysis in escape.go and
// analyze.go decides a call site needs (spec.md §4.2). returning.go
// extends this to calls whose callee isn't a known allocator symbol at
// all but is itself a "returning allocator" — a locally defined function
// whose own returns all resolve to one allocator kind.
package alloc

import (
	"github.com/coretrace/coretrace/internal/ir"
	"github.com/coretrace/coretrace/internal/passes/common"
)

// Stats summarizes one Run for driver-side logging.
type Stats struct {
	Replaced    int
	Unreachable int
	Autofreed   int
}

// Run implements Pass.Alloc over an entire module. interner and pool
// are shared with the other passes so sites and string globals already
// created by Pass.Bounds/Pass.Trace/Pass.Vtable are reused rather than
// duplicated.
func Run(m *ir.Module, interner *common.SiteInterner, pool *common.SitePool) Stats {
	idx := common.BuildMetadataIndex(m)
	var stats Stats
	retAllocs := returningAllocators(m)

	for _, fn := range m.Functions {
		if !common.ShouldInstrument(fn, "") {
			continue
		}

		findings := Analyze(fn)
		byInstr := make(map[*ir.Instruction]*Finding, len(findings))
		for _, f := range findings {
			byInstr[f.Instr] = f
		}

		for _, block := range fn.Blocks {
			// Range over a snapshot: insertImmediateAutofree/
			// insertReturnSiteAutofree mutate block.Instructions and
			// fn.Blocks respectively while this loop is in flight.
			instrs := append([]*ir.Instruction(nil), block.Instructions...)
			for _, instr := range instrs {
				if instr.Kind != ir.Call && instr.Kind != ir.Invoke {
					continue
				}
				op := ClassifyCallee(instr.Callee)
				if op == OpNone {
					// Not a known libc/Itanium allocator symbol directly,
					// but it may call a locally defined returning
					// allocator (spec.md §4.2): its result gets the
					// matching autofree even though the callee's own kind
					// is unknown here.
					if kind, ok := retAllocs[instr.Callee]; ok && instr.Result != "" {
						if isEffectivelyUnused(collectUses(fn, instr)) {
							insertImmediateAutofreeSymbol(block, instr, autofreeSymbolForKind(kind))
							stats.Autofreed++
						}
					}
					continue
				}

				if op.IsDeallocator() {
					replaceDeallocCall(instr, op)
					stats.Replaced++
					continue
				}
				if !op.IsAllocator() {
					continue
				}

				site := common.ResolveSite(idx, interner, instr.DebugLoc)
				finding := byInstr[instr]
				unreachable := finding != nil && finding.Unreachable
				replaceAllocCall(instr, op, unreachable, pool, site)
				stats.Replaced++

				switch {
				case unreachable:
					stats.Unreachable++
					insertImmediateAutofree(block, instr, op)
					stats.Autofreed++
				case finding != nil && finding.State == ReachableLocal:
					insertReturnSiteAutofree(fn, op, instr.Result)
					stats.Autofreed++
				}
			}
		}
	}
	return stats
}

func replaceAllocCall(instr *ir.Instruction, op Op, unreachable bool, pool *common.SitePool, site string) {
	instr.Callee = "@" + op.RuntimeSymbol(unreachable)
	instr.Args = append(append([]string{}, instr.Args...), pool.Ref(site))
	if instr.RetType == "" {
		instr.RetType = "i8*"
	}
	instr.Inserted = true
}

// replaceDeallocCall drops any argument beyond the pointer itself
// (sized/aligned/nothrow-tag operands): the runtime's Free/Delete
// family looks the allocation up in the table by address alone.
func replaceDeallocCall(instr *ir.Instruction, op Op) {
	instr.Callee = "@" + op.RuntimeSymbol(false)
	if len(instr.Args) > 1 {
		instr.Args = instr.Args[:1]
	}
	instr.RetType = "void"
	instr.Result = ""
	instr.Inserted = true
}

func insertImmediateAutofree(block *ir.BasicBlock, after *ir.Instruction, op Op) {
	insertImmediateAutofreeSymbol(block, after, op.AutofreeSymbol())
}

func insertImmediateAutofreeSymbol(block *ir.BasicBlock, after *ir.Instruction, symbol string) {
	call := &ir.Instruction{
		Kind:     ir.Call,
		RetType:  "void",
		Callee:   "@" + symbol,
		Args:     []string{"i8* " + after.Result},
		Inserted: true,
	}
	insertAfter(block, after, call)
}

func insertAfter(block *ir.BasicBlock, after, inst *ir.Instruction) {
	for i, cur := range block.Instructions {
		if cur == after {
			block.Instructions = append(block.Instructions[:i+1], append([]*ir.Instruction{inst}, block.Instructions[i+1:]...)...)
			return
		}
	}
}

// insertReturnSiteAutofree implements spec.md §4.2 step 4: a
// ReachableLocal allocation gets an autofree call before every `ret` in
// its defining function.
func insertReturnSiteAutofree(fn *ir.Function, op Op, resultReg string) {
	for _, block := range fn.Blocks {
		for i, instr := range block.Instructions {
			if instr.Kind != ir.Ret {
				continue
			}
			call := &ir.Instruction{
				Kind:     ir.Call,
				RetType:  "void",
				Callee:   "@" + op.AutofreeSymbol(),
				Args:     []string{"i8* " + resultReg},
				Inserted: true,
			}
			block.Instructions = append(block.Instructions[:i], append([]*ir.Instruction{call}, block.Instructions[i:]...)...)
			break
		}
	}
}
