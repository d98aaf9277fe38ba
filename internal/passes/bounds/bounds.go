// Package bounds implements Pass.Bounds: inserting
// `__ct_check_bounds(base, ptr, size, site, is_write)` calls before
// every load, store, atomic-rmw, atomic-cmpxchg, and memory intrinsic
// in user code (spec.md §4.3).
package bounds

import (
	"strconv"
	"strings"

	"github.com/coretrace/coretrace/internal/ir"
	"github.com/coretrace/coretrace/internal/passes/common"
)

// Stats summarizes one Run for driver-side logging.
type Stats struct {
	Inserted int
	// Skipped counts accesses whose size comes out as 0, which get no
	// check: zero-length accesses, types DataLayout.SizeOf cannot size,
	// and memory intrinsics whose length is not a constant integer.
	Skipped int
}

// Run implements Pass.Bounds over an entire module. interner and pool
// are shared across passes so identical sites intern to the same
// string and reuse the same backing global.
func Run(m *ir.Module, interner *common.SiteInterner, pool *common.SitePool) Stats {
	idx := common.BuildMetadataIndex(m)
	dl := m.DataLayout()
	var stats Stats

	for _, fn := range m.Functions {
		if !common.ShouldInstrument(fn, "") {
			continue
		}
		flat := flatten(fn)

		for _, block := range fn.Blocks {
			original := append([]*ir.Instruction(nil), block.Instructions...)
			for _, instr := range original {
				accesses := accessesFor(instr, dl)
				for _, acc := range accesses {
					if acc.size == 0 {
						stats.Skipped++
						continue
					}
					site := pool.Ref(common.ResolveSite(idx, interner, instr.DebugLoc))
					base := resolveBase(flat, acc.ptr)
					check := &ir.Instruction{
						Kind:    ir.Call,
						RetType: "void",
						Callee:  "@__ct_check_bounds",
						Args: []string{
							"i8* " + base,
							"i8* " + acc.ptr,
							"i64 " + strconv.FormatInt(acc.size, 10),
							site,
							boolArg(acc.isWrite),
						},
						Inserted: true,
					}
					insertBefore(block, instr, check)
					stats.Inserted++
				}
			}
		}
	}
	return stats
}

func boolArg(b bool) string {
	if b {
		return "i1 true"
	}
	return "i1 false"
}

type access struct {
	ptr     string
	size    int64
	isWrite bool
}

// accessesFor returns the bounds checks spec.md §4.3 requires before
// instr: one for load/store/atomicrmw/cmpxchg, two (dest-write then
// src-read) for a memory-transfer intrinsic.
func accessesFor(instr *ir.Instruction, dl ir.DataLayout) []access {
	switch instr.Kind {
	case ir.Load:
		return []access{{ptr: instr.PointerOperand, size: dl.SizeOf(instr.AccessType), isWrite: false}}
	case ir.Store:
		return []access{{ptr: instr.PointerOperand, size: dl.SizeOf(instr.AccessType), isWrite: true}}
	case ir.AtomicRMW, ir.CmpXchg:
		return []access{{ptr: instr.PointerOperand, size: dl.SizeOf(instr.AccessType), isWrite: true}}
	case ir.MemIntrinsic:
		return memIntrinsicAccesses(instr)
	default:
		return nil
	}
}

func memIntrinsicAccesses(instr *ir.Instruction) []access {
	if len(instr.Args) < 3 {
		return nil
	}
	dst := operandReg(instr.Args[0])
	src := operandReg(instr.Args[1])
	size := parseIntArg(instr.Args[2])

	accesses := []access{{ptr: dst, size: size, isWrite: true}}
	if strings.Contains(instr.Callee, "memset") {
		return accesses // memset has no source pointer to check
	}
	return append(accesses, access{ptr: src, size: size, isWrite: false})
}

func operandReg(arg string) string {
	return common.FirstOperandRegister("= " + arg)
}

func parseIntArg(arg string) int64 {
	fields := strings.Fields(arg)
	if len(fields) == 0 {
		return 0
	}
	n, _ := strconv.ParseInt(fields[len(fields)-1], 10, 64)
	return n
}

func flatten(fn *ir.Function) []*ir.Instruction {
	var out []*ir.Instruction
	for _, b := range fn.Blocks {
		out = append(out, b.Instructions...)
	}
	return out
}

func insertBefore(block *ir.BasicBlock, before, inst *ir.Instruction) {
	for i, cur := range block.Instructions {
		if cur == before {
			block.Instructions = append(block.Instructions[:i], append([]*ir.Instruction{inst}, block.Instructions[i:]...)...)
			return
		}
	}
}

func storesTo(flat []*ir.Instruction, ptr string) []*ir.Instruction {
	var out []*ir.Instruction
	for _, instr := range flat {
		if instr.Kind == ir.Store && instr.PointerOperand == ptr {
			out = append(out, instr)
		}
	}
	return out
}

// resolveBase implements spec.md §4.3's base-pointer resolution:
// strip through bitcasts/GEPs/cast constexprs, then — if the result is
// a load from a stack slot with exactly one stored value — follow that
// store's source, and repeat.
func resolveBase(flat []*ir.Instruction, ptr string) string {
	visited := map[string]bool{}
	current := ptr
	for {
		if visited[current] {
			return current
		}
		visited[current] = true

		var def *ir.Instruction
		for _, instr := range flat {
			if instr.Result == current {
				def = instr
				break
			}
		}
		if def == nil {
			return current // function argument, global, or constant
		}

		switch def.Kind {
		case ir.Alloca:
			return current
		case ir.Load:
			stores := storesTo(flat, def.PointerOperand)
			if len(stores) != 1 {
				return current
			}
			current = stores[0].ValueOperand
		default:
			if !common.IsPointerAliasInstruction(def.Raw) {
				return current
			}
			src := common.FirstOperandRegister(def.Raw)
			if src == "" {
				return current
			}
			current = src
		}
	}
}
