// Package vtable implements Pass.Vtable: identifying the `this` pointer
// behind a non-direct call by pattern-matching its target as
// `load (gep (load <this>))` — the vptr dereference clang lowers a
// virtual call to — and inserting `__ct_vtable_dump`/`__ct_vcall_trace`
// diagnostics (spec.md §4.5).
package vtable

import (
	"strings"

	"github.com/coretrace/coretrace/internal/config"
	"github.com/coretrace/coretrace/internal/ir"
	"github.com/coretrace/coretrace/internal/passes/common"
)

// Stats summarizes one Run for driver-side logging.
type Stats struct {
	Matched   int
	Dumped    int
	VcallLogs int
}

// Run implements Pass.Vtable over an entire module. cfg gates whether
// __ct_vcall_trace is inserted at all (VcallTrace); __ct_vtable_dump is
// always inserted when the pattern matches, since its runtime effect is
// gated by the __ct_config_vtable_diag weak global instead.
func Run(m *ir.Module, cfg config.RuntimeConfig, interner *common.SiteInterner, pool *common.SitePool) Stats {
	idx := common.BuildMetadataIndex(m)
	var stats Stats

	for _, fn := range m.Functions {
		if !common.ShouldInstrument(fn, "") {
			continue
		}
		flat := flatten(fn)

		for _, block := range fn.Blocks {
			original := append([]*ir.Instruction(nil), block.Instructions...)
			for _, instr := range original {
				if instr.Kind != ir.Call && instr.Kind != ir.Invoke {
					continue
				}
				if instr.Callee != "" {
					continue // direct call, not a vptr dispatch
				}
				calleeReg := instr.CalleeExpr // bare "%register" for an indirect call, per reCall/reInvoke
				this, ok := matchVptrDispatch(flat, calleeReg)
				if !ok {
					continue
				}
				stats.Matched++

				site := pool.Ref(common.ResolveSite(idx, interner, instr.DebugLoc))
				staticType := pool.Ref(deriveStaticType(paramType(fn, this)))

				dump := &ir.Instruction{
					Kind: ir.Call, RetType: "void", Callee: "@__ct_vtable_dump",
					Args:     []string{"i8* " + this, site, staticType},
					Inserted: true,
				}
				insertBefore(block, instr, dump)
				stats.Dumped++

				if cfg.VcallTrace {
					vcall := &ir.Instruction{
						Kind: ir.Call, RetType: "void", Callee: "@__ct_vcall_trace",
						Args:     []string{"i8* " + this, "i8* " + calleeReg, site, staticType},
						Inserted: true,
					}
					insertBefore(block, instr, vcall)
					stats.VcallLogs++
				}
			}
		}
	}
	return stats
}

// matchVptrDispatch implements spec.md §4.5's pattern: the indirect
// call's target register must be defined by a load whose pointer
// operand is a getelementptr whose first operand register is itself
// defined by a load — that innermost load's pointer operand is `this`.
func matchVptrDispatch(flat []*ir.Instruction, calleeReg string) (this string, ok bool) {
	load1 := findByResult(flat, calleeReg)
	if load1 == nil || load1.Kind != ir.Load {
		return "", false
	}
	gep := findByResult(flat, load1.PointerOperand)
	if gep == nil || !strings.Contains(gep.Raw, "getelementptr") {
		return "", false
	}
	vtableReg := common.FirstOperandRegister(gep.Raw)
	if vtableReg == "" {
		return "", false
	}
	load0 := findByResult(flat, vtableReg)
	if load0 == nil || load0.Kind != ir.Load {
		return "", false
	}
	if load0.PointerOperand == "" {
		return "", false
	}
	return load0.PointerOperand, true
}

func findByResult(flat []*ir.Instruction, reg string) *ir.Instruction {
	if reg == "" {
		return nil
	}
	for _, instr := range flat {
		if instr.Result == reg {
			return instr
		}
	}
	return nil
}

// paramType returns the declared type of thisReg when it is one of fn's
// formal parameters, "" otherwise (a local computed pointer, whose
// static type this pass does not attempt to recover).
func paramType(fn *ir.Function, thisReg string) string {
	name := strings.TrimPrefix(thisReg, "%")
	for _, p := range fn.Params {
		if p.Name == thisReg || p.Name == name {
			return p.Type
		}
	}
	return ""
}

// deriveStaticType implements spec.md §4.5: strip the class./struct./
// union. prefix LLVM's named-struct pointer types carry; an opaque
// pointer (LLVM's "ptr", or a type this pass could not resolve at all)
// yields "<unknown>".
func deriveStaticType(typ string) string {
	t := strings.TrimSpace(typ)
	if t == "" || t == "ptr" || t == "i8*" {
		return "<unknown>"
	}
	t = strings.TrimRight(t, "*")
	t = strings.TrimPrefix(t, "%")
	for _, prefix := range []string{"class.", "struct.", "union."} {
		if strings.HasPrefix(t, prefix) {
			return strings.TrimPrefix(t, prefix)
		}
	}
	return t
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
