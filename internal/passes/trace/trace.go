// Package trace implements Pass.Trace: inserting an
// `__ct_trace_enter(func_name_const)` call at function entry and an
// `__ct_trace_exit_*` call, chosen by return type, before every `ret`
// (spec.md §4.4).
package trace

import (
	"fmt"
	"strings"

	"github.com/coretrace/coretrace/internal/ir"
	"github.com/coretrace/coretrace/internal/passes/common"
)

// Stats summarizes one Run for driver-side logging.
type Stats struct {
	Entered int
	Exited  int
}

// Run implements Pass.Trace over an entire module. pool is shared with
// the other passes so a function name referenced by multiple return
// sites (recursion, multiple returns) reuses one string constant.
func Run(m *ir.Module, pool *common.SitePool) Stats {
	var stats Stats

	for _, fn := range m.Functions {
		if !common.ShouldInstrument(fn, "") {
			continue
		}
		if len(fn.Blocks) == 0 {
			continue
		}
		nameArg := pool.Ref(fn.Name)

		insertEnter(fn.Blocks[0], nameArg)
		stats.Entered++

		regCounter := 0
		for _, block := range fn.Blocks {
			original := append([]*ir.Instruction(nil), block.Instructions...)
			for _, instr := range original {
				if instr.Kind != ir.Ret {
					continue
				}
				seq := exitSequence(instr, fn.RetType, nameArg, fn.Name, &regCounter)
				for _, ins := range seq {
					insertBefore(block, instr, ins)
				}
				stats.Exited++
			}
		}
	}
	return stats
}

func insertEnter(block *ir.BasicBlock, nameArg string) {
	call := &ir.Instruction{
		Kind:     ir.Call,
		RetType:  "void",
		Callee:   "@__ct_trace_enter",
		Args:     []string{nameArg},
		Inserted: true,
	}
	block.Instructions = append([]*ir.Instruction{call}, block.Instructions...)
}

func insertBefore(block *ir.BasicBlock, before, inst *ir.Instruction) {
	for i, cur := range block.Instructions {
		if cur == before {
			block.Instructions = append(block.Instructions[:i], append([]*ir.Instruction{inst}, block.Instructions[i:]...)...)
			return
		}
	}
}

// exitSequence implements spec.md §4.4's return-type dispatch table: it
// returns the conversion instruction (sign-extend/truncate, bitcast-to-
// i8*, or fpext, when the return type doesn't already match the exit
// hook's argument type) followed by the chosen `__ct_trace_exit_*` call.
func exitSequence(ret *ir.Instruction, retType, nameArg, fnName string, regCounter *int) []*ir.Instruction {
	if retType == "" || retType == "void" {
		return []*ir.Instruction{{
			Kind: ir.Call, RetType: "void", Callee: "@__ct_trace_exit_void",
			Args: []string{nameArg}, Inserted: true,
		}}
	}
	if ret.RetValue == "" {
		return []*ir.Instruction{{
			Kind: ir.Call, RetType: "void", Callee: "@__ct_trace_exit_unknown",
			Args: []string{nameArg}, Inserted: true,
		}}
	}

	switch classifyRetType(retType) {
	case retInt:
		return convertAndCall(retType, "i64", ret.RetValue, nameArg, fnName, "@__ct_trace_exit_i64", regCounter)
	case retPtr:
		return convertAndCall(retType, "i8*", ret.RetValue, nameArg, fnName, "@__ct_trace_exit_ptr", regCounter)
	case retFloat:
		return convertAndCall(retType, "double", ret.RetValue, nameArg, fnName, "@__ct_trace_exit_f64", regCounter)
	default:
		return []*ir.Instruction{{
			Kind: ir.Call, RetType: "void", Callee: "@__ct_trace_exit_unknown",
			Args: []string{nameArg}, Inserted: true,
		}}
	}
}

// convertAndCall emits the sext/trunc/bitcast/inttoptr/fpext instruction
// needed to reach targetType from fromType (a no-op pass-through when
// they already match) followed by the exit call using its result.
func convertAndCall(fromType, targetType, value, nameArg, fnName, callee string, regCounter *int) []*ir.Instruction {
	if fromType == targetType {
		return []*ir.Instruction{{
			Kind: ir.Call, RetType: "void", Callee: callee,
			Args: []string{nameArg, typedArg(targetType, value)}, Inserted: true,
		}}
	}

	*regCounter++
	reg := fmt.Sprintf("%%.ct.tr.%s.%d", fnName, *regCounter)
	op := conversionOp(fromType, targetType)
	convert := &ir.Instruction{
		Kind:     ir.Other,
		Result:   reg,
		Raw:      fmt.Sprintf("%s = %s %s %s to %s", reg, op, fromType, value, targetType),
		Inserted: true,
	}
	call := &ir.Instruction{
		Kind: ir.Call, RetType: "void", Callee: callee,
		Args: []string{nameArg, typedArg(targetType, reg)}, Inserted: true,
	}
	return []*ir.Instruction{convert, call}
}

func typedArg(typ, value string) string {
	return typ + " " + value
}

func conversionOp(from, to string) string {
	switch {
	case strings.HasSuffix(from, "*") && strings.HasSuffix(to, "*"):
		return "bitcast"
	case strings.HasPrefix(from, "i") && strings.HasPrefix(to, "i"):
		return sextOrTrunc(from, to)
	case strings.HasPrefix(from, "i") && strings.HasSuffix(to, "*"):
		return "inttoptr"
	case strings.HasSuffix(from, "*") && strings.HasPrefix(to, "i"):
		return "ptrtoint"
	case (from == "float" || from == "double") && to == "double":
		return "fpext"
	default:
		return "bitcast"
	}
}

func sextOrTrunc(from, to string) string {
	if bitWidth(from) < bitWidth(to) {
		return "sext"
	}
	return "trunc"
}

func bitWidth(t string) int {
	switch t {
	case "i1":
		return 1
	case "i8":
		return 8
	case "i16":
		return 16
	case "i32":
		return 32
	case "i64":
		return 64
	default:
		return 64
	}
}

type retClass int

const (
	retUnknown retClass = iota
	retInt
	retPtr
	retFloat
)

// classifyRetType implements spec.md §4.4's dispatch: choose the exit
// variant by the function's return type, falling back to
// __ct_trace_exit_unknown for aggregates, vectors, and struct returns.
func classifyRetType(t string) retClass {
	switch {
	case t == "float" || t == "double":
		return retFloat
	case strings.HasSuffix(t, "*") || t == "ptr":
		return retPtr
	case t == "i1" || t == "i8" || t == "i16" || t == "i32" || t == "i64":
		return retInt
	default:
		return retUnknown
	}
}
