package alloc

import (
	"github.com/coretrace/coretrace/internal/ir"
	"github.com/coretrace/coretrace/internal/passes/common"
	"github.com/coretrace/coretrace/internal/runtime/alloctable"
)

// returningAllocators implements spec.md §4.2's "Return-allocator
// inference": it finds every function in m whose every `ret`, after
// stripping pointer casts, resolves to a call to a known allocator, with
// all such calls agreeing on kind, and reports the kind each one always
// produces.
func returningAllocators(m *ir.Module) map[string]alloctable.AllocKind {
	out := make(map[string]alloctable.AllocKind)
	for _, fn := range m.Functions {
		if kind, ok := classifyReturningAllocator(fn); ok {
			out["@"+fn.Name] = kind
		}
	}
	return out
}

// classifyReturningAllocator reports the AllocKind fn always returns, if
// fn qualifies as a returning allocator.
func classifyReturningAllocator(fn *ir.Function) (alloctable.AllocKind, bool) {
	flat := flatten(fn)

	var kind alloctable.AllocKind
	sawReturn := false
	for _, instr := range flat {
		if instr.Kind != ir.Ret {
			continue
		}
		if instr.RetValue == "" {
			// Bare `ret void`/`ret <const>`: not a pointer return, so this
			// function cannot be a returning allocator.
			return 0, false
		}
		op, ok := resolveAllocatingCall(flat, instr.RetValue)
		if !ok {
			return 0, false
		}
		k := op.Kind()
		if sawReturn && k != kind {
			return 0, false
		}
		kind, sawReturn = k, true
	}
	return kind, sawReturn
}

// resolveAllocatingCall walks reg back through the chain of instructions
// that defined it, stripping pointer casts via the same
// IsPointerAliasInstruction/FirstOperandRegister pair Pass.Bounds'
// resolveBase uses, until it finds the call that produced the value, and
// reports whether that call is a known allocator.
func resolveAllocatingCall(flat []*ir.Instruction, reg string) (Op, bool) {
	visited := map[string]bool{}
	for reg != "" && !visited[reg] {
		visited[reg] = true
		def := findDef(flat, reg)
		if def == nil {
			return OpNone, false
		}
		switch {
		case def.Kind == ir.Call || def.Kind == ir.Invoke:
			op := ClassifyCallee(def.Callee)
			if !op.IsAllocator() {
				return OpNone, false
			}
			return op, true
		case common.IsPointerAliasInstruction(def.Raw):
			src := common.FirstOperandRegister(def.Raw)
			if src == "" {
				return OpNone, false
			}
			reg = src
		default:
			return OpNone, false
		}
	}
	return OpNone, false
}

func findDef(flat []*ir.Instruction, reg string) *ir.Instruction {
	for _, instr := range flat {
		if instr.Result == reg {
			return instr
		}
	}
	return nil
}

// autofreeSymbolForKind maps an AllocKind inferred through
// classifyReturningAllocator to the runtime autofree entry point Pass.Alloc
// must call, mirroring Op.AutofreeSymbol for call sites where only the
// kind — not the concrete allocator Op — is known (spec.md §4.2: "even if
// the kind is not known at the call site").
func autofreeSymbolForKind(kind alloctable.AllocKind) string {
	switch kind {
	case alloctable.MmapLike:
		return "__ct_autofree_munmap"
	case alloctable.SbrkLike:
		return "__ct_autofree_sbrk"
	case alloctable.NewLike:
		return "__ct_autofree_delete"
	case alloctable.NewArrayLike:
		return "__ct_autofree_delete_array"
	default:
		return "__ct_autofree"
	}
}
