package alloc

import (
	"regexp"
	"strings"

	"github.com/coretrace/coretrace/internal/ir"
)

// EscapeState is the whole-function escape classification from
// spec.md §4.2 step 2.
type EscapeState int

const (
	ReachableLocal EscapeState = iota
	EscapedStore
	EscapedReturn
	EscapedCall
)

func (s EscapeState) String() string {
	switch s {
	case EscapedStore:
		return "escaped-store"
	case EscapedReturn:
		return "escaped-return"
	case EscapedCall:
		return "escaped-call"
	default:
		return "reachable-local"
	}
}

type useKind int

const (
	useStoreLocal useKind = iota
	useStoreEscaped
	useReturn
	useCallFreeLike
	useCallOther
	useDeref
)

type use struct {
	kind  useKind
	instr *ir.Instruction
}

var reAliasProducer = regexp.MustCompile(`^(%[\w.]+)\s*=\s*(bitcast|getelementptr(?:\s+inbounds)?|addrspacecast|inttoptr|ptrtoint|phi|select)\b`)

func flatten(fn *ir.Function) []*ir.Instruction {
	var out []*ir.Instruction
	for _, b := range fn.Blocks {
		out = append(out, b.Instructions...)
	}
	return out
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '.' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// containsReg reports whether reg appears in text as a whole token
// (not as a substring of a longer register name like %10 inside %100).
func containsReg(text, reg string) bool {
	if reg == "" {
		return false
	}
	for i := 0; i+len(reg) <= len(text); i++ {
		if text[i:i+len(reg)] != reg {
			continue
		}
		if i > 0 && isIdentByte(text[i-1]) {
			continue
		}
		after := i + len(reg)
		if after < len(text) && isIdentByte(text[after]) {
			continue
		}
		return true
	}
	return false
}

func argContainsReg(args []string, reg string) bool {
	for _, a := range args {
		if containsReg(a, reg) {
			return true
		}
	}
	return false
}

func isAllocaReg(flat []*ir.Instruction, reg string) bool {
	for _, instr := range flat {
		if instr.Kind == ir.Alloca && instr.Result == reg {
			return true
		}
	}
	return false
}

// allocaIsDead reports whether every reference to allocaReg besides
// plain loads and stores is absent — i.e. its address never escapes
// through a call, return, or anything else this analysis doesn't
// already understand. This is the "alloca whose every use is itself
// dead" condition spec.md §4.2 uses both for the "unreachable" flag and
// for whole-function escape classification.
func allocaIsDead(flat []*ir.Instruction, allocaReg string) bool {
	for _, instr := range flat {
		if !containsReg(instr.Raw, allocaReg) {
			continue
		}
		switch instr.Kind {
		case ir.Store, ir.Load, ir.Alloca:
			continue
		default:
			return false
		}
	}
	return true
}

func loadAliasesOf(flat []*ir.Instruction, allocaReg string) []string {
	var out []string
	for _, instr := range flat {
		if instr.Kind == ir.Load && instr.PointerOperand == allocaReg && instr.Result != "" {
			out = append(out, instr.Result)
		}
	}
	return out
}

func aliasResultOf(instr *ir.Instruction, reg string) string {
	trimmed := strings.TrimSpace(instr.Raw)
	m := reAliasProducer.FindStringSubmatch(trimmed)
	if m == nil {
		return ""
	}
	if !containsReg(trimmed[len(m[0]):], reg) {
		return ""
	}
	return m[1]
}

// collectUses walks every use of defInstr's result, following aliases
// produced by store-into-alloca/load-from-alloca pairs and by
// bitcast/GEP/phi/select-style value-preserving instructions, per
// spec.md §4.2 steps 1 and 3. It is a textual approximation of the
// SSA def-use walk a real compiler pass would do over a use-list graph
// — internal/ir models .ll text, not a use-def graph — but follows the
// same alias-following rules the spec spells out.
func collectUses(fn *ir.Function, defInstr *ir.Instruction) []use {
	flat := flatten(fn)
	visited := map[string]bool{}
	queue := []string{defInstr.Result}
	var uses []use

	for len(queue) > 0 {
		reg := queue[0]
		queue = queue[1:]
		if reg == "" || visited[reg] {
			continue
		}
		visited[reg] = true

		for _, instr := range flat {
			if instr == defInstr {
				continue
			}
			if !containsReg(instr.Raw, reg) {
				continue
			}

			switch instr.Kind {
			case ir.Store:
				if instr.ValueOperand != reg {
					// reg is the address being stored through, not the
					// value: *reg = x. Real, non-escaping work — counts
					// against "effectively unused" but not an escape.
					uses = append(uses, use{kind: useDeref, instr: instr})
					continue
				}
				target := instr.PointerOperand
				if isAllocaReg(flat, target) {
					if allocaIsDead(flat, target) {
						uses = append(uses, use{kind: useStoreLocal, instr: instr})
					} else {
						uses = append(uses, use{kind: useStoreEscaped, instr: instr})
					}
					queue = append(queue, loadAliasesOf(flat, target)...)
				} else {
					uses = append(uses, use{kind: useStoreEscaped, instr: instr})
				}
			case ir.Load:
				if instr.PointerOperand == reg {
					uses = append(uses, use{kind: useDeref, instr: instr})
				}
			case ir.AtomicRMW, ir.CmpXchg, ir.MemIntrinsic:
				if instr.PointerOperand == reg {
					uses = append(uses, use{kind: useDeref, instr: instr})
				}
			case ir.Ret:
				if instr.RetValue == reg {
					uses = append(uses, use{kind: useReturn, instr: instr})
				}
			case ir.Call, ir.Invoke:
				if argContainsReg(instr.Args, reg) {
					if IsFreeLike(instr.Callee) {
						uses = append(uses, use{kind: useCallFreeLike, instr: instr})
					} else {
						uses = append(uses, use{kind: useCallOther, instr: instr})
					}
				}
			case ir.Br, ir.Switch:
				// branch/switch selector use: non-escaping (spec.md §4.2).
			default:
				if alias := aliasResultOf(instr, reg); alias != "" {
					queue = append(queue, alias)
				}
				// icmp/ptrtoint and other opaque uses of a pointer value
				// that this package doesn't model structurally are
				// treated as non-escaping rather than conservatively
				// escaped, since Pass.Alloc only needs to avoid
				// *missing* a real escape, not to avoid ever
				// over-approximating ReachableLocal for values compared
				// or hashed and never actually retained.
			}
		}
	}
	return uses
}

// classify implements spec.md §4.2 step 2/4's escape-state resolution
// from a use list: any escaped return beats any escaped store beats any
// escaped call; no escaping use at all means ReachableLocal.
func classify(uses []use) EscapeState {
	var hasReturn, hasStore, hasCall bool
	for _, u := range uses {
		switch u.kind {
		case useReturn:
			hasReturn = true
		case useStoreEscaped:
			hasStore = true
		case useCallFreeLike, useCallOther:
			hasCall = true
		}
	}
	switch {
	case hasReturn:
		return EscapedReturn
	case hasStore:
		return EscapedStore
	case hasCall:
		return EscapedCall
	default:
		return ReachableLocal
	}
}

// isEffectivelyUnused implements the local "unreachable" pattern from
// spec.md §4.2: every use, if any, is either a store into a dead alloca
// or a call to __ct_autofree*.
func isEffectivelyUnused(uses []use) bool {
	for _, u := range uses {
		switch u.kind {
		case useStoreLocal:
			continue
		case useDeref:
			return false
		case useCallFreeLike:
			if strings.HasPrefix(strings.TrimPrefix(u.instr.Callee, "@"), "__ct_autofree") {
				continue
			}
			return false
		default:
			return false
		}
	}
	return true
}
