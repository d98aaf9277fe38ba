package alloc

import (
	"strings"

	"github.com/coretrace/coretrace/internal/runtime/alloctable"
)

// Op names one recognized allocator or deallocator entry point from
// spec.md §4.2's replacement list.
type Op int

const (
	OpNone Op = iota
	OpMalloc
	OpCalloc
	OpRealloc
	OpAlignedAlloc
	OpPosixMemalign
	OpMmap
	OpMunmap
	OpSbrk
	OpBrk
	OpNew
	OpNewArray
	OpNewNothrow
	OpNewArrayNothrow
	OpDelete
	OpDeleteArray
	OpDeleteNothrow
	OpDeleteArrayNothrow
	OpDeleteDestroying
	OpDeleteArrayDestroying
	OpFree
)

// IsAllocator reports whether op produces a pointer the escape analysis
// and autofree machinery must track.
func (op Op) IsAllocator() bool {
	switch op {
	case OpMalloc, OpCalloc, OpRealloc, OpAlignedAlloc, OpPosixMemalign,
		OpMmap, OpSbrk, OpBrk, OpNew, OpNewArray, OpNewNothrow, OpNewArrayNothrow:
		return true
	default:
		return false
	}
}

// IsDeallocator reports whether op releases a previously tracked
// allocation, i.e. it is free-like for escape-analysis purposes
// (spec.md §4.2, "call to a known free-like").
func (op Op) IsDeallocator() bool {
	switch op {
	case OpFree, OpMunmap, OpDelete, OpDeleteArray, OpDeleteNothrow,
		OpDeleteArrayNothrow, OpDeleteDestroying, OpDeleteArrayDestroying:
		return true
	default:
		return false
	}
}

// supportsUnreachable reports whether op has an `_unreachable`
// interceptor variant, per the runtime symbol list in spec.md §6 — only
// malloc/calloc/new/new[]/new_nothrow/new_array_nothrow do; realloc,
// posix_memalign, aligned_alloc, mmap, sbrk and brk do not.
func (op Op) supportsUnreachable() bool {
	switch op {
	case OpMalloc, OpCalloc, OpNew, OpNewArray, OpNewNothrow, OpNewArrayNothrow:
		return true
	default:
		return false
	}
}

// RuntimeSymbol returns the `__ct_*` symbol to call in place of op,
// choosing the `_unreachable` variant when unreachable is true and op
// supports one.
func (op Op) RuntimeSymbol(unreachable bool) string {
	suffix := ""
	if unreachable && op.supportsUnreachable() {
		suffix = "_unreachable"
	}
	switch op {
	case OpMalloc:
		return "__ct_malloc" + suffix
	case OpCalloc:
		return "__ct_calloc" + suffix
	case OpRealloc:
		return "__ct_realloc"
	case OpAlignedAlloc:
		return "__ct_aligned_alloc"
	case OpPosixMemalign:
		return "__ct_posix_memalign"
	case OpMmap:
		return "__ct_mmap"
	case OpMunmap:
		return "__ct_munmap"
	case OpSbrk:
		return "__ct_sbrk"
	case OpBrk:
		return "__ct_brk"
	case OpNew:
		return "__ct_new" + suffix
	case OpNewArray:
		return "__ct_new_array" + suffix
	case OpNewNothrow:
		return "__ct_new_nothrow" + suffix
	case OpNewArrayNothrow:
		return "__ct_new_array_nothrow" + suffix
	case OpDelete:
		return "__ct_delete"
	case OpDeleteArray:
		return "__ct_delete_array"
	case OpDeleteNothrow:
		return "__ct_delete_nothrow"
	case OpDeleteArrayNothrow:
		return "__ct_delete_array_nothrow"
	case OpDeleteDestroying:
		return "__ct_delete_destroying"
	case OpDeleteArrayDestroying:
		return "__ct_delete_array_destroying"
	case OpFree:
		return "__ct_free"
	default:
		return ""
	}
}

// AutofreeSymbol returns the `__ct_autofree*` symbol matching op's
// allocation kind, for the immediate-autofree call inserted after an
// effectively-unused allocation and before every return reachable from
// a ReachableLocal one.
func (op Op) AutofreeSymbol() string {
	switch op {
	case OpMmap:
		return "__ct_autofree_munmap"
	case OpSbrk:
		return "__ct_autofree_sbrk"
	case OpNew, OpNewNothrow:
		return "__ct_autofree_delete"
	case OpNewArray, OpNewArrayNothrow:
		return "__ct_autofree_delete_array"
	default:
		return "__ct_autofree"
	}
}

// Kind maps op to the alloctable.AllocKind the runtime uses to dispatch
// free/sweep, mirroring the classification Pass.Alloc's replacement
// target must agree with the runtime on (spec.md §9 "dynamic dispatch").
func (op Op) Kind() alloctable.AllocKind {
	switch op {
	case OpNew, OpNewNothrow:
		return alloctable.NewLike
	case OpNewArray, OpNewArrayNothrow:
		return alloctable.NewArrayLike
	case OpMmap:
		return alloctable.MmapLike
	case OpSbrk, OpBrk:
		return alloctable.SbrkLike
	default:
		return alloctable.MallocLike
	}
}

// itaniumNewExact and itaniumDeleteExact map the shortest
// recognized mangling for each operator new/delete overload to its Op.
// A name matches if it has one of these as a prefix — Itanium manglings
// append further parameter types (alignment, nothrow tag, destroying
// tag) as a suffix, so plain `_Znwm` is a prefix of the nothrow overload
// `_ZnwmRKSt9nothrow_t` and both must be told apart by the longest match.
var itaniumNewExact = map[string]Op{
	"_Znwm":                 OpNew,
	"_Znam":                 OpNewArray,
	"_ZnwmRKSt9nothrow_t":   OpNewNothrow,
	"_ZnamRKSt9nothrow_t":   OpNewArrayNothrow,
	"_ZnwmSt11align_val_t":  OpNew,
	"_ZnamSt11align_val_t":  OpNewArray,
}

var itaniumDeleteExact = map[string]Op{
	"_ZdlPv":                        OpDelete,
	"_ZdaPv":                        OpDeleteArray,
	"_ZdlPvm":                       OpDelete,
	"_ZdaPvm":                       OpDeleteArray,
	"_ZdlPvSt11align_val_t":         OpDelete,
	"_ZdaPvSt11align_val_t":         OpDeleteArray,
	"_ZdlPvRKSt9nothrow_t":          OpDeleteNothrow,
	"_ZdaPvRKSt9nothrow_t":          OpDeleteArrayNothrow,
	"_ZdlPvSt20destroying_delete_t": OpDeleteDestroying,
	"_ZdaPvSt20destroying_delete_t": OpDeleteArrayDestroying,
}

// ClassifyCallee maps a callee symbol name (without the leading '@') to
// the Op it replaces, or OpNone if the name is not one Pass.Alloc
// recognizes.
func ClassifyCallee(name string) Op {
	name = strings.TrimPrefix(name, "@")

	switch name {
	case "malloc":
		return OpMalloc
	case "calloc":
		return OpCalloc
	case "realloc":
		return OpRealloc
	case "aligned_alloc":
		return OpAlignedAlloc
	case "posix_memalign":
		return OpPosixMemalign
	case "mmap", "mmap64":
		return OpMmap
	case "munmap":
		return OpMunmap
	case "sbrk":
		return OpSbrk
	case "brk":
		return OpBrk
	case "free":
		return OpFree
	}

	if op, ok := itaniumNewExact[name]; ok {
		return op
	}
	if op, ok := itaniumDeleteExact[name]; ok {
		return op
	}

	// Prefixed variants: an unrecognized suffix on a known base mangling
	// (e.g. an additional allocator-provided-alignment parameter) is
	// treated as the base overload rather than left unrecognized.
	if longestPrefixMatch(name, itaniumNewExact) != OpNone {
		return longestPrefixMatch(name, itaniumNewExact)
	}
	if longestPrefixMatch(name, itaniumDeleteExact) != OpNone {
		return longestPrefixMatch(name, itaniumDeleteExact)
	}

	return OpNone
}

// IsFreeLike reports whether name is one of the free-like symbols
// spec.md §4.2 names for escape-analysis purposes: libc free, any
// already-replaced `__ct_free`/`__ct_autofree*`/`__ct_delete*`, or
// `__ct_munmap`.
func IsFreeLike(name string) bool {
	name = strings.TrimPrefix(name, "@")
	if name == "free" {
		return true
	}
	if strings.HasPrefix(name, "__ct_autofree") {
		return true
	}
	if strings.HasPrefix(name, "__ct_delete") {
		return true
	}
	if name == "__ct_free" || name == "__ct_munmap" {
		return true
	}
	return false
}

func longestPrefixMatch(name string, table map[string]Op) Op {
	best := ""
	bestOp := OpNone
	for mangled, op := range table {
		if strings.HasPrefix(name, mangled) && len(mangled) > len(best) {
			best = mangled
			bestOp = op
		}
	}
	return bestOp
}
