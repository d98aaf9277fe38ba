package alloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coretrace/coretrace/internal/ir"
	"github.com/coretrace/coretrace/internal/passes/common"
)

func run(t *testing.T, src string) *ir.Module {
	t.Helper()
	m := ir.Parse(src)
	Run(m, common.NewSiteInterner(), common.NewSitePool(m))
	return m
}

// spec.md §8 scenario 5: a locally-dereferenced allocation gets a
// regular (reachable) replacement and an autofree before its sole ret,
// never the _unreachable variant.
func TestNonEscapingLocalGetsReturnSiteAutofree(t *testing.T) {
	m := run(t, `define void @foo() {
entry:
  %1 = call i8* @malloc(i64 16)
  store i32 42, i32* %1
  ret void
}
`)
	fn := m.Functions[0]
	insts := fn.Blocks[0].Instructions
	require.Equal(t, "@__ct_malloc", insts[0].Callee)
	require.Len(t, insts, 4)
	require.Equal(t, "@__ct_autofree", insts[2].Callee)
	require.Equal(t, ir.Ret, insts[3].Kind)
}

// A malloc result with no uses at all is effectively_unused: it gets
// the _unreachable variant and an immediate autofree right after.
func TestUnusedMallocGetsUnreachableVariantAndImmediateAutofree(t *testing.T) {
	m := run(t, `define void @foo() {
entry:
  %1 = call i8* @malloc(i64 16)
  ret void
}
`)
	insts := m.Functions[0].Blocks[0].Instructions
	require.Equal(t, "@__ct_malloc_unreachable", insts[0].Callee)
	require.Equal(t, "@__ct_autofree", insts[1].Callee)
	require.Equal(t, ir.Ret, insts[2].Kind)
}

// A malloc result stored into a global escapes: no autofree, and the
// regular (not _unreachable) interceptor is used.
func TestEscapedStoreGetsNoAutofree(t *testing.T) {
	m := run(t, `@g = global i8* null

define void @foo() {
entry:
  %1 = call i8* @malloc(i64 16)
  store i8* %1, i8** @g
  ret void
}
`)
	insts := m.Functions[0].Blocks[0].Instructions
	require.Equal(t, "@__ct_malloc", insts[0].Callee)
	for _, in := range insts {
		require.NotContains(t, in.Callee, "autofree")
	}
}

// A returned allocation escapes via EscapedReturn: no autofree inserted
// in the defining function.
func TestReturnedAllocationEscapes(t *testing.T) {
	m := run(t, `define i8* @foo() {
entry:
  %1 = call i8* @malloc(i64 16)
  ret i8* %1
}
`)
	insts := m.Functions[0].Blocks[0].Instructions
	require.Equal(t, "@__ct_malloc", insts[0].Callee)
	require.Len(t, insts, 2)
}

// An allocation passed to free is EscapedCall (ownership transferred);
// the free call itself becomes __ct_free and no extra autofree appears.
func TestAllocationPassedToFreeBecomesEscapedCall(t *testing.T) {
	m := run(t, `define void @foo() {
entry:
  %1 = call i8* @malloc(i64 16)
  call void @free(i8* %1)
  ret void
}
`)
	insts := m.Functions[0].Blocks[0].Instructions
	require.Equal(t, "@__ct_malloc", insts[0].Callee)
	require.Equal(t, "@__ct_free", insts[1].Callee)
	require.Len(t, insts, 3)
}

// delete replacement drops any extra (sized/aligned) argument beyond
// the pointer.
func TestDeleteReplacementKeepsOnlyPointerArg(t *testing.T) {
	m := run(t, `define void @foo(i8* %p) {
entry:
  call void @_ZdlPvm(i8* %p, i64 16)
  ret void
}
`)
	insts := m.Functions[0].Blocks[0].Instructions
	require.Equal(t, "@__ct_delete", insts[0].Callee)
	require.Len(t, insts[0].Args, 1)
}

func TestClassifyCalleeItaniumManglings(t *testing.T) {
	require.Equal(t, OpNew, ClassifyCallee("_Znwm"))
	require.Equal(t, OpNewArray, ClassifyCallee("_Znam"))
	require.Equal(t, OpNewNothrow, ClassifyCallee("_ZnwmRKSt9nothrow_t"))
	require.Equal(t, OpDelete, ClassifyCallee("_ZdlPv"))
	require.Equal(t, OpDeleteArrayNothrow, ClassifyCallee("_ZdaPvRKSt9nothrow_t"))
	require.Equal(t, OpDeleteDestroying, ClassifyCallee("_ZdlPvSt20destroying_delete_t"))
	require.Equal(t, OpNone, ClassifyCallee("something_else"))
}
