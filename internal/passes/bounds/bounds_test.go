package bounds

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

func TestLoadGetsBoundsCheckBefore(t *testing.T) {
	m := run(t, `define i32 @f(i32* %p) {
entry:
  %1 = load i32, i32* %p
  ret i32 %1
}
`)
	insts := m.Functions[0].Blocks[0].Instructions
	require.Len(t, insts, 3)
	require.Equal(t, "@__ct_check_bounds", insts[0].Callee)
	require.Equal(t, []string{"i8* %p", "i8* %p", "i64 4"}, insts[0].Args[:3])
	require.Equal(t, "i1 false", insts[0].Args[4])
	require.Equal(t, ir.Load, insts[1].Kind)
}

func TestStoreGetsWriteCheck(t *testing.T) {
	m := run(t, `define void @f(i32* %p) {
entry:
  store i32 1, i32* %p
  ret void
}
`)
	insts := m.Functions[0].Blocks[0].Instructions
	require.Equal(t, "i1 true", insts[0].Args[4])
}

func TestBaseResolvedThroughGEPAndAlloca(t *testing.T) {
	m := run(t, `define void @f() {
entry:
  %a = alloca i32
  %b = getelementptr inbounds i32, i32* %a, i64 0
  store i32 1, i32* %b
  ret void
}
`)
	insts := m.Functions[0].Blocks[0].Instructions
	// insts: alloca, gep, check(before store), store, ret
	require.Equal(t, "@__ct_check_bounds", insts[2].Callee)
	require.Equal(t, "i8* %a", insts[2].Args[0])
	require.Equal(t, "i8* %b", insts[2].Args[1])
}

func TestMemcpyGetsTwoChecks(t *testing.T) {
	m := run(t, `define void @f(i8* %dst, i8* %src) {
entry:
  call void @llvm.memcpy.p0i8.p0i8.i64(i8* %dst, i8* %src, i64 16, i1 false)
  ret void
}
`)
	insts := m.Functions[0].Blocks[0].Instructions
	require.Equal(t, "@__ct_check_bounds", insts[0].Callee)
	require.Equal(t, "i1 true", insts[0].Args[4])
	require.Equal(t, "@__ct_check_bounds", insts[1].Callee)
	require.Equal(t, "i1 false", insts[1].Args[4])
}

func TestMemsetGetsOneCheck(t *testing.T) {
	m := run(t, `define void @f(i8* %dst) {
entry:
  call void @llvm.memset.p0i8.i64(i8* %dst, i8 0, i64 16, i1 false)
  ret void
}
`)
	insts := m.Functions[0].Blocks[0].Instructions
	require.Equal(t, "@__ct_check_bounds", insts[0].Callee)
	require.Equal(t, ir.MemIntrinsic, insts[1].Kind)
}
