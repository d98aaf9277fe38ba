package trace

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coretrace/coretrace/internal/ir"
	"github.com/coretrace/coretrace/internal/passes/common"
)

func run(t *testing.T, src string) *ir.Module {
	t.Helper()
	m := ir.Parse(src)
	Run(m, common.NewSitePool(m))
	return m
}

func TestVoidFunctionGetsEnterAndExitVoid(t *testing.T) {
	m := run(t, `define void @foo() {
entry:
  ret void
}
`)
	insts := m.Functions[0].Blocks[0].Instructions
	require.Equal(t, "@__ct_trace_enter", insts[0].Callee)
	require.Equal(t, "@__ct_trace_exit_void", insts[1].Callee)
	require.Equal(t, ir.Ret, insts[2].Kind)
}

func TestI32ReturnGetsSextToI64ThenExitI64(t *testing.T) {
	m := run(t, `define i32 @foo() {
entry:
  ret i32 7
}
`)
	insts := m.Functions[0].Blocks[0].Instructions
	require.Equal(t, "@__ct_trace_enter", insts[0].Callee)
	require.Contains(t, insts[1].Raw, "sext i32 7 to i64")
	require.Equal(t, "@__ct_trace_exit_i64", insts[2].Callee)
	require.Contains(t, insts[2].Args[1], "i64 ")
}

func TestI64ReturnSkipsConversion(t *testing.T) {
	m := run(t, `define i64 @foo() {
entry:
  ret i64 7
}
`)
	insts := m.Functions[0].Blocks[0].Instructions
	require.Equal(t, "@__ct_trace_exit_i64", insts[1].Callee)
	require.Equal(t, "i64 7", insts[1].Args[1])
}

func TestPointerReturnGetsExitPtr(t *testing.T) {
	m := run(t, `define i8* @foo() {
entry:
  ret i8* null
}
`)
	insts := m.Functions[0].Blocks[0].Instructions
	require.Equal(t, "@__ct_trace_exit_ptr", insts[1].Callee)
	require.Equal(t, "i8* null", insts[1].Args[1])
}

func TestFloatReturnGetsFpextToDouble(t *testing.T) {
	m := run(t, `define float @foo() {
entry:
  ret float 1.0
}
`)
	insts := m.Functions[0].Blocks[0].Instructions
	require.Contains(t, insts[1].Raw, "fpext float 1.0 to double")
	require.Equal(t, "@__ct_trace_exit_f64", insts[2].Callee)
}

func TestFunctionNameConstantDedupedAcrossMultipleReturns(t *testing.T) {
	m := run(t, `define i32 @foo(i1 %c) {
entry:
  br i1 %c, label %a, label %b
a:
  ret i32 1
b:
  ret i32 2
}
`)
	// One name constant covers both the entry call and both exit sites.
	require.Len(t, m.Globals, 1)
}
