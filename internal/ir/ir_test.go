package ir

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sample = `target datalayout = "e-m:e-p270:32:32-p271:32:32-p272:64:64-i64:64-f80:128-n8:16:32:64-S128"
target triple = "x86_64-unknown-linux-gnu"

@.str = private unnamed_addr constant [4 x i8] c"%d\0A\00", align 1

declare i8* @malloc(i64)

define i32 @main() {
entry:
  %1 = call i8* @malloc(i64 16)
  %2 = load i32, i32* %1
  store i32 42, i32* %1
  ret i32 0
}
`

func TestParseGlobalsAndDecls(t *testing.T) {
	m := Parse(sample)
	require.Len(t, m.Globals, 1)
	require.Equal(t, ".str", m.Globals[0].Name)
	require.True(t, m.Globals[0].IsConst)

	require.Len(t, m.Functions, 2)
	require.True(t, m.Functions[0].IsDecl)
	require.Equal(t, "malloc", m.Functions[0].Name)
}

func TestParseFunctionBodyInstructions(t *testing.T) {
	m := Parse(sample)
	fn := m.Functions[1]
	require.Equal(t, "main", fn.Name)
	require.Len(t, fn.Blocks, 1)

	insts := fn.Blocks[0].Instructions
	require.Len(t, insts, 4)

	require.Equal(t, Call, insts[0].Kind)
	require.Equal(t, "@malloc", insts[0].Callee)
	require.Equal(t, "%1", insts[0].Result)

	require.Equal(t, Load, insts[1].Kind)
	require.Equal(t, "%1", insts[1].PointerOperand)

	require.Equal(t, Store, insts[2].Kind)
	require.Equal(t, "%1", insts[2].PointerOperand)

	require.Equal(t, Ret, insts[3].Kind)
	require.Equal(t, "0", insts[3].RetValue)
}

func TestDataLayoutPointerBytes(t *testing.T) {
	m := Parse(sample)
	dl := m.DataLayout()
	require.EqualValues(t, 8, dl.PointerBytes)
}

func TestRoundTripUnmodifiedPreservesText(t *testing.T) {
	m := Parse(sample)
	out := m.String()
	require.Contains(t, out, "define i32 @main()")
	require.Contains(t, out, "call i8* @malloc(i64 16)")
	require.True(t, strings.Contains(out, "ret i32 0"))
}

func TestMemIntrinsicClassified(t *testing.T) {
	src := `define void @f() {
entry:
  call void @llvm.memcpy.p0.p0.i64(i8* %1, i8* %2, i64 8, i1 false)
  ret void
}
`
	m := Parse(src)
	insts := m.Functions[0].Blocks[0].Instructions
	require.Equal(t, MemIntrinsic, insts[0].Kind)
}
