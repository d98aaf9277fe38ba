package vtable

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coretrace/coretrace/internal/config"
	"github.com/coretrace/coretrace/internal/ir"
	"github.com/coretrace/coretrace/internal/passes/common"
)

func run(t *testing.T, src string, cfg config.RuntimeConfig) *ir.Module {
	t.Helper()
	m := ir.Parse(src)
	Run(m, cfg, common.NewSiteInterner(), common.NewSitePool(m))
	return m
}

const vcallSrc = `define void @call(%class.Base* %this) {
entry:
  %vtable = load i8**, i8*** %this
  %slot = getelementptr i8*, i8** %vtable, i64 0
  %fn = load i8*, i8** %slot
  call void %fn(%class.Base* %this)
  ret void
}
`

func TestVptrPatternInsertsVtableDump(t *testing.T) {
	m := run(t, vcallSrc, config.RuntimeConfig{})
	insts := m.Functions[0].Blocks[0].Instructions
	found := false
	for _, in := range insts {
		if in.Callee == "@__ct_vtable_dump" {
			found = true
			require.Equal(t, "i8* %this", in.Args[0])
		}
	}
	require.True(t, found)
}

func TestVcallTraceOnlyInsertedWhenEnabled(t *testing.T) {
	m := run(t, vcallSrc, config.RuntimeConfig{})
	for _, in := range m.Functions[0].Blocks[0].Instructions {
		require.NotEqual(t, "@__ct_vcall_trace", in.Callee)
	}

	m = run(t, vcallSrc, config.RuntimeConfig{VcallTrace: true})
	found := false
	for _, in := range m.Functions[0].Blocks[0].Instructions {
		if in.Callee == "@__ct_vcall_trace" {
			found = true
			require.Equal(t, "i8* %this", in.Args[0])
			require.Equal(t, "i8* %fn", in.Args[1])
		}
	}
	require.True(t, found)
}

func TestDirectCallIsNotMatched(t *testing.T) {
	m := run(t, `define void @foo() {
entry:
  call void @bar()
  ret void
}
`, config.RuntimeConfig{})
	for _, in := range m.Functions[0].Blocks[0].Instructions {
		require.NotEqual(t, "@__ct_vtable_dump", in.Callee)
	}
}

func TestDeriveStaticTypeStripsPrefixesAndHandlesOpaque(t *testing.T) {
	require.Equal(t, "Base", deriveStaticType("%class.Base*"))
	require.Equal(t, "Foo", deriveStaticType("%struct.Foo*"))
	require.Equal(t, "<unknown>", deriveStaticType("ptr"))
	require.Equal(t, "<unknown>", deriveStaticType(""))
}
