package common

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coretrace/coretrace/internal/ir"
)

func TestSiteFormatsBasenameLineCol(t *testing.T) {
	s := NewSiteInterner()
	site := s.Site("!7", &DILocation{File: "/src/proj/main.c", Line: 12, Column: 5})
	require.Equal(t, "main.c:12:5", site)
}

func TestSiteInternsPerMetadataID(t *testing.T) {
	s := NewSiteInterner()
	a := s.Site("!7", &DILocation{File: "main.c", Line: 1, Column: 1})
	b := s.Site("!7", &DILocation{File: "main.c", Line: 1, Column: 1})
	require.Equal(t, a, b)
}

func TestSiteFallsBackToUnknown(t *testing.T) {
	s := NewSiteInterner()
	require.Equal(t, Unknown, s.Site("!8", nil))
	require.Equal(t, Unknown, s.Site("!9", &DILocation{}))
}

func TestShouldInstrumentSkipsDeclarations(t *testing.T) {
	fn := &ir.Function{Name: "foo", IsDecl: true}
	require.False(t, ShouldInstrument(fn, ""))
}

func TestShouldInstrumentSkipsRuntimeSymbols(t *testing.T) {
	fn := &ir.Function{Name: "__ct_malloc"}
	require.False(t, ShouldInstrument(fn, ""))
}

func TestShouldInstrumentSkipsWeakAndLinkonce(t *testing.T) {
	require.False(t, ShouldInstrument(&ir.Function{Name: "f", Linkage: "weak_odr"}, ""))
	require.False(t, ShouldInstrument(&ir.Function{Name: "f", Linkage: "linkonce_odr"}, ""))
	require.False(t, ShouldInstrument(&ir.Function{Name: "f", Linkage: "available_externally"}, ""))
}

func TestShouldInstrumentSkipsSystemHeaders(t *testing.T) {
	fn := &ir.Function{Name: "vector_ctor"}
	require.False(t, ShouldInstrument(fn, "/usr/include/c++/v1/vector"))
	require.False(t, ShouldInstrument(fn, "/lib/clang/17/include/stddef.h"))
}

func TestShouldInstrumentAllowsUserCode(t *testing.T) {
	fn := &ir.Function{Name: "compute"}
	require.True(t, ShouldInstrument(fn, "/home/dev/project/main.c"))
}
