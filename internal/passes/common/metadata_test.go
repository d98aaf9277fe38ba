package common

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coretrace/coretrace/internal/ir"
)

func TestResolveSiteThroughSubprogramChain(t *testing.T) {
	m := &ir.Module{Metadata: []*ir.MetadataNode{
		{ID: "!1", Text: `!DIFile(filename: "main.c", directory: "/src")`},
		{ID: "!4", Text: `!DISubprogram(name: "main", file: !1, unit: !0)`},
		{ID: "!7", Text: `!DILocation(line: 12, column: 5, scope: !4)`},
	}}
	idx := BuildMetadataIndex(m)
	interner := NewSiteInterner()
	require.Equal(t, "main.c:12:5", ResolveSite(idx, interner, "!7"))
}

func TestResolveSiteThroughLexicalBlockChain(t *testing.T) {
	m := &ir.Module{Metadata: []*ir.MetadataNode{
		{ID: "!1", Text: `!DIFile(filename: "a.c", directory: "/src")`},
		{ID: "!4", Text: `!DISubprogram(name: "f", file: !1, unit: !0)`},
		{ID: "!5", Text: `!DILexicalBlock(scope: !4, file: !1, line: 3)`},
		{ID: "!8", Text: `!DILocation(line: 4, column: 2, scope: !5)`},
	}}
	idx := BuildMetadataIndex(m)
	interner := NewSiteInterner()
	require.Equal(t, "a.c:4:2", ResolveSite(idx, interner, "!8"))
}

func TestResolveSiteMissingChainFallsBackToUnknown(t *testing.T) {
	m := &ir.Module{Metadata: []*ir.MetadataNode{
		{ID: "!9", Text: `!DILocation(line: 1, column: 1, scope: !999)`},
	}}
	idx := BuildMetadataIndex(m)
	interner := NewSiteInterner()
	require.Equal(t, Unknown, ResolveSite(idx, interner, "!9"))
	require.Equal(t, Unknown, ResolveSite(idx, interner, ""))
	require.Equal(t, Unknown, ResolveSite(idx, interner, "!absent"))
}
