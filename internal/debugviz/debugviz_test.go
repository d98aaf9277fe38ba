package debugviz

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-graphviz"
	"github.com/stretchr/testify/require"

	"github.com/coretrace/coretrace/internal/ir"
)

func TestRenderFunctionWritesFileForFunctionWithAllocationSites(t *testing.T) {
	m := ir.Parse(`define void @foo() {
entry:
  %1 = call i8* @malloc(i64 16)
  ret void
}`)
	dir := t.TempDir()
	out := filepath.Join(dir, "foo.xdot")

	err := RenderFunction(m.Functions[0], graphviz.XDOT, out)
	require.NoError(t, err)

	info, err := os.Stat(out)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestRenderModuleSkipsFunctionsWithoutAllocationSites(t *testing.T) {
	m := ir.Parse(`define void @bar() {
entry:
  ret void
}`)
	dir := t.TempDir()

	err := RenderModule(m, graphviz.XDOT, dir)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}
