package emit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToFileReportsFailureWhenClangMissing(t *testing.T) {
	res := ToFile(context.Background(), "/nonexistent/clang-binary", "define void @f() { ret void }", "/tmp/out.o", Object, nil)
	require.False(t, res.Success)
	require.NotEmpty(t, res.Diagnostics)
}

func TestFormatClangFlag(t *testing.T) {
	require.Equal(t, "-c", Object.clangFlag())
	require.Equal(t, "-S", Assembly.clangFlag())
	require.Equal(t, "-emit-llvm", Bitcode.clangFlag())
}
