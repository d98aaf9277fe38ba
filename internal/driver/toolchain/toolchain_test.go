package toolchain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScanArgsDetectsCxxSourceExtension(t *testing.T) {
	scan := scanArgs([]string{"-c", "foo.cpp", "-o", "foo.o"})
	require.True(t, scan.needsCxxDriver)
}

func TestScanArgsDetectsCxxViaDashX(t *testing.T) {
	scan := scanArgs([]string{"-x", "c++", "foo.txt"})
	require.True(t, scan.needsCxxDriver)
}

func TestScanArgsIgnoresCFile(t *testing.T) {
	scan := scanArgs([]string{"-c", "foo.c"})
	require.False(t, scan.needsCxxDriver)
}

func TestScanArgsRespectsDoubleDash(t *testing.T) {
	scan := scanArgs([]string{"--", "-x", "c++"})
	require.False(t, scan.needsCxxDriver)
}

func TestScanArgsDetectsExplicitDriverMode(t *testing.T) {
	scan := scanArgs([]string{"--driver-mode=g++"})
	require.True(t, scan.hasDriverMode)
}

func TestLoadProjectConfigMissingFileReturnsZeroValue(t *testing.T) {
	cfg, err := LoadProjectConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, ProjectConfig{}, cfg)
}

func TestLoadProjectConfigParsesYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "coretrace.yaml"), []byte(`
resource_dir: /opt/llvm/lib/clang/18
sysroot: /opt/sysroot
default_modules: [alloc, bounds]
`), 0o644))

	cfg, err := LoadProjectConfig(dir)
	require.NoError(t, err)
	require.Equal(t, "/opt/llvm/lib/clang/18", cfg.ResourceDir)
	require.Equal(t, []string{"alloc", "bounds"}, cfg.DefaultModules)
}

func TestProjectConfigApplyDoesNotOverrideExplicitConfig(t *testing.T) {
	cfg := &Config{ResourceDir: "/explicit", AddResourceDir: true}
	ProjectConfig{ResourceDir: "/from-yaml"}.Apply(cfg)
	require.Equal(t, "/explicit", cfg.ResourceDir)
}

func TestOverlayRuntimePathMissingFileReturnsEmpty(t *testing.T) {
	path, err := overlayRuntimePath(t.TempDir())
	require.NoError(t, err)
	require.Empty(t, path)
}

func TestOverlayRuntimePathResolvesRelativeReplace(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "coretrace.mod"), []byte(`module overlay

go 1.21

replace coretrace/runtime => ./build/libctruntime.a
`), 0o644))

	path, err := overlayRuntimePath(dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "build/libctruntime.a"), path)
}
