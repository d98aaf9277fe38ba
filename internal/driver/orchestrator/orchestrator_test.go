package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coretrace/coretrace/internal/driver/toolchain"
)

func TestClassifyDetectsCompileOnlyAction(t *testing.T) {
	a := classify([]string{"-c", "foo.c", "-o", "foo.o"})
	require.False(t, a.isLink)
	require.Equal(t, "foo.c", a.singleTU)
}

func TestClassifyDetectsLinkAction(t *testing.T) {
	a := classify([]string{"foo.o", "bar.o", "-o", "app"})
	require.True(t, a.isLink)
}

func TestClassifyOneStepBuildIsBothCompileAndLink(t *testing.T) {
	a := classify([]string{"foo.c", "-o", "app"})
	require.True(t, a.isLink)
	require.Equal(t, "foo.c", a.singleTU)
}

func TestClassifyDetectsExistingDebugFlag(t *testing.T) {
	a := classify([]string{"-g", "-c", "foo.c"})
	require.True(t, a.hasDebugFlag)
}

func TestRewriteArgsAddsInstrumentationFlagsOnlyWhenInstrumenting(t *testing.T) {
	restore := forceGOOS("linux")
	defer restore()

	act := action{isLink: true}
	out := rewriteArgs([]string{"foo.o"}, toolchain.Config{}, act, true)
	require.Contains(t, out, "-gline-tables-only")
	require.Contains(t, out, "-fno-builtin-malloc")
	require.Contains(t, out, "-fPIE")

	out = rewriteArgs([]string{"foo.o"}, toolchain.Config{}, act, false)
	require.NotContains(t, out, "-gline-tables-only")
}

func TestRewriteArgsSkipsDebugFlagWhenAlreadyPresent(t *testing.T) {
	act := action{isLink: true, hasDebugFlag: true}
	out := rewriteArgs([]string{"-g"}, toolchain.Config{}, act, true)
	require.NotContains(t, out, "-gline-tables-only")
}

func TestRewriteArgsAppendsResolvedToolchainPaths(t *testing.T) {
	tc := toolchain.Config{AddResourceDir: true, ResourceDir: "/opt/res", AddSysroot: true, Sysroot: "/opt/sysroot", ForceCxxDriver: true}
	out := rewriteArgs([]string{"foo.cpp"}, tc, action{}, false)
	require.Contains(t, out, "-resource-dir")
	require.Contains(t, out, "/opt/res")
	require.Contains(t, out, "--driver-mode=g++")
}

func TestLinkExtrasIncludesPieOnLinux(t *testing.T) {
	restore := forceGOOS("linux")
	defer restore()
	extras := linkExtras("/path/libctruntime.a")
	require.Contains(t, extras, "-pie")
	require.Contains(t, extras, "/path/libctruntime.a")
}

func TestLinkExtrasOmitsPieOnDarwin(t *testing.T) {
	restore := forceGOOS("darwin")
	defer restore()
	extras := linkExtras("/path/libctruntime.a")
	require.NotContains(t, extras, "-pie")
}

func TestOutputPathForDefaultsToAOut(t *testing.T) {
	require.Equal(t, "a.out", outputPathFor([]string{"foo.o"}))
	require.Equal(t, "app", outputPathFor([]string{"foo.o", "-o", "app"}))
}

func TestFilterCodegenArgsRemovesEmitLLVMFlags(t *testing.T) {
	out := filterCodegenArgs([]string{"-emit-llvm", "-S", "-O2"})
	require.Equal(t, []string{"-O2"}, out)
}

func TestStripOutputArgsRemovesOAndStopFlags(t *testing.T) {
	out := stripOutputArgs([]string{"-c", "foo.c", "-o", "foo.o"})
	require.Equal(t, []string{"foo.c"}, out)
}

func TestReplaceSourceWithObjectSwapsOnlyTheSourcePath(t *testing.T) {
	out := replaceSourceWithObject([]string{"foo.c", "-o", "app"}, "foo.c", "/tmp/coretrace-123.o")
	require.Equal(t, []string{"/tmp/coretrace-123.o", "-o", "app"}, out)
}

// TestOneStepInstrumentedBuildCompilesBeforeLinking pins down the fix
// for the most common invocation shape: "coretrace foo.c --instrument
// -o app" has no -c/-S/-E/-emit-llvm, so classify reports isLink=true,
// but there is still a cc1 job (singleTU="foo.c") that must be
// instrumented before anything links — act.isLink alone must never
// gate the instrumentation pipeline off.
func TestOneStepInstrumentedBuildCompilesBeforeLinking(t *testing.T) {
	act := classify([]string{"foo.c", "-o", "app"})
	require.True(t, act.isLink)
	require.NotEmpty(t, act.singleTU, "a one-step build still has a compile unit to instrument")
}

func forceGOOS(goos string) func() {
	old := runtimeGOOS
	runtimeGOOS = func() string { return goos }
	return func() { runtimeGOOS = old }
}
