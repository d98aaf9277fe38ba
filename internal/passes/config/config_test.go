package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/coretrace/coretrace/internal/config"
	"github.com/coretrace/coretrace/internal/ir"
)

func TestDefaultsBeforeAnyCtFlag(t *testing.T) {
	res := Parse([]string{"-c", "main.c"})
	require.Equal(t, []string{"-c", "main.c"}, res.Remaining)
	require.True(t, res.Config.Alloc)
	require.True(t, res.Config.Bounds)
	require.True(t, res.Config.AllocTrace)
	require.True(t, res.Config.Autofree)
	require.False(t, res.Config.Trace)
}

func TestModulesResetsBeforeSelecting(t *testing.T) {
	res := Parse([]string{"--ct-modules=trace,vtable"})
	require.True(t, res.Config.Trace)
	require.True(t, res.Config.Vtable)
	require.False(t, res.Config.Alloc)
	require.False(t, res.Config.Bounds)
}

func TestModulesAllEnablesEverything(t *testing.T) {
	res := Parse([]string{"--ct-modules=all"})
	require.True(t, res.Config.Trace)
	require.True(t, res.Config.Alloc)
	require.True(t, res.Config.Bounds)
	require.True(t, res.Config.Vtable)
}

func TestModulesUnknownTokenCollected(t *testing.T) {
	res := Parse([]string{"--ct-modules=trace,bogus"})
	require.Equal(t, []string{"bogus"}, res.Unknown)
}

func TestShadowVariants(t *testing.T) {
	require.True(t, Parse([]string{"--ct-shadow"}).Config.Shadow)

	agg := Parse([]string{"--ct-shadow=aggressive"})
	require.True(t, agg.Config.Shadow)
	require.True(t, agg.Config.ShadowAggressive)

	agg2 := Parse([]string{"--ct-shadow-aggressive"})
	require.True(t, agg2.Config.Shadow)
	require.True(t, agg2.Config.ShadowAggressive)
}

func TestBoundsNoAbort(t *testing.T) {
	require.True(t, Parse([]string{"--ct-bounds-no-abort"}).Config.BoundsNoAbort)
}

func TestShadowMaxBytesParsesHumanSize(t *testing.T) {
	res := Parse([]string{"--ct-shadow-max-bytes=64MB"})
	require.NotZero(t, res.Config.ShadowMaxBytes)
	require.Empty(t, res.Remaining)
}

func TestShadowMaxBytesIgnoresUnparseableValue(t *testing.T) {
	res := Parse([]string{"--ct-shadow-max-bytes=not-a-size"})
	require.Zero(t, res.Config.ShadowMaxBytes)
}

func TestToggleFamilyEnableAndDisable(t *testing.T) {
	res := Parse([]string{"--ct-no-alloc", "--ct-trace", "--ct-no-autofree", "--ct-vtable-diag"})
	require.False(t, res.Config.Alloc)
	require.True(t, res.Config.Trace)
	require.False(t, res.Config.Autofree)
	require.True(t, res.Config.VtableDiag)
}

func TestInstrumentAndInMemoryFlags(t *testing.T) {
	res := Parse([]string{"--instrument", "--in-mem", "-c", "a.c"})
	require.True(t, res.Instrument)
	require.True(t, res.InMemory)
	require.Equal(t, []string{"-c", "a.c"}, res.Remaining)

	res2 := Parse([]string{"--in-memory"})
	require.True(t, res2.InMemory)
}

func TestHelpFlags(t *testing.T) {
	require.True(t, Parse([]string{"-h"}).Help)
	require.True(t, Parse([]string{"--help"}).Help)
}

func TestDoubleDashStopsParsingCtFlags(t *testing.T) {
	res := Parse([]string{"-c", "--", "--ct-trace", "main.c"})
	require.Equal(t, []string{"-c", "--ct-trace", "main.c"}, res.Remaining)
	require.False(t, res.Config.Trace)
}

func TestCtFlagsStrippedFromRemaining(t *testing.T) {
	res := Parse([]string{"--ct-trace", "-c", "--ct-shadow", "main.c"})
	require.Equal(t, []string{"-c", "main.c"}, res.Remaining)
}

func TestEmitGlobalsSortedAndPolarityFlipped(t *testing.T) {
	res := Parse([]string{"--ct-no-alloc"})
	m := &ir.Module{}
	EmitGlobals(m, res.Config)

	require.Len(t, m.Globals, 7)
	for i := 1; i < len(m.Globals); i++ {
		require.Less(t, m.Globals[i-1].Name, m.Globals[i].Name)
	}

	var disableAlloc *ir.Global
	for _, g := range m.Globals {
		if g.Name == "__ct_config_disable_alloc" {
			disableAlloc = g
		}
		require.Equal(t, "weak_odr", g.Linkage)
		require.Equal(t, "i32", g.Type)
		require.True(t, g.Modified)
	}
	require.NotNil(t, disableAlloc)
	require.Equal(t, "1", disableAlloc.Init)
}

// TestModulesAllMatchesGoldenConfig golden-diffs the --ct-modules=all
// result against an explicit RuntimeConfig literal, the same
// structural-diff shape sakateka-yanet2's own golden-config tests use
// go-cmp for, rather than field-by-field require.Equal assertions.
func TestModulesAllMatchesGoldenConfig(t *testing.T) {
	res := Parse([]string{"--ct-modules=all"})

	want := config.Default()
	want.Trace = true
	want.Alloc = true
	want.Bounds = true
	want.Vtable = true

	if diff := cmp.Diff(want, res.Config); diff != "" {
		t.Errorf("RuntimeConfig mismatch (-want +got):\n%s", diff)
	}
}
