package trace

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coretrace/coretrace/internal/runtime/features"
	"github.com/coretrace/coretrace/internal/runtime/logger"
)

func newTracer(t *testing.T) (*Tracer, *bytes.Buffer) {
	t.Cleanup(func() {
		features.Reset()
		logger.Disable()
	})
	features.Reset()
	logger.Disable()
	buf := &bytes.Buffer{}
	logger.SetOutput(buf)
	return &Tracer{}, buf
}

func TestEnterMainEnablesLogging(t *testing.T) {
	tr, buf := newTracer(t)
	require.False(t, logger.Enabled())

	tr.Enter("main")
	require.True(t, logger.Enabled())
	require.Contains(t, buf.String(), "ENTRY-FUNCTION")
	require.Contains(t, buf.String(), "main")
}

func TestEnterNonMainSkippedBeforeLoggingEnabled(t *testing.T) {
	tr, buf := newTracer(t)
	tr.Enter("helper")
	require.False(t, logger.Enabled())
	require.Empty(t, buf.String())
}

func TestBacktraceInstalledOnceOnMainEntry(t *testing.T) {
	tr, _ := newTracer(t)
	installs := 0
	tr.InstallBacktrace = func() bool { installs++; return true }

	tr.Enter("main")
	tr.Enter("main") // second call must not reinstall

	require.Equal(t, 1, installs)
}

func TestExitVariantsFormatValue(t *testing.T) {
	tr, buf := newTracer(t)
	tr.Enter("main")
	buf.Reset()

	tr.ExitVoid("f")
	require.Contains(t, buf.String(), "ret=void")

	buf.Reset()
	tr.ExitI64("f", -7)
	require.Contains(t, buf.String(), "ret=-7")

	buf.Reset()
	tr.ExitPtr("f", 0)
	require.Contains(t, buf.String(), "ret=nullptr")

	buf.Reset()
	tr.ExitPtr("f", 0x1000)
	require.Contains(t, buf.String(), "ret=0x1000")
}

func TestDemangleUsedWhenAvailable(t *testing.T) {
	tr, buf := newTracer(t)
	tr.Demangle = func(name string) (string, bool) {
		if name == "_Z3foov" {
			return "foo()", true
		}
		return "", false
	}
	tr.Enter("main")
	buf.Reset()
	tr.Enter("_Z3foov")
	require.Contains(t, buf.String(), "foo()")
}

func TestDisabledTraceFeatureSuppressesAll(t *testing.T) {
	tr, buf := newTracer(t)
	features.SetEnabled(features.Trace, false)
	tr.Enter("main")
	require.False(t, logger.Enabled())
	require.Empty(t, buf.String())
}
