// Package trace implements Runtime.Trace: function entry/exit tracing,
// the main()-entry logging-enable/backtrace-install hook, and the
// virtual-call/vtable diagnostic (spec.md §4.11).
//
// Grounded on original_source/src/runtime/ct_runtime_trace.cpp and
// ct_runtime_backtrace.cpp.
package trace

import (
	"fmt"
	"sync/atomic"

	"github.com/coretrace/coretrace/internal/runtime/features"
	"github.com/coretrace/coretrace/internal/runtime/logger"
)

// Demangler resolves a possibly-mangled C++ symbol to its human-readable
// form; cmd/libctruntime wires this to __cxa_demangle via cgo. A nil
// Demangler (or one reporting !ok) falls back to the raw name, matching
// ct_demangle's own "leave name untouched if demangling fails" contract.
type Demangler func(name string) (demangled string, ok bool)

// BacktraceInstaller installs the process-wide fatal-signal handler
// (SIGSEGV/ABRT/BUS/ILL, best-effort symbolized backtrace, _exit(128+signo))
// described in spec.md §4.11. It reports whether it actually installed
// anything (false if CT_BACKTRACE is unset). The pure-Go tracer only
// decides *when* to attempt installation, once, on first entry to main;
// cmd/libctruntime supplies the real sigaction-based implementation.
type BacktraceInstaller func() bool

// Tracer owns the state __ct_trace_enter/__ct_trace_exit_* mutate:
// whether logging has been turned on yet, and whether the backtrace
// handler has been installed.
type Tracer struct {
	Demangle           Demangler
	InstallBacktrace   BacktraceInstaller
	backtraceAttempted atomic.Bool
}

func (t *Tracer) demangle(name string) (string, bool) {
	if t.Demangle == nil {
		return "", false
	}
	return t.Demangle(name)
}

func (t *Tracer) maybeInstallBacktrace() {
	if t.InstallBacktrace == nil {
		return
	}
	if t.backtraceAttempted.CompareAndSwap(false, true) {
		if t.InstallBacktrace() {
			logger.Log(logger.Info, "ct: backtrace handler installed")
		}
	}
}

// Enter implements __ct_trace_enter(name): bumps the early-trace quota,
// and on entering "main" enables logging and attempts the backtrace
// handler install. Once logging is enabled it logs an entry line,
// demangled when possible.
func (t *Tracer) Enter(name string) {
	if name == "" {
		return
	}
	if !features.IsEnabled(features.Trace) {
		return
	}

	if features.EarlyTraceShouldLog() {
		logger.ForceLog(logger.Info, "ct: enter %s", name)
	}

	if !logger.Enabled() {
		if name != "main" {
			return
		}
		logger.Enable()
		t.maybeInstallBacktrace()
	}

	if demangled, ok := t.demangle(name); ok {
		logger.Log(logger.Info, "[ENTRY-FUNCTION]: -> %s, %s", name, demangled)
	} else {
		logger.Log(logger.Info, "[ENTRY-FUNCTION]: -> %s", name)
	}
}

func (t *Tracer) logExit(name, retValue string) {
	if name == "" || !features.IsEnabled(features.Trace) || !logger.Enabled() {
		return
	}
	if demangled, ok := t.demangle(name); ok {
		logger.Log(logger.Info, "[EXIT-FUNCTION]: <- %s, %s ret=%s", name, demangled, retValue)
	} else {
		logger.Log(logger.Info, "[EXIT-FUNCTION]: <- %s ret=%s", name, retValue)
	}
}

// ExitVoid implements __ct_trace_exit_void.
func (t *Tracer) ExitVoid(name string) { t.logExit(name, "void") }

// ExitI64 implements __ct_trace_exit_i64.
func (t *Tracer) ExitI64(name string, value int64) { t.logExit(name, fmt.Sprintf("%d", value)) }

// ExitPtr implements __ct_trace_exit_ptr.
func (t *Tracer) ExitPtr(name string, value uintptr) {
	if value == 0 {
		t.logExit(name, "nullptr")
		return
	}
	t.logExit(name, fmt.Sprintf("%#x", value))
}

// ExitF64 implements __ct_trace_exit_f64.
func (t *Tracer) ExitF64(name string, value float64) {
	t.logExit(name, fmt.Sprintf("%g", value))
}

// ExitUnknown implements __ct_trace_exit_unknown for aggregate/vector
// return types Pass.Trace can't derive a scalar formatter for.
func (t *Tracer) ExitUnknown(name string) { t.logExit(name, "<non-scalar>") }
