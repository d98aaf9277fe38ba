// Package logger implements Runtime.Logger: level/colour/prefix
// formatting with atomic writes to stderr, gated by a single enabled
// flag (spec.md §3, §4.11, §5, §9).
//
// Grounded on original_source/src/runtime/ct_runtime_logging.cpp, which
// hand-rolls string formatting (ct_write_dec/ct_write_hex) to stay
// allocation-free and signal-safe, and caches an isatty(2)/NO_COLOR
// check once per process. This package keeps the same prefix shape
// ("|pid| ==ct== [LEVEL] ") and the same "log disabled by default until
// main() runs, forcibly disabled again at exit" lifecycle, but uses
// ordinary fmt formatting (CoreTrace's runtime need not be signal-safe —
// only the backtrace handler in internal/runtime/trace is, and it writes
// raw bytes directly) and golang.org/x/term for the TTY check, matching
// sakateka-yanet2's use of the same package for terminal detection.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/term"
)

// Level is a log severity, matching original_source's CTLevel.
type Level int

const (
	Info Level = iota
	Warn
	Error
)

func (l Level) label() string {
	switch l {
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "?"
	}
}

// ANSI escapes, mirrors ct_color's CTColor enum for the subset this
// package uses.
const (
	reset  = "\x1b[0m"
	dim    = "\x1b[2m"
	italic = "\x1b[3m"
	gray   = "\x1b[90m"
	red    = "\x1b[31m"
	yellow = "\x1b[33m"
	cyan   = "\x1b[36m"
)

func (l Level) color() string {
	switch l {
	case Info:
		return cyan
	case Warn:
		return yellow
	case Error:
		return red
	default:
		return reset
	}
}

var (
	mu      sync.Mutex
	out     io.Writer = os.Stderr
	enabled atomic.Bool
	color   atomic.Int32 // 0 unknown, -1 off, 1 on
)

// Enable turns logging on. Called when instrumented code enters main(),
// per spec.md §4.11.
func Enable() { enabled.Store(true) }

// Disable turns logging off. Called forcibly at process teardown after
// the leak report is emitted, per spec.md §9.
func Disable() { enabled.Store(false) }

// Enabled reports the current logging state.
func Enabled() bool { return enabled.Load() }

// SetOutput redirects log output; used by tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// useColor caches an isatty(stderr)/NO_COLOR check, matching
// ct_use_color's static cache-on-first-call behavior.
func useColor() bool {
	if v := color.Load(); v != 0 {
		return v == 1
	}
	on := os.Getenv("NO_COLOR") == "" && term.IsTerminal(int(os.Stderr.Fd()))
	if on {
		color.Store(1)
	} else {
		color.Store(-1)
	}
	return on
}

// ResetColorCache is exposed for tests that toggle NO_COLOR.
func ResetColorCache() { color.Store(0) }

// prefix builds "|pid| ==ct== [LEVEL] ", colored when useColor().
func prefix(level Level) string {
	if !useColor() {
		return fmt.Sprintf("|%d| ==ct== [%s] ", os.Getpid(), level.label())
	}
	return fmt.Sprintf("%s|%d|%s %s%s==ct== %s%s[%s]%s ",
		dim, os.Getpid(), reset,
		gray, italic, reset,
		level.color(), level.label(), reset)
}

// Log writes one formatted, prefixed line if logging is enabled. Output
// is serialized through a single mutex, matching spec.md §5's "process-
// wide writer with atomic write(2) calls" — one Fprint call per line.
func Log(level Level, format string, args ...any) {
	if !enabled.Load() {
		return
	}
	ForceLog(level, format, args...)
}

// ForceLog writes one formatted, prefixed line unconditionally, ignoring
// Enabled(). The leak-report destructor calls this: original_source's
// ct_report_leaks disables further logging via ct_disable_logging() and
// then writes the report through the raw ct_write_* primitives, which
// never consulted the enabled flag to begin with.
func ForceLog(level Level, format string, args ...any) {
	line := prefix(level) + fmt.Sprintf(format, args...)
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintln(out, line)
}
