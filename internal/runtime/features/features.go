// Package features holds the runtime's process-wide feature-flag state:
// an atomic bitmask folding compiled __ct_config_* globals with
// CT_*-prefixed environment overrides, per spec.md §5's "feature flags
// are atomic integers with relaxed ordering."
//
// Grounded on original_source/src/runtime/ct_runtime_state.cpp, whose
// std::atomic<uint64_t> feature mask plus a handful of side-channel
// atomics (bounds-abort, early-trace budget) this package reproduces
// with sync/atomic.
package features

import (
	"sync/atomic"
	"time"
)

// Bit is one flag in the feature mask.
type Bit uint64

const (
	Trace Bit = 1 << iota
	Alloc
	Bounds
	Shadow
	ShadowAggr
	Autofree
	AllocTrace
	VtableDiag
	VcallTrace
	EarlyTrace
)

// Default matches original_source's kDefaultFeatures: trace, alloc,
// bounds, autofree, and alloc-trace on; shadow and vtable diagnostics
// off until a compiled global or environment variable asks for them.
const Default = Trace | Alloc | Bounds | Autofree | AllocTrace

var mask atomic.Uint64

func init() {
	mask.Store(uint64(Default))
}

// IsEnabled reports whether any bit set in feature is currently set in
// the mask; callers pass a single Bit.
func IsEnabled(feature Bit) bool {
	return mask.Load()&uint64(feature) != 0
}

// SetEnabled sets or clears feature in the mask.
func SetEnabled(feature Bit, enabled bool) {
	if enabled {
		mask.Or(uint64(feature))
		return
	}
	mask.And(^uint64(feature))
}

// Snapshot returns the raw mask, for diagnostics and tests.
func Snapshot() uint64 { return mask.Load() }

// Reset restores the default mask. Used by tests and by the runtime's
// teardown hook is NOT expected to call this — teardown only disables
// logging, per spec.md §9.
func Reset() { mask.Store(uint64(Default)) }

var (
	boundsAbort     atomic.Bool
	earlyTraceCount atomic.Uint64
	earlyTraceLimit atomic.Uint64
	shadowMaxBytes  atomic.Uint64
)

// ShadowMaxBytes returns the configured cap on Runtime.Shadow's page
// data, or 0 for unlimited.
func ShadowMaxBytes() uint64 { return shadowMaxBytes.Load() }

// SetShadowMaxBytes sets the cap ApplyEnv's CT_SHADOW_MAX_BYTES parses;
// cmd/libctruntime reads it back after ApplyEnv to configure the actual
// shadow.Map instance, since this package tracks feature state but
// never holds a reference to the runtime's other components.
func SetShadowMaxBytes(n uint64) { shadowMaxBytes.Store(n) }

func init() {
	boundsAbort.Store(true)
	earlyTraceLimit.Store(200)
}

// BoundsAbortEnabled reports whether a bounds violation should abort the
// process (true) or merely log and continue (false), per spec.md §4.9.
func BoundsAbortEnabled() bool { return boundsAbort.Load() }

// SetBoundsAbort sets the abort-on-violation policy.
func SetBoundsAbort(enabled bool) { boundsAbort.Store(enabled) }

var (
	autofreeScanStack    atomic.Bool
	autofreeScanRegs     atomic.Bool
	autofreeScanGlobals  atomic.Bool
	autofreeScanInterior atomic.Bool
	autofreeScanPtr      atomic.Bool
	autofreeScanPeriodNs atomic.Int64
	autofreeScanBudgetNs atomic.Int64
	debugAutofree        atomic.Bool
	debugAutofreeScan    atomic.Bool
)

func init() {
	autofreeScanStack.Store(true)
	autofreeScanRegs.Store(true)
	autofreeScanGlobals.Store(true)
}

// AutofreeScanStack, AutofreeScanRegs, and AutofreeScanGlobals report
// which of Runtime.AutofreeGC's three root sources (spec.md §4.10) the
// mark phase scans; all three default to on, matching the algorithm
// description, and CT_AUTOFREE_SCAN_{STACK,REGS,GLOBALS}=0 opts a source
// out.
func AutofreeScanStack() bool   { return autofreeScanStack.Load() }
func AutofreeScanRegs() bool    { return autofreeScanRegs.Load() }
func AutofreeScanGlobals() bool { return autofreeScanGlobals.Load() }

func SetAutofreeScanStack(v bool)   { autofreeScanStack.Store(v) }
func SetAutofreeScanRegs(v bool)    { autofreeScanRegs.Store(v) }
func SetAutofreeScanGlobals(v bool) { autofreeScanGlobals.Store(v) }

// AutofreeScanInterior reports whether a marked root that merely points
// inside a live allocation (rather than at its start) also marks it,
// per spec.md §4.10's "scan_interior" knob.
func AutofreeScanInterior() bool     { return autofreeScanInterior.Load() }
func SetAutofreeScanInterior(v bool) { autofreeScanInterior.Store(v) }

// AutofreeScanPtr reports whether CT_AUTOFREE_SCAN_PTR's single-shot
// pointer scan (spec.md §4.10) runs before every explicit
// __ct_autofree* release.
func AutofreeScanPtr() bool     { return autofreeScanPtr.Load() }
func SetAutofreeScanPtr(v bool) { autofreeScanPtr.Store(v) }

// AutofreeScanPeriod is the detached worker's sleep interval between
// cycles (spec.md §4.10's cadence), 0 meaning "use the caller's
// default". SetAutofreeScanPeriod is what ApplyEnv's
// CT_AUTOFREE_SCAN_INTERVAL_MS/CT_AUTOFREE_SCAN_PERIOD_{NS,US,MS}
// parsing feeds.
func AutofreeScanPeriod() time.Duration     { return time.Duration(autofreeScanPeriodNs.Load()) }
func SetAutofreeScanPeriod(d time.Duration) { autofreeScanPeriodNs.Store(int64(d)) }

// AutofreeScanBudget is the mark-phase time budget CT_AUTOFREE_SCAN_
// BUDGET_{NS,US,MS} overrides, 0 meaning "use autofreegc.DefaultBudget".
func AutofreeScanBudget() time.Duration     { return time.Duration(autofreeScanBudgetNs.Load()) }
func SetAutofreeScanBudget(d time.Duration) { autofreeScanBudgetNs.Store(int64(d)) }

// DebugAutofreeEnabled and DebugAutofreeScanEnabled report the
// CT_DEBUG_AUTOFREE and CT_DEBUG_AUTOFREE_SCAN settings. No runtime code
// reads them, so they add no logging of their own.
func DebugAutofreeEnabled() bool     { return debugAutofree.Load() }
func SetDebugAutofree(v bool)        { debugAutofree.Store(v) }
func DebugAutofreeScanEnabled() bool { return debugAutofreeScan.Load() }
func SetDebugAutofreeScan(v bool)    { debugAutofreeScan.Store(v) }

// EarlyTraceShouldLog implements the early-trace budget: at most
// earlyTraceLimit trace-enter events are logged before main() runs and
// full logging is enabled, matching ct_early_trace_should_log's
// compare-and-swap loop in original_source.
func EarlyTraceShouldLog() bool {
	if !IsEnabled(EarlyTrace) {
		return false
	}
	limit := earlyTraceLimit.Load()
	for {
		cur := earlyTraceCount.Load()
		if cur >= limit {
			return false
		}
		if earlyTraceCount.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// ResetEarlyTraceBudget is exposed for tests.
func ResetEarlyTraceBudget() { earlyTraceCount.Store(0) }
