package features

import (
	"strconv"
	"time"

	"github.com/c2h5oh/datasize"

	"github.com/coretrace/coretrace/internal/config"
)

// ApplyCompiledConfig folds the weak __ct_config_* globals emitted by
// Pass.Config into the feature mask, mirroring
// ct_runtime_env.cpp:ct_apply_compiled_config. The cgo layer
// (cmd/libctruntime) is responsible for reading the actual weak symbols
// and building this map; a missing (unlinked-weak) global reads as 0,
// which this function treats as "no override" for every flag.
func ApplyCompiledConfig(globals map[string]int) {
	get := func(name string) bool { return globals[name] != 0 }

	if get(config.GlobalNames.Shadow) || get(config.GlobalNames.ShadowAggressive) {
		SetEnabled(Shadow, true)
	}
	if get(config.GlobalNames.ShadowAggressive) {
		SetEnabled(ShadowAggr, true)
	}
	if get(config.GlobalNames.BoundsNoAbort) {
		SetBoundsAbort(false)
	}
	if get(config.GlobalNames.DisableAlloc) {
		SetEnabled(Alloc, false)
	}
	if get(config.GlobalNames.DisableAutofree) {
		SetEnabled(Autofree, false)
	}
	if get(config.GlobalNames.DisableAllocTrace) {
		SetEnabled(AllocTrace, false)
	}
	if get(config.GlobalNames.VtableDiag) {
		SetEnabled(VtableDiag, true)
	}
}

// Getenv is the subset of os.Getenv this package needs; kept as an
// injectable function so tests can exercise ApplyEnv without touching
// process environment.
type Getenv func(key string) string

// ApplyEnv folds the CT_* environment variables from spec.md §6 into the
// feature mask. Environment overrides compiled config, per spec.md §6:
// "Environment overrides the compile-time config globals."
func ApplyEnv(getenv Getenv) {
	set := func(key string) bool { return getenv(key) != "" }

	if set("CT_DISABLE_TRACE") {
		SetEnabled(Trace, false)
	}
	if set("CT_DISABLE_ALLOC") {
		SetEnabled(Alloc, false)
	}
	if set("CT_EARLY_TRACE") {
		SetEnabled(EarlyTrace, true)
	}
	if set("CT_DISABLE_BOUNDS") {
		SetEnabled(Bounds, false)
	}
	if set("CT_BOUNDS_NO_ABORT") {
		SetBoundsAbort(false)
	}
	if set("CT_SHADOW") {
		SetEnabled(Shadow, true)
	}
	if set("CT_SHADOW_AGGRESSIVE") {
		SetEnabled(Shadow, true)
		SetEnabled(ShadowAggr, true)
	}
	if set("CT_DISABLE_AUTOFREE") {
		SetEnabled(Autofree, false)
	}
	if set("CT_DISABLE_ALLOC_TRACE") {
		SetEnabled(AllocTrace, false)
	}
	if raw := getenv("CT_SHADOW_MAX_BYTES"); raw != "" {
		var v datasize.ByteSize
		if err := v.UnmarshalText([]byte(raw)); err == nil {
			SetShadowMaxBytes(v.Bytes())
		}
	}

	SetAutofreeScanStack(boolEnvDefault(getenv, "CT_AUTOFREE_SCAN_STACK", true))
	SetAutofreeScanRegs(boolEnvDefault(getenv, "CT_AUTOFREE_SCAN_REGS", true))
	SetAutofreeScanGlobals(boolEnvDefault(getenv, "CT_AUTOFREE_SCAN_GLOBALS", true))
	SetAutofreeScanInterior(boolEnvDefault(getenv, "CT_AUTOFREE_SCAN_INTERIOR", false))
	SetAutofreeScanPtr(boolEnvDefault(getenv, "CT_AUTOFREE_SCAN_PTR", false))
	SetDebugAutofree(boolEnvDefault(getenv, "CT_DEBUG_AUTOFREE", false))
	SetDebugAutofreeScan(boolEnvDefault(getenv, "CT_DEBUG_AUTOFREE_SCAN", false))

	if ms, ok := parseIntEnv(getenv, "CT_AUTOFREE_SCAN_INTERVAL_MS"); ok {
		SetAutofreeScanPeriod(time.Duration(ms) * time.Millisecond)
	}
	if d, ok := parseDurationEnv(getenv, "CT_AUTOFREE_SCAN_PERIOD"); ok {
		SetAutofreeScanPeriod(d)
	}
	if d, ok := parseDurationEnv(getenv, "CT_AUTOFREE_SCAN_BUDGET"); ok {
		SetAutofreeScanBudget(d)
	}
}

// boolEnvDefault parses an opt-in/opt-out CT_* boolean variable: unset
// keeps def, and any set value other than "0" counts as true — the same
// "presence means true" convention every other CT_* toggle in this file
// uses, extended with an explicit off value so an opt-out knob like
// CT_AUTOFREE_SCAN_STACK (default on) can actually be turned off.
func boolEnvDefault(getenv Getenv, key string, def bool) bool {
	v := getenv(key)
	if v == "" {
		return def
	}
	return v != "0"
}

func parseIntEnv(getenv Getenv, key string) (int64, bool) {
	v := getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// parseDurationEnv tries prefix+"_NS", then "_US", then "_MS", per
// spec.md §6's CT_AUTOFREE_SCAN_PERIOD_{NS,US,MS} and
// CT_AUTOFREE_SCAN_BUDGET_{NS,US,MS} triples.
func parseDurationEnv(getenv Getenv, prefix string) (time.Duration, bool) {
	if n, ok := parseIntEnv(getenv, prefix+"_NS"); ok {
		return time.Duration(n), true
	}
	if n, ok := parseIntEnv(getenv, prefix+"_US"); ok {
		return time.Duration(n) * time.Microsecond, true
	}
	if n, ok := parseIntEnv(getenv, prefix+"_MS"); ok {
		return time.Duration(n) * time.Millisecond, true
	}
	return 0, false
}
