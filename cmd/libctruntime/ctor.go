package main

/*
// Runs before any instrumented translation unit's own static
// initializers, same guarantee original_source relies on for its
// runtime globals: a compiler-driver-linked archive must be ready by
// the time the first instrumented call site executes, which can be
// another library's own constructor.
__attribute__((constructor))
static void ct_runtime_ctor(void) {
	extern void ctRuntimeInitBridge(void);
	ctRuntimeInitBridge();
}
*/
import "C"

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/coretrace/coretrace/internal/runtime/features"
)

//export ctRuntimeInitBridge
func ctRuntimeInitBridge() {
	ctRuntimeInit()
}

// startAutofreeScan launches the periodic collector spec.md §5
// describes, at the interval named by CT_AUTOFREE_SCAN (milliseconds),
// defaulting to 100ms when the value doesn't parse.
// CT_AUTOFREE_SCAN_INTERVAL_MS/CT_AUTOFREE_SCAN_PERIOD_{NS,US,MS}, if
// set, override that interval (features.ApplyEnv already parsed them
// into features.AutofreeScanPeriod at ctRuntimeInit time).
func startAutofreeScan() {
	interval := 100 * time.Millisecond
	if ms, err := strconv.Atoi(os.Getenv("CT_AUTOFREE_SCAN")); err == nil && ms > 0 {
		interval = time.Duration(ms) * time.Millisecond
	}
	if p := features.AutofreeScanPeriod(); p > 0 {
		interval = p
	}
	go gc.Run(context.Background(), interval)
}
