package main

/*
#include <stdint.h>

// Pass.Config emits these as weak-ODR globals in every instrumented
// translation unit (spec.md §4.6); a program with no instrumented TUs
// at all still links against this archive, so each read must tolerate
// the symbol being entirely absent rather than merely zero.
extern int __ct_config_shadow __attribute__((weak));
extern int __ct_config_shadow_aggressive __attribute__((weak));
extern int __ct_config_bounds_no_abort __attribute__((weak));
extern int __ct_config_disable_alloc __attribute__((weak));
extern int __ct_config_disable_autofree __attribute__((weak));
extern int __ct_config_disable_alloc_trace __attribute__((weak));
extern int __ct_config_vtable_diag __attribute__((weak));

static int ct_read_weak_global(int *sym) {
	if (sym == 0) {
		return 0;
	}
	return *sym;
}
*/
import "C"

import (
	"context"
	"os"

	"github.com/coretrace/coretrace/internal/config"
	"github.com/coretrace/coretrace/internal/runtime/alloctable"
	"github.com/coretrace/coretrace/internal/runtime/autofreegc"
	"github.com/coretrace/coretrace/internal/runtime/boundscheck"
	"github.com/coretrace/coretrace/internal/runtime/features"
	"github.com/coretrace/coretrace/internal/runtime/interceptors"
	"github.com/coretrace/coretrace/internal/runtime/shadow"
	"github.com/coretrace/coretrace/internal/runtime/trace"
)

var (
	table  = alloctable.New()
	shdw   = shadow.New()
	sysAll = sysAllocator{}

	inter = &interceptors.Interceptors{Table: table, Shadow: shdw, Sys: sysAll}
	check = &boundscheck.Checker{Table: table, Shadow: shdw}
	diag  = &trace.VtableDiag{Table: table, Resolver: platformResolver{}}
	trc   = &trace.Tracer{Demangle: cxaDemangle, InstallBacktrace: installBacktraceHandler}
	gc    *autofreegc.GC
)

func readWeakGlobals() map[string]int {
	return map[string]int{
		config.GlobalNames.Shadow:            int(C.ct_read_weak_global(&C.__ct_config_shadow)),
		config.GlobalNames.ShadowAggressive:  int(C.ct_read_weak_global(&C.__ct_config_shadow_aggressive)),
		config.GlobalNames.BoundsNoAbort:     int(C.ct_read_weak_global(&C.__ct_config_bounds_no_abort)),
		config.GlobalNames.DisableAlloc:      int(C.ct_read_weak_global(&C.__ct_config_disable_alloc)),
		config.GlobalNames.DisableAutofree:   int(C.ct_read_weak_global(&C.__ct_config_disable_autofree)),
		config.GlobalNames.DisableAllocTrace: int(C.ct_read_weak_global(&C.__ct_config_disable_alloc_trace)),
		config.GlobalNames.VtableDiag:        int(C.ct_read_weak_global(&C.__ct_config_vtable_diag)),
	}
}

// ctRuntimeInit runs before any instrumented call site can execute,
// via the ct_runtime_ctor constructor and ctRuntimeInitBridge (see
// ctor.go): fold compiled config, then environment overrides, per
// spec.md §6 ("environment overrides the compile-time config globals").
func ctRuntimeInit() {
	features.ApplyCompiledConfig(readWeakGlobals())
	features.ApplyEnv(os.Getenv)

	if max := features.ShadowMaxBytes(); max != 0 {
		shdw.SetMaxBytes(max)
	}

	gc = autofreegc.New(table, processRootScanner{}, sysAll)
	gc.ScanInterior = features.AutofreeScanInterior()
	if budget := features.AutofreeScanBudget(); budget > 0 {
		gc.Budget = budget
	}

	if os.Getenv("CT_AUTOFREE_SCAN") != "" {
		startAutofreeScan()
	}
	// spec.md §4.10: also triggered once at startup when
	// CT_AUTOFREE_SCAN_START is set, independent of the periodic worker.
	if os.Getenv("CT_AUTOFREE_SCAN_START") != "" {
		go gc.Cycle(context.Background())
	}
}
