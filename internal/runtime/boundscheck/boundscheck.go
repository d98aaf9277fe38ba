// Package boundscheck implements Runtime.BoundsCheck: the
// __ct_check_bounds entry point that Pass.Bounds calls before every
// instrumented memory access (spec.md §4.9).
//
// Grounded on original_source/src/runtime/ct_runtime_bounds.cpp.
package boundscheck

import (
	"github.com/coretrace/coretrace/internal/runtime/alloctable"
	"github.com/coretrace/coretrace/internal/runtime/features"
	"github.com/coretrace/coretrace/internal/runtime/logger"
	"github.com/coretrace/coretrace/internal/runtime/shadow"
)

// Checker owns the alloc table and shadow map that BoundsCheck consults.
// The runtime process wires up a single process-wide Checker; tests
// construct fresh ones for isolation.
type Checker struct {
	Table  *alloctable.Table
	Shadow *shadow.Map
}

func siteName(site string) string {
	if site == "" {
		return "<unknown>"
	}
	return site
}

// Check implements __ct_check_bounds(base, ptr, access_size, site,
// is_write). base and ptr are addresses in the instrumented program's
// address space; this package treats them as opaque uintptr values since
// CoreTrace's runtime never dereferences them itself.
func (c *Checker) Check(base, ptr uintptr, accessSize uint64, site string, isWrite bool) {
	if !features.IsEnabled(features.Bounds) {
		return
	}
	if ptr == 0 || accessSize == 0 || base == 0 {
		return
	}

	entry, found := c.Table.Lookup(base)
	allocBase := base
	if !found && features.IsEnabled(features.Shadow) && features.IsEnabled(features.ShadowAggr) {
		if e, ok := c.Table.LookupContaining(ptr); ok {
			entry, found, allocBase = e, true, e.Ptr
		}
	}
	if !found {
		return
	}

	if entry.State == alloctable.Freed && !features.IsEnabled(features.Shadow) {
		c.report(allocBase, ptr, accessSize, site, isWrite, entry)
		return
	}

	if features.IsEnabled(features.Shadow) {
		if c.Shadow.CheckAccess(ptr, uintptr(accessSize)) {
			c.report(allocBase, ptr, accessSize, site, isWrite, entry)
		}
		return
	}

	boundSize := entry.ReqSize
	if boundSize == 0 {
		boundSize = entry.RealSize
	}

	var oob bool
	var offset uint64
	if ptr < allocBase {
		oob = true
	} else {
		offset = uint64(ptr - allocBase)
		if offset > boundSize || accessSize > boundSize-offset {
			oob = true
		}
	}
	if oob {
		c.report(allocBase, ptr, accessSize, site, isWrite, entry)
	}
}

// report formats and logs a bounds diagnostic, then aborts unless
// bounds_no_abort is set, per spec.md §4.9 and §7.
func (c *Checker) report(base, ptr uintptr, accessSize uint64, site string, isWrite bool, entry alloctable.Entry) {
	kind := "heap-buffer-overflow"
	if entry.State == alloctable.Freed {
		kind = "heap-use-after-free"
	}

	access := "READ"
	if isWrite {
		access = "WRITE"
	}

	var signedOffset int64
	if ptr >= base {
		signedOffset = int64(ptr - base)
	} else {
		signedOffset = -int64(base - ptr)
	}

	reportSize := entry.ReqSize
	if reportSize == 0 {
		reportSize = entry.RealSize
	}

	logger.Log(logger.Error,
		"ct: %s %s of size %d\n  access=%s ptr=%#x offset=%d\n  alloc_size=%d alloc_site=%s base=%#x",
		kind, access, accessSize, siteName(site), ptr, signedOffset,
		reportSize, siteName(entry.Site), base)

	if entry.RealSize != reportSize {
		logger.Log(logger.Error, "  usable_size=%d", entry.RealSize)
	}

	if features.BoundsAbortEnabled() {
		abortHook()
	}
}

// abortHook is a package variable rather than a direct os.Exit/panic
// call so tests can observe an abort without terminating the test
// process, matching the driver's "no exceptions" propagation policy
// (spec.md §7) — bounds violations are diagnostic events, not Go panics.
var abortHook = defaultAbort

func defaultAbort() { panic("ct: aborting due to bounds violation") }

// SetAbortHookForTest overrides the abort action; restoring nil resets
// to the default panic-based abort.
func SetAbortHookForTest(fn func()) {
	if fn == nil {
		abortHook = defaultAbort
		return
	}
	abortHook = fn
}
