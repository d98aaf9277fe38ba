package main

/*
#include <signal.h>
#include <unistd.h>
#include <sys/syscall.h>
#include <dirent.h>
#include <stdlib.h>
#include <string.h>

static pid_t ct_gettid(void) { return (pid_t)syscall(SYS_gettid); }

// ct_signal_other_threads sends sig to every task under /proc/self/task
// except the caller. Used for both SIGSTOP (suspend) and SIGCONT
// (resume); best-effort, matching spec.md §9's "abstract capability"
// framing rather than a hard guarantee no thread is missed mid-clone.
static int ct_signal_other_threads(int sig) {
	pid_t self = ct_gettid();
	DIR *d = opendir("/proc/self/task");
	if (!d) {
		return -1;
	}
	struct dirent *e;
	int signaled = 0;
	while ((e = readdir(d)) != NULL) {
		if (e->d_name[0] < '0' || e->d_name[0] > '9') {
			continue;
		}
		pid_t tid = (pid_t)atoi(e->d_name);
		if (tid == self || tid == 0) {
			continue;
		}
		if (syscall(SYS_tgkill, getpid(), tid, sig) == 0) {
			signaled++;
		}
	}
	closedir(d);
	return signaled;
}
*/
import "C"

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"strings"
	"unsafe"

	"github.com/coretrace/coretrace/internal/runtime/features"
)

// processRootScanner implements autofreegc.RootScanner on Linux: it
// SIGSTOPs every other thread of the process, walks /proc/self/maps for
// writable, non-file-backed regions (heap, bss, thread stacks — the
// same "conservative root set" original_source's CT_AUTOFREE_SCAN
// design note describes), and SIGCONTs on resume.
//
// CT_AUTOFREE_SCAN_STACK and CT_AUTOFREE_SCAN_GLOBALS (spec.md §6) gate
// whether Roots includes `[stack...]` mappings and anonymous heap/bss-
// like mappings respectively. CT_AUTOFREE_SCAN_REGS has no effect here:
// registers are never scanned on this platform, since a Go binary
// linking this archive keeps no untracked host-language locals live the
// way only-register-resident C++ locals would be — the toggle exists in
// internal/runtime/features for a RootScanner that does capture them.
//
// This is deliberately conservative and Linux-specific: spec.md §9
// scopes the exact suspend mechanism as a platform capability rather
// than a portability requirement.
type processRootScanner struct{}

func (processRootScanner) Suspend(ctx context.Context) (func(), error) {
	C.ct_signal_other_threads(C.SIGSTOP)
	return func() {
		C.ct_signal_other_threads(C.SIGCONT)
	}, nil
}

func (processRootScanner) Roots() []uintptr {
	f, err := os.Open("/proc/self/maps")
	if err != nil {
		return nil
	}
	defer f.Close()

	var roots []uintptr
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		perms := fields[1]
		if !strings.HasPrefix(perms, "rw") {
			continue
		}
		name := ""
		if len(fields) >= 6 {
			name = fields[5]
		}
		switch {
		case strings.HasPrefix(name, "[stack"):
			if !features.AutofreeScanStack() {
				continue
			}
		case name == "" || name == "[heap]":
			// Anonymous heap/bss-like mappings: the closest analog this
			// platform's /proc/self/maps view has to spec.md §4.10's
			// "global data/BSS segments" root category.
			if !features.AutofreeScanGlobals() {
				continue
			}
		default:
			// File-backed regions (shared libraries, mapped files) and
			// other special mappings ([vdso], [vvar], ...) can't hold
			// live allocator pointers this process itself produced.
			continue
		}
		lo, hi, ok := splitRange(fields[0])
		if !ok {
			continue
		}
		roots = append(roots, scanRange(lo, hi)...)
	}
	return roots
}

func splitRange(s string) (lo, hi uintptr, ok bool) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	loV, err1 := strconv.ParseUint(parts[0], 16, 64)
	hiV, err2 := strconv.ParseUint(parts[1], 16, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return uintptr(loV), uintptr(hiV), true
}

const maxScanRegion = 64 << 20 // cap a single region's scan cost (spec.md §5's budget applies to the whole mark phase, not one region)

func scanRange(lo, hi uintptr) []uintptr {
	if hi <= lo || hi-lo > maxScanRegion {
		return nil
	}
	word := unsafe.Sizeof(uintptr(0))
	var roots []uintptr
	for addr := lo; addr+word <= hi; addr += word {
		roots = append(roots, *(*uintptr)(unsafe.Pointer(addr)))
	}
	return roots
}
