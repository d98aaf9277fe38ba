// Package interceptors implements Runtime.Interceptors: the __ct_*
// entry points that Pass.Alloc's replacement rewrite calls in place of
// malloc/calloc/realloc/aligned_alloc/posix_memalign/mmap/munmap/sbrk/brk,
// the Itanium operator new/delete family, and __ct_free/__ct_autofree*
// (spec.md §4.7, §6).
//
// Grounded on original_source/src/runtime/ct_runtime_alloc.cpp, which
// implements malloc/free/autofree against a fixed-size table. This
// package generalizes the same three-step shape (perform the raw
// allocation, record it in the AllocTable, unpoison/poison the Shadow
// range, emit a trace log) across the full symbol family spec.md §6
// requires; calloc/realloc/aligned_alloc/posix_memalign/mmap/sbrk have
// no analog in ct_runtime_alloc.cpp and are extrapolated from its malloc
// shape (see DESIGN.md).
//
// This package holds only the bookkeeping and logging decisions. The
// actual C-level malloc/free/mmap/sbrk calls are performed by a
// SystemAllocator, so this logic is testable without cgo; cmd/libctruntime
// wires a real OS-backed SystemAllocator and exports the C ABI symbols.
package interceptors

import (
	"fmt"

	"github.com/coretrace/coretrace/internal/runtime/alloctable"
	"github.com/coretrace/coretrace/internal/runtime/features"
	"github.com/coretrace/coretrace/internal/runtime/logger"
	"github.com/coretrace/coretrace/internal/runtime/shadow"
)

// SystemAllocator performs the real, unaudited allocator operations.
// cmd/libctruntime implements this against libc via cgo; tests use a
// fake backed by an address counter, since this package never
// dereferences the pointers it hands out.
type SystemAllocator interface {
	Malloc(size uint64) uintptr
	Calloc(n, size uint64) uintptr
	Realloc(ptr uintptr, size uint64) uintptr
	AlignedAlloc(align, size uint64) uintptr
	PosixMemalign(align, size uint64) (ptr uintptr, errno int)
	Free(ptr uintptr)
	UsableSize(ptr uintptr, requested uint64) uint64

	Mmap(addr uintptr, length uint64, prot, flags, fd int32, offset int64) uintptr
	Munmap(addr uintptr, length uint64) int

	Sbrk(increment int64) uintptr
	Brk(addr uintptr) int
}

// ThreadID returns an identifier for the calling OS thread, matching
// ct_thread_id() in the original runtime. The pure-Go interceptor logic
// never needs a real thread id, so this defaults to a stub; the cgo
// runtime layer overrides it with gettid(2)/pthread_self().
var ThreadID = func() uint64 { return 0 }

// Interceptors owns the AllocTable, Shadow map, and SystemAllocator that
// every __ct_* entry point in this package operates against. The runtime
// process wires up one process-wide instance; tests construct fresh
// ones for isolation.
type Interceptors struct {
	Table  *alloctable.Table
	Shadow *shadow.Map
	Sys    SystemAllocator
}

func siteName(site string) string {
	if site == "" {
		return "<unknown>"
	}
	return site
}

// unpoisonThenPoisonTail mirrors ct_malloc_impl's shadow handling: the
// requested reqSize bytes become accessible, and any padding out to the
// next 8-byte boundary (realSize - reqSize, when the allocator rounded
// up) stays poisoned.
func (in *Interceptors) unpoisonThenPoisonTail(ptr uintptr, reqSize, realSize uint64) {
	if !features.IsEnabled(features.Shadow) || ptr == 0 {
		return
	}
	in.Shadow.UnpoisonRange(ptr, uintptr(reqSize))
	start := (ptr + uintptr(reqSize) + 7) &^ 7
	end := ptr + uintptr(realSize)
	if start < end {
		in.Shadow.PoisonRange(start, end-start)
	}
}

func (in *Interceptors) traceAlloc(op, status string, unreachable bool, site string, reqSize, realSize uint64, ptr uintptr) {
	if !features.IsEnabled(features.AllocTrace) {
		return
	}
	label := "tracing-" + op
	if unreachable {
		label = "tracing-" + op + "-unreachable"
	}
	logger.Log(logger.Warn, "%s :: tid=%d site=%s", label, ThreadID(), siteName(site))
	logger.Log(logger.Warn, "┌-----------------------------------┐")
	logger.Log(logger.Warn, "| %-16s : %-14s |", "status", status)
	logger.Log(logger.Warn, "| %-16s : %-14d |", "req_size", reqSize)
	logger.Log(logger.Warn, "| %-16s : %-14d |", "total_alloc_size", realSize)
	logger.Log(logger.Warn, "| %-16s : %-14s |", "ptr", fmt.Sprintf("%#x", ptr))
	logger.Log(logger.Warn, "└-----------------------------------┘")
}

// recordAlloc inserts ptr into the table and applies shadow/trace side
// effects shared by every allocator family's reachable/unreachable pair,
// then optionally invokes the immediate autofree for the "unreachable"
// interceptor variant.
func (in *Interceptors) recordAlloc(op string, kind alloctable.AllocKind, ptr uintptr, reqSize, realSize uint64, site string, unreachable bool) uintptr {
	return in.recordAllocStatus(op, kind, ptr, reqSize, realSize, site, unreachable, statusFor(unreachable))
}

// statusFor is the reachable/unreachable status every allocator family
// but realloc traces; realloc reports moved/in-place/freed instead (see
// reallocStatus).
func statusFor(unreachable bool) string {
	if unreachable {
		return "unreachable"
	}
	return "reachable"
}

// recordAllocStatus is recordAlloc generalized to a caller-supplied
// status string, so Realloc can report moved/in-place/freed instead of
// the reachable/unreachable pair every other allocator family uses.
func (in *Interceptors) recordAllocStatus(op string, kind alloctable.AllocKind, ptr uintptr, reqSize, realSize uint64, site string, unreachable bool, status string) uintptr {
	if !features.IsEnabled(features.Alloc) {
		return ptr
	}
	if ptr != 0 && !in.Table.Insert(ptr, reqSize, realSize, site, kind) {
		logger.Log(logger.Warn, "alloc table full")
	}
	in.unpoisonThenPoisonTail(ptr, reqSize, realSize)
	in.traceAlloc(op, status, unreachable, site, reqSize, realSize, ptr)
	if unreachable && ptr != 0 && features.IsEnabled(features.Autofree) {
		in.autofree(ptr, alloctable.MallocLike)
	}
	return ptr
}

// Malloc implements __ct_malloc.
func (in *Interceptors) Malloc(size uint64, site string) uintptr {
	return in.mallocImpl(size, site, false)
}

// MallocUnreachable implements __ct_malloc_unreachable.
func (in *Interceptors) MallocUnreachable(size uint64, site string) uintptr {
	return in.mallocImpl(size, site, true)
}

func (in *Interceptors) mallocImpl(size uint64, site string, unreachable bool) uintptr {
	if !features.IsEnabled(features.Alloc) {
		return in.Sys.Malloc(size)
	}
	ptr := in.Sys.Malloc(size)
	real := in.Sys.UsableSize(ptr, size)
	return in.recordAlloc("malloc", alloctable.MallocLike, ptr, size, real, site, unreachable)
}

// Calloc implements __ct_calloc.
func (in *Interceptors) Calloc(n, size uint64, site string) uintptr {
	return in.callocImpl(n, size, site, false)
}

// CallocUnreachable implements __ct_calloc_unreachable.
func (in *Interceptors) CallocUnreachable(n, size uint64, site string) uintptr {
	return in.callocImpl(n, size, site, true)
}

func (in *Interceptors) callocImpl(n, size uint64, site string, unreachable bool) uintptr {
	total := n * size
	if !features.IsEnabled(features.Alloc) {
		return in.Sys.Calloc(n, size)
	}
	ptr := in.Sys.Calloc(n, size)
	real := in.Sys.UsableSize(ptr, total)
	return in.recordAlloc("calloc", alloctable.MallocLike, ptr, total, real, site, unreachable)
}

// Realloc implements __ct_realloc: the old address is removed from the
// table (regardless of whether the allocator moved it) and the new
// address is inserted fresh. The table representation always does a
// remove-then-reinsert rather than an in-place metadata update (see
// DESIGN.md Open Question); that's unrelated to the status this traces,
// which reports what the allocator actually did with the block.
func (in *Interceptors) Realloc(ptr uintptr, size uint64, site string) uintptr {
	if !features.IsEnabled(features.Alloc) {
		return in.Sys.Realloc(ptr, size)
	}
	if ptr != 0 {
		in.Table.Remove(ptr)
		if features.IsEnabled(features.Shadow) {
			if e, ok := in.Table.Lookup(ptr); ok {
				in.Shadow.PoisonRange(ptr, uintptr(e.RealSize))
			}
		}
	}
	newPtr := in.Sys.Realloc(ptr, size)
	real := in.Sys.UsableSize(newPtr, size)
	status := reallocStatus(ptr, newPtr, size)
	return in.recordAllocStatus("realloc", alloctable.MallocLike, newPtr, size, real, site, false, status)
}

// reallocStatus classifies what a completed realloc did to the block,
// the moved/in-place/freed triple the tracing-realloc record carries:
// size==0 behaves like free, an unchanged address means the allocator
// grew or shrank the block in place, anything else means it moved.
func reallocStatus(oldPtr, newPtr uintptr, size uint64) string {
	switch {
	case size == 0:
		return "freed"
	case newPtr == oldPtr:
		return "in-place"
	default:
		return "moved"
	}
}

// AlignedAlloc implements __ct_aligned_alloc.
func (in *Interceptors) AlignedAlloc(align, size uint64, site string) uintptr {
	if !features.IsEnabled(features.Alloc) {
		return in.Sys.AlignedAlloc(align, size)
	}
	ptr := in.Sys.AlignedAlloc(align, size)
	real := in.Sys.UsableSize(ptr, size)
	return in.recordAlloc("aligned_alloc", alloctable.MallocLike, ptr, size, real, site, false)
}

// PosixMemalign implements __ct_posix_memalign, returning the resulting
// pointer and errno; the exported C wrapper in cmd/libctruntime writes
// the pointer through posix_memalign(3)'s out-param.
func (in *Interceptors) PosixMemalign(align, size uint64, site string) (ptr uintptr, errno int) {
	ptr, errno = in.Sys.PosixMemalign(align, size)
	if errno != 0 || !features.IsEnabled(features.Alloc) {
		return ptr, errno
	}
	real := in.Sys.UsableSize(ptr, size)
	return in.recordAlloc("posix_memalign", alloctable.MallocLike, ptr, size, real, site, false), 0
}

// New implements __ct_new (operator new). C++ allocation failure is
// modeled as a null return; the pass emits the throwing-vs-nothrow
// distinction only in which unreachable/nothrow variant it calls.
func (in *Interceptors) New(size uint64, site string) uintptr {
	return in.newImpl("new", alloctable.NewLike, size, site, false)
}

// NewUnreachable implements __ct_new_unreachable.
func (in *Interceptors) NewUnreachable(size uint64, site string) uintptr {
	return in.newImpl("new", alloctable.NewLike, size, site, true)
}

// NewArray implements __ct_new_array (operator new[]).
func (in *Interceptors) NewArray(size uint64, site string) uintptr {
	return in.newImpl("new[]", alloctable.NewArrayLike, size, site, false)
}

// NewArrayUnreachable implements __ct_new_array_unreachable.
func (in *Interceptors) NewArrayUnreachable(size uint64, site string) uintptr {
	return in.newImpl("new[]", alloctable.NewArrayLike, size, site, true)
}

// NewNothrow implements __ct_new_nothrow.
func (in *Interceptors) NewNothrow(size uint64, site string) uintptr {
	return in.newImpl("new", alloctable.NewLike, size, site, false)
}

// NewNothrowUnreachable implements __ct_new_nothrow_unreachable.
func (in *Interceptors) NewNothrowUnreachable(size uint64, site string) uintptr {
	return in.newImpl("new", alloctable.NewLike, size, site, true)
}

// NewArrayNothrow implements __ct_new_array_nothrow.
func (in *Interceptors) NewArrayNothrow(size uint64, site string) uintptr {
	return in.newImpl("new[]", alloctable.NewArrayLike, size, site, false)
}

// NewArrayNothrowUnreachable implements __ct_new_array_nothrow_unreachable.
func (in *Interceptors) NewArrayNothrowUnreachable(size uint64, site string) uintptr {
	return in.newImpl("new[]", alloctable.NewArrayLike, size, site, true)
}

func (in *Interceptors) newImpl(op string, kind alloctable.AllocKind, size uint64, site string, unreachable bool) uintptr {
	if !features.IsEnabled(features.Alloc) {
		return in.Sys.Malloc(size)
	}
	ptr := in.Sys.Malloc(size)
	real := in.Sys.UsableSize(ptr, size)
	return in.recordAlloc(op, kind, ptr, size, real, site, unreachable)
}

// Mmap implements __ct_mmap.
func (in *Interceptors) Mmap(addr uintptr, length uint64, prot, flags, fd int32, offset int64, site string) uintptr {
	if !features.IsEnabled(features.Alloc) {
		return in.Sys.Mmap(addr, length, prot, flags, fd, offset)
	}
	ptr := in.Sys.Mmap(addr, length, prot, flags, fd, offset)
	return in.recordAlloc("mmap", alloctable.MmapLike, ptr, length, length, site, false)
}

// Munmap implements __ct_munmap.
func (in *Interceptors) Munmap(addr uintptr, length uint64, site string) int {
	if !features.IsEnabled(features.Alloc) {
		return in.Sys.Munmap(addr, length)
	}
	if addr != 0 {
		if result, _ := in.Table.Remove(addr); result == 1 {
			if features.IsEnabled(features.Shadow) {
				in.Shadow.PoisonRange(addr, uintptr(length))
			}
			if features.IsEnabled(features.AllocTrace) {
				logger.Log(logger.Info, "tracing-munmap addr=%#x size=%d site=%s", addr, length, siteName(site))
			}
		}
	}
	return in.Sys.Munmap(addr, length)
}

// Sbrk implements __ct_sbrk.
func (in *Interceptors) Sbrk(increment int64, site string) uintptr {
	ptr := in.Sys.Sbrk(increment)
	if !features.IsEnabled(features.Alloc) || increment <= 0 || ptr == 0 {
		return ptr
	}
	return in.recordAlloc("sbrk", alloctable.SbrkLike, ptr, uint64(increment), uint64(increment), site, false)
}

// Brk implements __ct_brk. brk(2) resets the break to an absolute
// address rather than returning a fresh allocation, so this interceptor
// only forwards the call: there is no new pointer for the table to
// track.
func (in *Interceptors) Brk(addr uintptr, site string) int {
	return in.Sys.Brk(addr)
}

// Free implements __ct_free.
func (in *Interceptors) Free(ptr uintptr) {
	if !features.IsEnabled(features.Alloc) {
		in.Sys.Free(ptr)
		return
	}
	if ptr == 0 {
		logger.Log(logger.Warn, "tracing-free ptr=null")
		in.Sys.Free(ptr)
		return
	}

	result, entry := in.Table.Remove(ptr)
	switch result {
	case -1:
		logger.Log(logger.Error, "tracing-free ptr=%#x (double free)", ptr)
		return
	case 0:
		logger.Log(logger.Error, "tracing-free ptr=%#x (unknown)", ptr)
		in.Sys.Free(ptr)
		return
	}

	if features.IsEnabled(features.Shadow) {
		in.Shadow.PoisonRange(ptr, uintptr(entry.RealSize))
	}
	if features.IsEnabled(features.AllocTrace) {
		logger.Log(logger.Info, "tracing-free ptr=%#x size=%d", ptr, entry.RealSize)
	}
	in.Sys.Free(ptr)
}

// Delete implements __ct_delete (operator delete). The delete family
// shares __ct_free's bookkeeping; this runtime does not execute C++
// destructors, so "destroying delete" is indistinguishable from plain
// delete at this layer (the destructor call itself is left in place by
// Pass.Alloc, only the deallocation call is redirected).
func (in *Interceptors) Delete(ptr uintptr) { in.Free(ptr) }

// DeleteArray implements __ct_delete_array.
func (in *Interceptors) DeleteArray(ptr uintptr) { in.Free(ptr) }

// DeleteNothrow implements __ct_delete_nothrow.
func (in *Interceptors) DeleteNothrow(ptr uintptr) { in.Free(ptr) }

// DeleteArrayNothrow implements __ct_delete_array_nothrow.
func (in *Interceptors) DeleteArrayNothrow(ptr uintptr) { in.Free(ptr) }

// DeleteDestroying implements __ct_delete_destroying.
func (in *Interceptors) DeleteDestroying(ptr uintptr) { in.Free(ptr) }

// DeleteArrayDestroying implements __ct_delete_array_destroying.
func (in *Interceptors) DeleteArrayDestroying(ptr uintptr) { in.Free(ptr) }

// autofree is the shared body behind Autofree and its typed variants:
// remove from the table, poison the shadow range, log, and release
// through the SystemAllocator operation matching kind.
func (in *Interceptors) autofree(ptr uintptr, kind alloctable.AllocKind) {
	if !features.IsEnabled(features.Alloc) || !features.IsEnabled(features.Autofree) {
		return
	}
	if ptr == 0 {
		logger.Log(logger.Warn, "ct: auto-free ptr=null")
		return
	}

	result, entry := in.Table.RemoveAutofree(ptr)
	switch result {
	case -1:
		logger.Log(logger.Warn, "ct: auto-free skipped ptr=%#x (already freed)", ptr)
		return
	case 0:
		logger.Log(logger.Warn, "ct: auto-free skipped ptr=%#x (unknown)", ptr)
		return
	}

	if features.IsEnabled(features.Shadow) {
		in.Shadow.PoisonRange(ptr, uintptr(entry.RealSize))
	}
	logger.Log(logger.Warn, "auto-free ptr=%#x size=%d site=%s", ptr, entry.RealSize, siteName(entry.Site))

	switch kind {
	case alloctable.MmapLike:
		in.Sys.Munmap(ptr, entry.RealSize)
	case alloctable.SbrkLike:
		// sbrk-backed memory can only be released by resetting the
		// break to the start of the region, which is unsafe once later
		// sbrk calls have extended past it; treat as bookkeeping-only.
	default:
		in.Sys.Free(ptr)
	}
}

// Autofree implements __ct_autofree.
func (in *Interceptors) Autofree(ptr uintptr) { in.autofree(ptr, alloctable.MallocLike) }

// AutofreeDelete implements __ct_autofree_delete.
func (in *Interceptors) AutofreeDelete(ptr uintptr) { in.autofree(ptr, alloctable.NewLike) }

// AutofreeDeleteArray implements __ct_autofree_delete_array.
func (in *Interceptors) AutofreeDeleteArray(ptr uintptr) { in.autofree(ptr, alloctable.NewArrayLike) }

// AutofreeMunmap implements __ct_autofree_munmap.
func (in *Interceptors) AutofreeMunmap(ptr uintptr) { in.autofree(ptr, alloctable.MmapLike) }

// AutofreeSbrk implements __ct_autofree_sbrk.
func (in *Interceptors) AutofreeSbrk(ptr uintptr) { in.autofree(ptr, alloctable.SbrkLike) }

// ReportLeaks implements the ct_report_leaks destructor: called once at
// process teardown (spec.md §9), it disables further logging, then
// prints the live-allocation count and up to 32 individual entries.
func (in *Interceptors) ReportLeaks() {
	entries, truncated := in.Table.LeakReport(32)
	if len(entries) == 0 && in.Table.LiveCount() == 0 {
		return
	}

	logger.Disable()

	logger.ForceLog(logger.Error, "ct: leaks detected count=%d", in.Table.LiveCount())
	for _, e := range entries {
		logger.ForceLog(logger.Warn, "ct: leak ptr=%#x size=%d", e.Ptr, e.RealSize)
	}
	if truncated {
		logger.ForceLog(logger.Warn, "ct: leak list truncated")
	}
}
