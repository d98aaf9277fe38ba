package main

/*
#include <stdlib.h>
#include <stdint.h>
#include <sys/mman.h>
#include <unistd.h>
#include <errno.h>

static void *ct_sys_posix_memalign(size_t align, size_t size, int *out_errno) {
	void *p = NULL;
	int rc = posix_memalign(&p, align, size);
	*out_errno = rc;
	if (rc != 0) {
		return NULL;
	}
	return p;
}
*/
import "C"

import (
	"unsafe"
)

// sysAllocator implements interceptors.SystemAllocator (and the
// narrower autofreegc.Deallocator) against libc, matching the shape
// original_source/src/runtime/ct_runtime_alloc.cpp performs directly:
// this package is the one place CoreTrace actually calls malloc/free/
// mmap/sbrk on the host.
type sysAllocator struct{}

func (sysAllocator) Malloc(size uint64) uintptr {
	return uintptr(C.malloc(C.size_t(size)))
}

func (sysAllocator) Calloc(n, size uint64) uintptr {
	return uintptr(C.calloc(C.size_t(n), C.size_t(size)))
}

func (sysAllocator) Realloc(ptr uintptr, size uint64) uintptr {
	return uintptr(C.realloc(unsafe.Pointer(ptr), C.size_t(size)))
}

func (sysAllocator) AlignedAlloc(align, size uint64) uintptr {
	return uintptr(C.aligned_alloc(C.size_t(align), C.size_t(size)))
}

func (sysAllocator) PosixMemalign(align, size uint64) (uintptr, int) {
	var errnoOut C.int
	p := C.ct_sys_posix_memalign(C.size_t(align), C.size_t(size), &errnoOut)
	return uintptr(p), int(errnoOut)
}

func (sysAllocator) Free(ptr uintptr) {
	if ptr == 0 {
		return
	}
	C.free(unsafe.Pointer(ptr))
}

// UsableSize has no portable libc call outside malloc_usable_size,
// which is a glibc extension this package avoids depending on; the
// requested size is what the alloc table already tracks precisely, so
// this simply echoes it back rather than guessing at slack.
func (sysAllocator) UsableSize(_ uintptr, requested uint64) uint64 {
	return requested
}

func (sysAllocator) Mmap(addr uintptr, length uint64, prot, flags, fd int32, offset int64) uintptr {
	p := C.mmap(unsafe.Pointer(addr), C.size_t(length), C.int(prot), C.int(flags), C.int(fd), C.off_t(offset))
	if p == C.MAP_FAILED {
		return 0
	}
	return uintptr(p)
}

func (sysAllocator) Munmap(addr uintptr, length uint64) int {
	return int(C.munmap(unsafe.Pointer(addr), C.size_t(length)))
}

func (sysAllocator) Sbrk(increment int64) uintptr {
	p := C.sbrk(C.intptr_t(increment))
	if p == unsafe.Pointer(^uintptr(0)) { // (void*)-1 == sbrk failure
		return 0
	}
	return uintptr(p)
}

func (sysAllocator) Brk(addr uintptr) int {
	return int(C.brk(unsafe.Pointer(addr)))
}
