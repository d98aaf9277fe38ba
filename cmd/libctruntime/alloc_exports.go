package main

/*
#include <stdint.h>
*/
import "C"

import (
	"context"
	"unsafe"

	"github.com/coretrace/coretrace/internal/runtime/features"
)

// shouldSkipAutofreeForLiveReference implements CT_AUTOFREE_SCAN_PTR's
// single-shot pointer scan (spec.md §4.10): before an explicit
// __ct_autofree* release goes through, suspend other threads and check
// whether any live root still references ptr; if one does, the
// allocation is left live and the release is skipped for this call.
func shouldSkipAutofreeForLiveReference(ptr unsafe.Pointer) bool {
	if !features.AutofreeScanPtr() || gc == nil || ptr == nil {
		return false
	}
	found, err := gc.ScanPointer(context.Background(), uintptr(ptr))
	return err == nil && found
}

func goSite(site *C.char) string {
	if site == nil {
		return ""
	}
	return C.GoString(site)
}

//export __ct_malloc
func __ct_malloc(size C.uint64_t, site *C.char) unsafe.Pointer {
	return unsafe.Pointer(inter.Malloc(uint64(size), goSite(site)))
}

//export __ct_malloc_unreachable
func __ct_malloc_unreachable(size C.uint64_t, site *C.char) unsafe.Pointer {
	return unsafe.Pointer(inter.MallocUnreachable(uint64(size), goSite(site)))
}

//export __ct_calloc
func __ct_calloc(n, size C.uint64_t, site *C.char) unsafe.Pointer {
	return unsafe.Pointer(inter.Calloc(uint64(n), uint64(size), goSite(site)))
}

//export __ct_calloc_unreachable
func __ct_calloc_unreachable(n, size C.uint64_t, site *C.char) unsafe.Pointer {
	return unsafe.Pointer(inter.CallocUnreachable(uint64(n), uint64(size), goSite(site)))
}

//export __ct_realloc
func __ct_realloc(ptr unsafe.Pointer, size C.uint64_t, site *C.char) unsafe.Pointer {
	return unsafe.Pointer(inter.Realloc(uintptr(ptr), uint64(size), goSite(site)))
}

//export __ct_aligned_alloc
func __ct_aligned_alloc(align, size C.uint64_t, site *C.char) unsafe.Pointer {
	return unsafe.Pointer(inter.AlignedAlloc(uint64(align), uint64(size), goSite(site)))
}

//export __ct_posix_memalign
func __ct_posix_memalign(outPtr *unsafe.Pointer, align, size C.uint64_t, site *C.char) C.int {
	ptr, errno := inter.PosixMemalign(uint64(align), uint64(size), goSite(site))
	if outPtr != nil {
		*outPtr = unsafe.Pointer(ptr)
	}
	return C.int(errno)
}

//export __ct_free
func __ct_free(ptr unsafe.Pointer) {
	inter.Free(uintptr(ptr))
}

//export __ct_new
func __ct_new(size C.uint64_t, site *C.char) unsafe.Pointer {
	return unsafe.Pointer(inter.New(uint64(size), goSite(site)))
}

//export __ct_new_unreachable
func __ct_new_unreachable(size C.uint64_t, site *C.char) unsafe.Pointer {
	return unsafe.Pointer(inter.NewUnreachable(uint64(size), goSite(site)))
}

//export __ct_new_array
func __ct_new_array(size C.uint64_t, site *C.char) unsafe.Pointer {
	return unsafe.Pointer(inter.NewArray(uint64(size), goSite(site)))
}

//export __ct_new_array_unreachable
func __ct_new_array_unreachable(size C.uint64_t, site *C.char) unsafe.Pointer {
	return unsafe.Pointer(inter.NewArrayUnreachable(uint64(size), goSite(site)))
}

//export __ct_new_nothrow
func __ct_new_nothrow(size C.uint64_t, site *C.char) unsafe.Pointer {
	return unsafe.Pointer(inter.NewNothrow(uint64(size), goSite(site)))
}

//export __ct_new_nothrow_unreachable
func __ct_new_nothrow_unreachable(size C.uint64_t, site *C.char) unsafe.Pointer {
	return unsafe.Pointer(inter.NewNothrowUnreachable(uint64(size), goSite(site)))
}

//export __ct_new_array_nothrow
func __ct_new_array_nothrow(size C.uint64_t, site *C.char) unsafe.Pointer {
	return unsafe.Pointer(inter.NewArrayNothrow(uint64(size), goSite(site)))
}

//export __ct_new_array_nothrow_unreachable
func __ct_new_array_nothrow_unreachable(size C.uint64_t, site *C.char) unsafe.Pointer {
	return unsafe.Pointer(inter.NewArrayNothrowUnreachable(uint64(size), goSite(site)))
}

//export __ct_delete
func __ct_delete(ptr unsafe.Pointer) { inter.Delete(uintptr(ptr)) }

//export __ct_delete_array
func __ct_delete_array(ptr unsafe.Pointer) { inter.DeleteArray(uintptr(ptr)) }

//export __ct_delete_nothrow
func __ct_delete_nothrow(ptr unsafe.Pointer) { inter.DeleteNothrow(uintptr(ptr)) }

//export __ct_delete_array_nothrow
func __ct_delete_array_nothrow(ptr unsafe.Pointer) { inter.DeleteArrayNothrow(uintptr(ptr)) }

//export __ct_delete_destroying
func __ct_delete_destroying(ptr unsafe.Pointer) { inter.DeleteDestroying(uintptr(ptr)) }

//export __ct_delete_array_destroying
func __ct_delete_array_destroying(ptr unsafe.Pointer) { inter.DeleteArrayDestroying(uintptr(ptr)) }

//export __ct_mmap
func __ct_mmap(addr unsafe.Pointer, length C.uint64_t, prot, flags, fd C.int32_t, offset C.int64_t, site *C.char) unsafe.Pointer {
	return unsafe.Pointer(inter.Mmap(uintptr(addr), uint64(length), int32(prot), int32(flags), int32(fd), int64(offset), goSite(site)))
}

//export __ct_munmap
func __ct_munmap(addr unsafe.Pointer, length C.uint64_t, site *C.char) C.int {
	return C.int(inter.Munmap(uintptr(addr), uint64(length), goSite(site)))
}

//export __ct_sbrk
func __ct_sbrk(increment C.int64_t, site *C.char) unsafe.Pointer {
	return unsafe.Pointer(inter.Sbrk(int64(increment), goSite(site)))
}

//export __ct_brk
func __ct_brk(addr unsafe.Pointer, site *C.char) C.int {
	return C.int(inter.Brk(uintptr(addr), goSite(site)))
}

//export __ct_autofree
func __ct_autofree(ptr unsafe.Pointer) {
	if shouldSkipAutofreeForLiveReference(ptr) {
		return
	}
	inter.Autofree(uintptr(ptr))
}

//export __ct_autofree_delete
func __ct_autofree_delete(ptr unsafe.Pointer) {
	if shouldSkipAutofreeForLiveReference(ptr) {
		return
	}
	inter.AutofreeDelete(uintptr(ptr))
}

//export __ct_autofree_delete_array
func __ct_autofree_delete_array(ptr unsafe.Pointer) {
	if shouldSkipAutofreeForLiveReference(ptr) {
		return
	}
	inter.AutofreeDeleteArray(uintptr(ptr))
}

//export __ct_autofree_munmap
func __ct_autofree_munmap(ptr unsafe.Pointer) {
	if shouldSkipAutofreeForLiveReference(ptr) {
		return
	}
	inter.AutofreeMunmap(uintptr(ptr))
}

//export __ct_autofree_sbrk
func __ct_autofree_sbrk(ptr unsafe.Pointer) {
	if shouldSkipAutofreeForLiveReference(ptr) {
		return
	}
	inter.AutofreeSbrk(uintptr(ptr))
}

//export __ct_report_leaks
func __ct_report_leaks() { inter.ReportLeaks() }
