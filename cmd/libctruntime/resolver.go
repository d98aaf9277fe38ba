package main

/*
#cgo LDFLAGS: -ldl
#define _GNU_SOURCE
#include <dlfcn.h>
#include <link.h>
#include <string.h>
#include <stdlib.h>

// A C++ object's vptr is the first word at its address; the vtable
// itself stores the Itanium "offset to top" at index -2 and a pointer
// to the std::type_info at index -1, immediately ahead of the function
// pointer slots ct_vtable_dump's dispatch walk reads (see
// vtable.matchVptrDispatch's index-0 getelementptr).
typedef struct {
	void *vtable;
	long offset_to_top;
	char *type_name; // mangled typeinfo name, or NULL
	int has_typeinfo;
} ct_vtable_raw;

static ct_vtable_raw ct_read_vtable(void *thisPtr) {
	ct_vtable_raw r;
	memset(&r, 0, sizeof(r));
	if (thisPtr == NULL) {
		return r;
	}
	void **vptr_slot = *(void ***)thisPtr;
	r.vtable = (void *)vptr_slot;

	long *prefix = (long *)vptr_slot;
	r.offset_to_top = prefix[-2];

	void *typeinfo = (void *)prefix[-1];
	if (typeinfo != NULL) {
		// Itanium's abi::__class_type_info layout: vptr, then a
		// mangled-name char* as the first data member.
		char *name = *(char **)((char *)typeinfo + sizeof(void *));
		if (name != NULL) {
			r.type_name = name;
			r.has_typeinfo = 1;
		}
	}
	return r;
}

typedef struct {
	int has_module;
	char path[4096];
	int exec_known;
	int is_exec;
} ct_addr_info;

static ct_addr_info ct_resolve_address(void *addr) {
	ct_addr_info info;
	memset(&info, 0, sizeof(info));
	Dl_info dli;
	if (dladdr(addr, &dli) != 0 && dli.dli_fname != NULL) {
		info.has_module = 1;
		strncpy(info.path, dli.dli_fname, sizeof(info.path) - 1);
	}
	return info;
}

static const char *ct_lookup_symbol(void *addr) {
	Dl_info dli;
	if (dladdr(addr, &dli) != 0 && dli.dli_sname != NULL) {
		return dli.dli_sname;
	}
	return NULL;
}
*/
import "C"

import (
	"unsafe"

	"github.com/coretrace/coretrace/internal/runtime/trace"
)

// demangleTypeName strips the mangled-name form a std::type_info stores
// (e.g. "4Base") into a bare identifier for display, since __cxa_demangle
// only accepts full mangled symbols, not bare type-info names.
func demangleTypeName(mangled string) string {
	i := 0
	for i < len(mangled) && mangled[i] >= '0' && mangled[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(mangled) {
		return mangled
	}
	return mangled[i:]
}

// platformResolver implements trace.Resolver against dladdr/dlfcn and a
// direct read of the Itanium vtable layout, matching how
// original_source's diagnostics identify a call target's owning shared
// object and demangled type.
type platformResolver struct{}

func (platformResolver) ReadVtableInfo(thisPtr uintptr) (trace.VtableInfo, bool) {
	if thisPtr == 0 {
		return trace.VtableInfo{}, false
	}
	raw := C.ct_read_vtable(unsafe.Pointer(thisPtr))
	if raw.vtable == nil {
		return trace.VtableInfo{}, false
	}
	info := trace.VtableInfo{
		Vtable:      uintptr(raw.vtable),
		OffsetToTop: int64(raw.offset_to_top),
		HasTypeInfo: raw.has_typeinfo != 0,
	}
	if raw.type_name != nil {
		info.TypeName = demangleTypeName(C.GoString(raw.type_name))
	}
	return info, true
}

func (platformResolver) ResolveAddress(addr uintptr) trace.AddrInfo {
	if addr == 0 {
		return trace.AddrInfo{}
	}
	raw := C.ct_resolve_address(unsafe.Pointer(addr))
	if raw.has_module == 0 {
		return trace.AddrInfo{}
	}
	return trace.AddrInfo{
		Module:    trace.ModuleInfo{Path: C.GoString(&raw.path[0])},
		HasModule: true,
	}
}

func (platformResolver) LookupSymbol(addr uintptr) (string, bool) {
	if addr == 0 {
		return "", false
	}
	sym := C.ct_lookup_symbol(unsafe.Pointer(addr))
	if sym == nil {
		return "", false
	}
	if demangled, ok := cxaDemangle(C.GoString(sym)); ok {
		return demangled, true
	}
	return C.GoString(sym), true
}
