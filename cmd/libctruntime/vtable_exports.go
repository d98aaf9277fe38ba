package main

import "C"

import "unsafe"

//export __ct_vtable_dump
func __ct_vtable_dump(this unsafe.Pointer, site, staticType *C.char) {
	diag.Dump(uintptr(this), goSite(site), goSite(staticType))
}

//export __ct_vcall_trace
func __ct_vcall_trace(this, target unsafe.Pointer, site, staticType *C.char) {
	diag.VcallTrace(uintptr(this), uintptr(target), goSite(site), goSite(staticType))
}
