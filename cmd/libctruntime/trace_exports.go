package main

/*
#include <stdint.h>
*/
import "C"

import "unsafe"

//export __ct_trace_enter
func __ct_trace_enter(name *C.char) {
	trc.Enter(goSite(name))
}

//export __ct_trace_exit_void
func __ct_trace_exit_void(name *C.char) {
	trc.ExitVoid(goSite(name))
}

//export __ct_trace_exit_i64
func __ct_trace_exit_i64(name *C.char, value C.int64_t) {
	trc.ExitI64(goSite(name), int64(value))
}

//export __ct_trace_exit_ptr
func __ct_trace_exit_ptr(name *C.char, value unsafe.Pointer) {
	trc.ExitPtr(goSite(name), uintptr(value))
}

//export __ct_trace_exit_f64
func __ct_trace_exit_f64(name *C.char, value C.double) {
	trc.ExitF64(goSite(name), float64(value))
}

//export __ct_trace_exit_unknown
func __ct_trace_exit_unknown(name *C.char) {
	trc.ExitUnknown(goSite(name))
}
