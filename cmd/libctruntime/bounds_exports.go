package main

/*
#include <stdint.h>
*/
import "C"

import "unsafe"

//export __ct_check_bounds
func __ct_check_bounds(base, ptr unsafe.Pointer, accessSize C.uint64_t, site *C.char, isWrite C.int) {
	check.Check(uintptr(base), uintptr(ptr), uint64(accessSize), goSite(site), isWrite != 0)
}
