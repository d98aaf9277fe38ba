package main

/*
#cgo LDFLAGS: -lstdc++
#include <stdlib.h>

extern char *__cxa_demangle(const char *mangled_name, char *output_buffer, size_t *length, int *status);
*/
import "C"

import "unsafe"

// cxaDemangle implements trace.Demangler against libstdc++'s Itanium
// demangler, the same one original_source links for its own trace
// output. Any non-zero status (invalid mangling, not a mangled name,
// allocation failure) reports ok=false and the caller falls back to the
// raw symbol.
func cxaDemangle(name string) (string, bool) {
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))

	var status C.int
	out := C.__cxa_demangle(cName, nil, nil, &status)
	if status != 0 || out == nil {
		return "", false
	}
	defer C.free(unsafe.Pointer(out))
	return C.GoString(out), true
}
