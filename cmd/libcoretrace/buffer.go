package main

import "C"

import "unsafe"

// writeTruncated copies s into buf (bufferSize bytes long, as the
// caller-owned scratch space compile_c's signature describes),
// NUL-terminating and truncating rather than overflowing, per spec.md
// §6's "copies merged diagnostics into the provided buffer (NUL-
// terminated, truncated)".
func writeTruncated(buf *C.char, bufferSize C.int, s string) {
	writeTruncatedPtr(unsafe.Pointer(buf), int(bufferSize), s)
}

// writeTruncatedPtr holds the cgo-free logic for writeTruncated so it can be
// exercised directly from tests: cgo's "C" pseudo-package cannot be imported
// from _test.go files, so the C-typed entry point above just delegates here.
func writeTruncatedPtr(buf unsafe.Pointer, bufferSize int, s string) {
	if buf == nil || bufferSize <= 0 {
		return
	}
	n := bufferSize - 1
	if n > len(s) {
		n = len(s)
	}
	dst := (*[1 << 30]byte)(buf)[:bufferSize:bufferSize]
	copy(dst, s[:n])
	dst[n] = 0
}
