// Command libcoretrace builds coretrace as a C archive/shared object,
// exposing the driver through a single embeddable entry point:
//
//	int compile_c(int argc, const char **argv, char *output_buffer, int buffer_size)
//
// per spec.md §6's "Embeddable C ABI". This lets a build system that
// already shells out to compilers link coretrace in directly instead
// of spawning it as a subprocess, the same "compiler as a library"
// packaging cgo's own c-archive/c-shared build modes exist for.
package main

import "C"

import (
	"context"
	"os"
	"unsafe"

	"github.com/coretrace/coretrace/internal/driver/orchestrator"
)

//export compile_c
func compile_c(argc C.int, argv **C.char, outputBuffer *C.char, bufferSize C.int) C.int {
	args := goArgs(argc, argv)

	projectDir, err := os.Getwd()
	if err != nil {
		projectDir = "."
	}

	orch := orchestrator.New()
	res := orch.Compile(context.Background(), args, orchestrator.ToFile, projectDir)

	writeTruncated(outputBuffer, bufferSize, res.Diagnostics)

	if res.Success {
		return 1
	}
	return 0
}

// goArgs converts a C argv array into a Go string slice, argc entries
// long, without ever indexing past what the caller promised it owns.
func goArgs(argc C.int, argv **C.char) []string {
	n := int(argc)
	out := make([]string, 0, n)
	base := (*[1 << 20]*C.char)(unsafe.Pointer(argv))[:n:n]
	for _, cs := range base {
		out = append(out, C.GoString(cs))
	}
	return out
}

func main() {}
