// Command libctruntime builds the CoreTrace runtime library: every
// __ct_* symbol Pass.Alloc/Pass.Bounds/Pass.Trace/Pass.Vtable's inserted
// calls resolve against at link time, and the __ct_config_* weak
// globals Pass.Config emits (spec.md §4.7-§4.11, §6).
//
// It is built as a c-archive/c-shared (`go build -buildmode=c-archive`)
// so `internal/driver/orchestrator` can hand clang a real .a/.so to
// link instrumented object files against, exactly as it would link
// against compiler-rt's asan/tsan runtimes.
//
// The pure-Go decision logic lives in internal/runtime/*; this package
// only supplies the cgo-backed SystemAllocator, RootScanner,
// Deallocator, BacktraceInstaller, Demangler, and vtable Resolver those
// packages depend on as interfaces, and the //export wrappers that give
// them C linkage.
package main

// #include <stdlib.h>
import "C"

func main() {}
