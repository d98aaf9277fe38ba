package main

/*
#include <signal.h>
#include <stdlib.h>
#include <unistd.h>
#include <execinfo.h>

static void ct_fatal_handler(int signo) {
	void *frames[64];
	int n = backtrace(frames, 64);
	backtrace_symbols_fd(frames, n, STDERR_FILENO);
	struct sigaction sa;
	sa.sa_handler = SIG_DFL;
	sigemptyset(&sa.sa_mask);
	sa.sa_flags = 0;
	sigaction(signo, &sa, NULL);
	_exit(128 + signo);
}

static void ct_install_fatal_handler(void) {
	struct sigaction sa;
	sa.sa_handler = ct_fatal_handler;
	sigemptyset(&sa.sa_mask);
	sa.sa_flags = SA_RESETHAND;
	sigaction(SIGSEGV, &sa, NULL);
	sigaction(SIGABRT, &sa, NULL);
	sigaction(SIGBUS, &sa, NULL);
	sigaction(SIGILL, &sa, NULL);
}
*/
import "C"

import (
	"os"
	"sync/atomic"
)

// installBacktraceHandler implements trace.BacktraceInstaller, ported
// directly from original_source/src/runtime/ct_runtime_backtrace.cpp:
// gate on CT_BACKTRACE, install once via an atomic compare-and-swap
// (concurrent calls from concurrent __ct_trace_enter invocations must
// not double-install), then sigaction SIGSEGV/ABRT/BUS/ILL with
// SA_RESETHAND so a second fault in the handler itself falls through to
// the default disposition instead of looping.
var backtraceInstalled atomic.Bool

func installBacktraceHandler() bool {
	if os.Getenv("CT_BACKTRACE") == "" {
		return false
	}
	if !backtraceInstalled.CompareAndSwap(false, true) {
		return true
	}
	C.ct_install_fatal_handler()
	return true
}
