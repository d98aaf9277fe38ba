package orchestrator

import (
	"bytes"
	"context"
	"os/exec"
)

// emitLLVMIR runs `clang -S -emit-llvm -o - <args>`, the frontend-only
// action spec.md §4.1 step 4 describes as "run an emit LLVM only
// frontend action; clang's code-gen stops at a module" — the
// process-boundary equivalent of that in-process step, per spec.md
// §0's shell-out strategy.
func emitLLVMIR(ctx context.Context, clangPath string, args []string) (irText, diagnostics string, err error) {
	full := append([]string{"-S", "-emit-llvm", "-o", "-"}, stripOutputArgs(args)...)
	cmd := exec.CommandContext(ctx, clangPath, full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if runErr := cmd.Run(); runErr != nil {
		return "", stderr.String(), runErr
	}
	return stdout.String(), stderr.String(), nil
}

// stripOutputArgs removes any user-supplied "-o PATH"/"-c"/"-S" pair so
// the -emit-llvm frontend invocation controls its own output entirely.
func stripOutputArgs(args []string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-o":
			i++
			continue
		case "-c", "-S", "-emit-llvm":
			continue
		}
		out = append(out, args[i])
	}
	return out
}
