// Package emit turns an instrumented, printed LLVM IR module back into
// real bytes: an object file, textual IR, or bitcode, per spec.md §2's
// Emit component ("Object/IR/bitcode file emission from a module").
//
// spec.md §0's shell-out strategy applies here too: rather than
// building a target machine and running LLVM's codegen pass manager
// in-process (what the original component does, per spec.md §4.1 step
// 4), this package hands the printed .ll text to the real clang binary
// and lets it perform codegen — the same move
// cmd/racedetector/build.go makes by shelling out to `go build` for
// the parts that must produce real, linkable output.
package emit

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
)

// Format selects what ToFile/clang should produce from the IR text.
type Format int

const (
	Object Format = iota
	Assembly
	Bitcode
	IR
)

func (f Format) clangFlag() string {
	switch f {
	case Object:
		return "-c"
	case Assembly:
		return "-S"
	case Bitcode:
		return "-emit-llvm"
	case IR:
		return "-S"
	}
	return "-c"
}

// Result is what a single emission attempt produced.
type Result struct {
	Success     bool
	Diagnostics string
	OutputPath  string
}

// ToFile writes irText (textual LLVM IR) to outputPath in the given
// format by invoking clang as an assembler: `clang -x ir - -o out
// <format-flag>`, reading the module from stdin. This is how
// Driver.Orchestrator turns a Pass.* mutated module back into
// something the link jobs can consume.
func ToFile(ctx context.Context, clangPath, irText, outputPath string, format Format, extraArgs []string) Result {
	args := []string{"-x", "ir", "-", "-o", outputPath, format.clangFlag()}
	if format == IR {
		args = append(args, "-emit-llvm")
	}
	if format == Bitcode {
		args = append(args, "-c")
	}
	args = append(args, extraArgs...)

	cmd := exec.CommandContext(ctx, clangPath, args...)
	cmd.Stdin = bytes.NewBufferString(irText)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Success:     err == nil,
		Diagnostics: stderr.String(),
		OutputPath:  outputPath,
	}
	if err != nil && res.Diagnostics == "" {
		res.Diagnostics = fmt.Sprintf("emit: %v", err)
	}
	return res
}

// ToTempFile is ToFile with a generated temporary path, for callers
// that only need the object file to hand to a subsequent link job and
// don't care where it lives.
func ToTempFile(ctx context.Context, clangPath, irText string, format Format, extraArgs []string) (Result, error) {
	ext := ".o"
	switch format {
	case Assembly:
		ext = ".s"
	case Bitcode:
		ext = ".bc"
	case IR:
		ext = ".ll"
	}
	f, err := os.CreateTemp("", "coretrace-*"+ext)
	if err != nil {
		return Result{}, fmt.Errorf("emit: creating temp file: %w", err)
	}
	path := f.Name()
	f.Close()

	return ToFile(ctx, clangPath, irText, path, format, extraArgs), nil
}
