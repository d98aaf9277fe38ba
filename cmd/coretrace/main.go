// Command coretrace is the clang/clang++ compiler-driver wrapper: run
// it wherever you'd run clang, add --instrument to turn on allocation
// replacement, bounds checking, function tracing, and virtual-call
// diagnostics, and it hands everything else straight to the real
// toolchain.
//
// Flag parsing and help text are deliberately thin here — the actual
// --ct-* surface is owned by internal/passes/config, which this
// command forwards its raw argument list to unchanged, since a build
// system invoking coretrace as a compiler substitute cares about exit
// codes and stderr, not about this binary's own --help formatting.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coretrace/coretrace/internal/driver/orchestrator"
)

var inMemory bool

var rootCmd = &cobra.Command{
	Use:                "coretrace [clang args...]",
	Short:              "clang driver wrapper with allocation, bounds, trace, and vtable instrumentation",
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompile(args)
	},
}

func init() {
	rootCmd.Flags().BoolVar(&inMemory, "in-mem", false, "return transformed IR instead of writing an object file (single-TU only)")
	rootCmd.Flags().BoolVar(&inMemory, "in-memory", false, "alias for --in-mem")
}

func runCompile(args []string) error {
	projectDir, err := os.Getwd()
	if err != nil {
		projectDir = "."
	}

	mode := orchestrator.ToFile
	if hasFlag(args, "--in-mem") || hasFlag(args, "--in-memory") {
		mode = orchestrator.ToMemory
	}

	orch := orchestrator.New()
	res := orch.Compile(context.Background(), args, mode, projectDir)

	if res.Diagnostics != "" {
		fmt.Fprintln(os.Stderr, res.Diagnostics)
	}
	if mode == orchestrator.ToMemory && res.Success {
		fmt.Println(res.LLVMIR)
	}
	if !res.Success {
		os.Exit(1)
	}
	return nil
}

func hasFlag(args []string, name string) bool {
	for _, a := range args {
		if a == name {
			return true
		}
	}
	return false
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "coretrace: %v\n", err)
		os.Exit(1)
	}
}
