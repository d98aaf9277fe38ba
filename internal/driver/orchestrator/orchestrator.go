// Package orchestrator implements Driver.Orchestrator: the process
// that splits the user's command line into driver flags and tool
// flags, drives clang to obtain LLVM IR, runs the instrumentation
// passes over it in the order spec.md §4.1 fixes, re-emits object
// files, and runs link jobs (spec.md §4.1).
//
// Per spec.md §0's shell-out strategy, this package never links
// libclangDriver/libLLVM in-process. It drives the real clang binary
// as a subprocess for every step that must produce real bytes (IR
// emission via `-S -emit-llvm`, object emission and linking via
// internal/emit), the same "orchestrate the real toolchain, keep the
// transformation logic in pure Go" shape
// cmd/racedetector/build.go uses for `go build`.
package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/coretrace/coretrace/internal/config"
	"github.com/coretrace/coretrace/internal/driver/toolchain"
	"github.com/coretrace/coretrace/internal/emit"
	"github.com/coretrace/coretrace/internal/ir"
	"github.com/coretrace/coretrace/internal/passes/alloc"
	"github.com/coretrace/coretrace/internal/passes/bounds"
	"github.com/coretrace/coretrace/internal/passes/common"
	passconfig "github.com/coretrace/coretrace/internal/passes/config"
	"github.com/coretrace/coretrace/internal/passes/trace"
	"github.com/coretrace/coretrace/internal/passes/vtable"
)

// Mode selects whether Compile writes an object file to disk or
// returns the transformed IR as a string, per spec.md §4.1's
// {ToFile, ToMemory} contract.
type Mode int

const (
	ToFile Mode = iota
	ToMemory
)

// Result is Driver.Orchestrator's public contract:
// compile(args, mode, instrument) → {success, diagnostics, llvm_ir?}.
type Result struct {
	Success     bool
	Diagnostics string
	LLVMIR      string // populated only for Mode == ToMemory
	ObjectPaths []string
}

// Orchestrator owns the logger every job-planning and execution step
// writes through, grounded on sakateka-yanet2's controlplane daemons'
// zap usage.
type Orchestrator struct {
	Log *zap.SugaredLogger
}

// New builds an Orchestrator with a production zap logger, falling
// back to a no-op logger if construction fails (matching zap's own
// documented fallback idiom).
func New() *Orchestrator {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	return &Orchestrator{Log: l.Sugar()}
}

// action classifies what a single clang invocation's argument list asks
// for, driving both the "append -gline-tables-only et al." step and the
// "append the runtime archive on link" step of spec.md §4.1.
type action struct {
	isLink        bool
	hasDebugFlag  bool
	singleTU      string // the one input file, when there is exactly one
}

func classify(args []string) action {
	var a action
	stopping := false
	inputCount := 0
	var lastInput string
	for _, arg := range args {
		switch {
		case arg == "-c" || arg == "-S" || arg == "-E" || arg == "-emit-llvm":
			stopping = true
		case strings.HasPrefix(arg, "-g"):
			a.hasDebugFlag = true
		case !strings.HasPrefix(arg, "-"):
			ext := filepath.Ext(arg)
			if ext == ".c" || ext == ".cc" || ext == ".cpp" || ext == ".cxx" || ext == ".m" || ext == ".mm" {
				inputCount++
				lastInput = arg
			}
		}
	}
	a.isLink = !stopping
	if inputCount == 1 {
		a.singleTU = lastInput
	}
	return a
}

// rewriteArgs implements spec.md §4.1 step 1: fold in the toolchain's
// resolved paths, and append the instrumentation-enabling flags
// whenever instrument=true — a one-step "clang foo.c -o app" still has
// a cc1 job that needs -fno-builtin-malloc et al. just as much as an
// explicit "-c" does.
func rewriteArgs(args []string, tc toolchain.Config, act action, instrument bool) []string {
	out := append([]string{}, args...)

	if tc.AddResourceDir {
		out = append(out, "-resource-dir", tc.ResourceDir)
	}
	if tc.AddSysroot {
		out = append(out, "-isysroot", tc.Sysroot)
	}
	if tc.ForceCxxDriver {
		out = append(out, "--driver-mode=g++")
	}

	if instrument {
		if !act.hasDebugFlag {
			out = append(out, "-gline-tables-only")
		}
		out = append(out, "-fno-builtin-malloc", "-fno-builtin-free")
		if osIsLinux() {
			out = append(out, "-fPIE")
		}
	}
	return out
}

// runtimeGOOS is a var (not a direct runtime.GOOS reference) so tests
// can exercise both branches of rewriteArgs/linkExtras without needing
// to run on two different platforms.
var runtimeGOOS = func() string { return runtime.GOOS }

func osIsLinux() bool { return runtimeGOOS() == "linux" }

// linkExtras is what spec.md §4.1 says an instrumented link job must
// append: the runtime archive path, the C++ stdlib, and platform link
// flags.
func linkExtras(runtimeArchive string) []string {
	extras := []string{runtimeArchive, "-ldl"}
	if osIsLinux() {
		extras = append(extras, "-pie")
	}
	extras = append(extras, "-lstdc++")
	return extras
}

// Compile implements the Driver.Orchestrator public contract.
func (o *Orchestrator) Compile(ctx context.Context, args []string, mode Mode, projectDir string) Result {
	parsed := passconfig.Parse(args)
	if parsed.Help {
		return Result{Success: true, Diagnostics: helpText()}
	}

	tc, err := toolchain.Resolve(parsed.Remaining)
	if err != nil {
		return Result{Success: false, Diagnostics: fmt.Sprintf("toolchain resolution failed: %v", err)}
	}
	if proj, perr := toolchain.LoadProjectConfig(projectDir); perr == nil {
		proj.Apply(&tc)
	}

	instrument := parsed.Instrument
	act := classify(parsed.Remaining)
	rewritten := rewriteArgs(parsed.Remaining, tc, act, instrument)

	if mode == ToMemory && act.singleTU == "" {
		return Result{Success: false, Diagnostics: "ToMemory requires exactly one compilation unit"}
	}

	if !instrument {
		return o.passthrough(ctx, tc.ClangPath, rewritten, act)
	}

	if act.singleTU == "" {
		// No cc1 job to run (a pure link of already-built objects): the
		// instrumentation pipeline has nothing to instrument, but an
		// instrumented link still needs the runtime archive linked in.
		if act.isLink {
			archive, aerr := toolchain.ResolveRuntimeArchive(projectDir)
			if aerr != nil {
				return Result{Success: false, Diagnostics: aerr.Error()}
			}
			rewritten = append(rewritten, linkExtras(archive)...)
		}
		return o.passthrough(ctx, tc.ClangPath, rewritten, act)
	}

	// There is a cc1 job to run: per spec.md §4.1 steps 2-4, job
	// planning discovers compile and link jobs independently, so a
	// bare "clang foo.c -o app" (isLink=true, no -c/-S/-E/-emit-llvm)
	// still gets its compile job instrumented before anything links.
	compileRes := o.compileAndInstrument(ctx, tc.ClangPath, rewritten, act, *parsed, mode)
	if !compileRes.Success || mode == ToMemory || !act.isLink {
		return compileRes
	}

	archive, aerr := toolchain.ResolveRuntimeArchive(projectDir)
	if aerr != nil {
		return Result{Success: false, Diagnostics: aerr.Error()}
	}
	linkArgs := replaceSourceWithObject(rewritten, act.singleTU, compileRes.ObjectPaths[0])
	linkArgs = append(linkArgs, linkExtras(archive)...)
	return o.passthrough(ctx, tc.ClangPath, linkArgs, act)
}

// replaceSourceWithObject turns a one-step invocation's argument list
// into a link-only one by swapping the source path classify chose for
// the object compileAndInstrument produced from it.
func replaceSourceWithObject(args []string, sourcePath, objectPath string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a == sourcePath {
			out = append(out, objectPath)
			continue
		}
		out = append(out, a)
	}
	return out
}

// passthrough executes clang directly for the non-instrumented (pure
// compiler-wrapper) path and for link jobs, matching spec.md §4.1 step
// 3's "short-circuits to the driver's ExecuteCompilation".
func (o *Orchestrator) passthrough(ctx context.Context, clangPath string, args []string, act action) Result {
	cmd := exec.CommandContext(ctx, clangPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = os.Stdout
	err := cmd.Run()
	res := Result{Success: err == nil, Diagnostics: stderr.String()}
	if err != nil && res.Diagnostics == "" {
		res.Diagnostics = err.Error()
	}
	return res
}

// compileAndInstrument implements spec.md §4.1 step 4: emit LLVM IR
// for the single TU, run the fixed pass pipeline, then either return
// the printed module (ToMemory) or hand it to internal/emit for object
// emission (ToFile).
func (o *Orchestrator) compileAndInstrument(ctx context.Context, clangPath string, args []string, act action, cfg passconfig.Result, mode Mode) Result {
	irText, diag, err := emitLLVMIR(ctx, clangPath, args)
	if err != nil {
		combined := multierr.Append(err, errors.New(diag))
		return Result{Success: false, Diagnostics: combined.Error()}
	}

	module, perr := ir.ParseSafe(irText)
	if perr != nil {
		return Result{Success: false, Diagnostics: fmt.Sprintf("parsing emitted IR: %v", perr)}
	}
	runPasses(module, cfg.Config)

	printed := module.String()

	if mode == ToMemory {
		return Result{Success: true, LLVMIR: printed}
	}

	// stripOutputArgs drops the caller's own "-o"/stop flags: emit.ToFile
	// and emit.ToTempFile supply their own, and a stray "-o app" left in
	// extraArgs would win as the last flag on the line and silently
	// redirect the object clang writes.
	codegenArgs := stripOutputArgs(args)

	if act.isLink {
		// The invocation's own -o (if any) names the link output, not
		// this compile step's object; give the object a throwaway path
		// for the link step that follows to consume.
		res, terr := emit.ToTempFile(ctx, clangPath, printed, emit.Object, codegenArgs)
		if terr != nil {
			return Result{Success: false, Diagnostics: terr.Error()}
		}
		return Result{Success: res.Success, Diagnostics: res.Diagnostics, ObjectPaths: []string{res.OutputPath}}
	}

	outPath := outputPathFor(args)
	res := emit.ToFile(ctx, clangPath, printed, outPath, emit.Object, codegenArgs)
	return Result{Success: res.Success, Diagnostics: res.Diagnostics, ObjectPaths: []string{res.OutputPath}}
}

// runPasses is the fixed pipeline order spec.md §4.1 mandates: trace,
// alloc, bounds, vtable, then Pass.Config writes globals last so every
// call the earlier passes inserted inherits config at runtime.
func runPasses(m *ir.Module, cfg config.RuntimeConfig) {
	interner := common.NewSiteInterner()
	pool := common.NewSitePool(m)

	if cfg.Trace {
		trace.Run(m, pool)
	}
	if cfg.Alloc {
		alloc.Run(m, interner, pool)
	}
	if cfg.Bounds {
		bounds.Run(m, interner, pool)
	}
	if cfg.Vtable || cfg.VcallTrace {
		vtable.Run(m, cfg, interner, pool)
	}
	passconfig.EmitGlobals(m, cfg)
}

func filterCodegenArgs(args []string) []string {
	var out []string
	skip := map[string]bool{"-emit-llvm": true, "-S": true}
	for _, a := range args {
		if skip[a] {
			continue
		}
		out = append(out, a)
	}
	return out
}

func outputPathFor(args []string) string {
	for i, a := range args {
		if a == "-o" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return "a.out"
}

func helpText() string {
	return `coretrace: a clang wrapper that instruments allocation, bounds, trace, and vtable behavior.
See --instrument, --ct-modules, --ct-shadow, --ct-* flags.`
}
