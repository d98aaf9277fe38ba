// Package ir implements a self-contained Go model of the subset of LLVM
// textual IR (`.ll`) that Pass.Config/Pass.Alloc/Pass.Bounds/Pass.Trace/
// Pass.Vtable need to recognize and rewrite: call instructions,
// load/store/atomicrmw/cmpxchg, memory intrinsics, terminators, and
// `!dbg` attachments.
//
// This plays the same role for the instrumentation passes that go/ast
// plays for cmd/racedetector/instrument: a parser (Parse) builds a
// Module from text, the passes mutate it in place, and a printer
// (Module.String) regenerates text — a deliberately narrower grammar
// than the full LLVM Language Reference, scoped per SPEC_FULL.md §0 to
// exactly what the passes touch. Anything outside that subset (vector
// types, exception-handling landingpads, opaque struct bodies, ...) is
// preserved verbatim as opaque text rather than modeled structurally.
package ir

// Module is one parsed LLVM IR compilation unit (one .ll file / one cc1
// job's translation unit).
type Module struct {
	Header    []string // target datalayout/triple and other pre-amble lines, verbatim
	Globals   []*Global
	Functions []*Function
	Metadata  []*MetadataNode
	Attrs     []string // attribute group definitions (`attributes #0 = { ... }`), verbatim
	Trailing  []string // anything after the last recognized top-level item
}

// Global is a module-level global variable or alias declaration/definition.
type Global struct {
	Name     string // without leading '@'
	Linkage  string // "weak", "internal", "", ...
	IsConst  bool
	Type     string
	Init     string // initializer text, "" for a declaration
	Raw      string // full source line, used to re-emit unless mutated
	Modified bool
}

// Function is a declared or defined function. Declarations have no
// basic blocks.
type Function struct {
	Name       string // without leading '@'
	RetType    string
	Params     []Param
	IsVarArg   bool
	Attrs      string // trailing attribute-group references, e.g. "#0"
	Linkage    string
	Blocks     []*BasicBlock
	Raw        string // declaration line, for functions with no body
	IsDecl     bool
	Subprogram *MetadataNode // !dbg attachment on the definition, if any
}

// Param is one formal parameter.
type Param struct {
	Type string
	Name string // "" for declarations that only list types
}

// BasicBlock is a labeled sequence of instructions ending in a terminator.
type BasicBlock struct {
	Label        string
	Instructions []*Instruction
}

// Kind classifies an Instruction for the subset of opcodes the passes
// act on; everything else is Other and kept as opaque text.
type Kind int

const (
	Other Kind = iota
	Call
	Invoke
	Load
	Store
	AtomicRMW
	CmpXchg
	MemIntrinsic // llvm.memset/memcpy/memmove
	Ret
	Br
	Switch
	Alloca
)

// Instruction is one line inside a BasicBlock. Parse fills in the typed
// fields it recognizes (Result, Kind, Callee, Args, PointerOperand,
// AccessType, DebugLoc); Raw always holds the full original text so an
// unrecognized or unmodified instruction round-trips exactly.
type Instruction struct {
	Raw    string
	Kind   Kind
	Result string // "%3", "" if the instruction has no result

	// Call/Invoke
	Callee     string // "@malloc", or "" for an indirect call
	CalleeExpr string // full callee operand text, used for indirect-call pattern matching
	Args       []string
	NormalDest string // Invoke only
	UnwindDest string // Invoke only

	// Load/Store/AtomicRMW/CmpXchg/MemIntrinsic
	PointerOperand string
	ValueOperand   string
	AccessType     string
	AccessSize     int64 // in bytes; Parse leaves it 0 and Pass.Bounds sizes accesses with DataLayout.SizeOf instead

	// Ret
	RetType  string
	RetValue string

	DebugLoc string // "!7", "" if absent

	Inserted bool // true for instructions a pass added, for diagnostics/tests
}

// MetadataNode is one `!N = ...` line, most importantly DILocation and
// DISubprogram nodes the passes read line/col/scope out of.
type MetadataNode struct {
	ID   string // "!7"
	Text string // everything after "= "
}

// DataLayout is the subset of a target datalayout string the passes
// need: the pointer size, used by SizeOf when a load/store's type has a
// data-layout-dependent size.
type DataLayout struct {
	PointerBytes int64
}

// SizeOf returns the store size in bytes of a scalar LLVM type string
// this package's callers pass to it (i8, i32, i64, ptr/i8*, double, ...).
// Aggregate and vector types are out of the scope Pass.Bounds needs
// (bounds checks are inserted around scalar loads/stores/atomics); such
// types return 0, meaning "unknown, caller must skip."
func (d DataLayout) SizeOf(typ string) int64 {
	switch typ {
	case "ptr", "i8*", "i8":
		if typ == "i8" {
			return 1
		}
		if d.PointerBytes > 0 {
			return d.PointerBytes
		}
		return 8
	case "i16":
		return 2
	case "i32", "float":
		return 4
	case "i64", "double":
		return 8
	case "i128":
		return 16
	default:
		return 0
	}
}
