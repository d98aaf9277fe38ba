package ir

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reTargetDataLayout = regexp.MustCompile(`^target datalayout = "(.*)"$`)
	reGlobal           = regexp.MustCompile(`^@([\w.$]+) = (?:(private|internal|weak|weak_odr|linkonce|linkonce_odr|external|available_externally)\s+)?(?:(?:local_)?unnamed_addr\s+)?(constant|global)\s+(.+)$`)
	reFuncDecl         = regexp.MustCompile(`^declare\s+(?:[\w()]+\s+)*([\w.]+(?:\s*\*+)?)\s+@([\w.$]+)\((.*)\)\s*(.*)$`)
	reFuncDefStart     = regexp.MustCompile(`^define\s+(?:(private|internal|weak|weak_odr|linkonce|linkonce_odr)\s+)?(?:[\w()]+\s+)*([\w.]+(?:\s*\*+)?)\s+@([\w.$]+)\((.*)\)\s*([^{]*)\{$`)
	reLabel            = regexp.MustCompile(`^([\w.$-]+):(\s*;.*)?$`)
	reMetadata         = regexp.MustCompile(`^(![\w.$]+) = (.*)$`)
	reDbg              = regexp.MustCompile(`,?\s*!dbg\s+(![\d]+)\s*$`)
	reCall             = regexp.MustCompile(`^(?:(%[\w.$]+)\s*=\s*)?(tail\s+|musttail\s+|notail\s+)?call\s+[^@%]*?\s*(@[\w.$]+|%[\w.$]+)\s*\((.*?)\)`)
	reInvoke           = regexp.MustCompile(`^(?:(%[\w.$]+)\s*=\s*)?invoke\s+[^@%]*?\s*(@[\w.$]+|%[\w.$]+)\s*\((.*?)\)\s*to\s+label\s+(%[\w.$]+)\s+unwind\s+label\s+(%[\w.$]+)`)
	reLoad             = regexp.MustCompile(`^(%[\w.$]+)\s*=\s*load\s+(?:atomic\s+)?([\w.]+\**)\s*,\s*[\w.]+\**\s+([%@][\w.$]+)`)
	reStore            = regexp.MustCompile(`^store\s+(?:atomic\s+)?([\w.]+\**)\s+([^,]+),\s*[\w.]+\**\s+([%@][\w.$]+)`)
	reAtomicRMW        = regexp.MustCompile(`^(?:(%[\w.$]+)\s*=\s*)?atomicrmw\s+\S+\s+[\w.]+\**\s+(%[\w.$@]+),\s*([\w.]+\**)\s+([^\s]+)`)
	reCmpXchg          = regexp.MustCompile(`^(?:(%[\w.$]+)\s*=\s*)?cmpxchg\s+[\w.]+\**\s+(%[\w.$@]+),\s*([\w.]+\**)\s+([^,]+),`)
	reRet              = regexp.MustCompile(`^ret\s+(void|[\w.]+\**)\s*(.*)$`)
	reAssign           = regexp.MustCompile(`^(%[\w.$]+)\s*=`)
)

// Parse builds a Module from raw LLVM IR text, per the scope described
// in the package doc comment.
func Parse(text string) *Module {
	m := &Module{}
	lines := strings.Split(text, "\n")

	i := 0
	// Header: target datalayout/triple and blank/comment lines before
	// the first global, declare, or define.
	for i < len(lines) {
		l := lines[i]
		trimmed := strings.TrimSpace(l)
		if trimmed == "" || strings.HasPrefix(trimmed, ";") ||
			strings.HasPrefix(trimmed, "target ") || strings.HasPrefix(trimmed, "source_filename") {
			m.Header = append(m.Header, l)
			i++
			continue
		}
		break
	}

	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			i++
		case strings.HasPrefix(trimmed, "@"):
			m.Globals = append(m.Globals, parseGlobal(trimmed))
			i++
		case strings.HasPrefix(trimmed, "declare "):
			m.Functions = append(m.Functions, parseFuncDecl(trimmed))
			i++
		case strings.HasPrefix(trimmed, "define "):
			fn, consumed := parseFuncDef(lines[i:])
			m.Functions = append(m.Functions, fn)
			i += consumed
		case strings.HasPrefix(trimmed, "attributes "):
			m.Attrs = append(m.Attrs, trimmed)
			i++
		case strings.HasPrefix(trimmed, "!") && reMetadata.MatchString(trimmed):
			mm := reMetadata.FindStringSubmatch(trimmed)
			m.Metadata = append(m.Metadata, &MetadataNode{ID: mm[1], Text: mm[2]})
			i++
		default:
			m.Trailing = append(m.Trailing, line)
			i++
		}
	}

	return m
}

// DataLayout extracts the pointer width from the module's `target
// datalayout` line, defaulting to 8 bytes (LP64) when absent or
// unparseable — every platform CoreTrace targets in practice is LP64.
func (m *Module) DataLayout() DataLayout {
	for _, h := range m.Header {
		if mm := reTargetDataLayout.FindStringSubmatch(strings.TrimSpace(h)); mm != nil {
			for _, spec := range strings.Split(mm[1], "-") {
				if strings.HasPrefix(spec, "p:") {
					fields := strings.Split(spec, ":")
					if len(fields) >= 2 {
						if bits, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
							return DataLayout{PointerBytes: bits / 8}
						}
					}
				}
			}
		}
	}
	return DataLayout{PointerBytes: 8}
}

func parseGlobal(line string) *Global {
	g := &Global{Raw: line}
	mm := reGlobal.FindStringSubmatch(line)
	if mm == nil {
		return g
	}
	g.Name = mm[1]
	g.Linkage = mm[2]
	g.IsConst = mm[3] == "constant"
	rest := mm[4]
	fields := strings.SplitN(rest, " ", 2)
	g.Type = fields[0]
	if len(fields) > 1 {
		g.Init = fields[1]
	}
	return g
}

func parseFuncDecl(line string) *Function {
	f := &Function{Raw: line, IsDecl: true}
	if mm := reFuncDecl.FindStringSubmatch(line); mm != nil {
		f.RetType = strings.TrimSpace(mm[1])
		f.Name = mm[2]
		f.Params = parseParams(mm[3])
		f.Attrs = strings.TrimSpace(mm[4])
	}
	return f
}

// parseFuncDef parses a `define ... {` line plus its body up to the
// matching `}`. Returns the number of lines consumed.
func parseFuncDef(lines []string) (*Function, int) {
	header := strings.TrimSpace(lines[0])
	f := &Function{}
	if mm := reFuncDefStart.FindStringSubmatch(header); mm != nil {
		f.Linkage = mm[1]
		f.RetType = strings.TrimSpace(mm[2])
		f.Name = mm[3]
		f.Params = parseParams(mm[4])
		f.Attrs = strings.TrimSpace(mm[5])
	}

	i := 1
	var cur *BasicBlock
	for i < len(lines) {
		raw := lines[i]
		trimmed := strings.TrimSpace(raw)
		if trimmed == "}" {
			i++
			break
		}
		if mm := reLabel.FindStringSubmatch(trimmed); mm != nil && !strings.HasPrefix(raw, "  ") {
			cur = &BasicBlock{Label: mm[1]}
			f.Blocks = append(f.Blocks, cur)
			i++
			continue
		}
		if trimmed == "" {
			i++
			continue
		}
		if cur == nil {
			cur = &BasicBlock{Label: "entry"}
			f.Blocks = append(f.Blocks, cur)
		}
		cur.Instructions = append(cur.Instructions, parseInstruction(trimmed))
		i++
	}
	return f, i
}

func parseParams(paramList string) []Param {
	paramList = strings.TrimSpace(paramList)
	if paramList == "" {
		return nil
	}
	var out []Param
	for _, p := range splitTopLevelCommas(paramList) {
		p = strings.TrimSpace(p)
		if p == "..." {
			continue
		}
		fields := strings.Fields(p)
		if len(fields) == 0 {
			continue
		}
		param := Param{Type: fields[0]}
		if len(fields) > 1 && strings.HasPrefix(fields[len(fields)-1], "%") {
			param.Name = fields[len(fields)-1]
		}
		out = append(out, param)
	}
	return out
}

// splitTopLevelCommas splits on commas that are not nested inside
// parentheses, matching LLVM IR's argument-list grammar closely enough
// for the call/param shapes this package parses.
func splitTopLevelCommas(s string) []string {
	var out []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

func extractDebugLoc(s string) (rest, dbg string) {
	if mm := reDbg.FindStringSubmatch(s); mm != nil {
		return strings.TrimSpace(s[:strings.LastIndex(s, mm[0])]), mm[1]
	}
	return s, ""
}

func parseInstruction(line string) *Instruction {
	body, dbg := extractDebugLoc(line)
	inst := &Instruction{Raw: line, DebugLoc: dbg}

	switch {
	case reInvoke.MatchString(body):
		mm := reInvoke.FindStringSubmatch(body)
		inst.Kind = Invoke
		inst.Result = mm[1]
		inst.Callee, inst.CalleeExpr = calleeName(mm[2]), mm[2]
		inst.Args = splitCallArgs(mm[3])
		inst.NormalDest = mm[4]
		inst.UnwindDest = mm[5]
	case reCall.MatchString(body):
		mm := reCall.FindStringSubmatch(body)
		inst.Kind = Call
		inst.Result = mm[1]
		inst.Callee, inst.CalleeExpr = calleeName(mm[3]), mm[3]
		inst.Args = splitCallArgs(mm[4])
		if isMemIntrinsic(inst.Callee) {
			inst.Kind = MemIntrinsic
		}
	case reLoad.MatchString(body):
		mm := reLoad.FindStringSubmatch(body)
		inst.Kind = Load
		inst.Result = mm[1]
		inst.AccessType = mm[2]
		inst.PointerOperand = mm[3]
	case reStore.MatchString(body):
		mm := reStore.FindStringSubmatch(body)
		inst.Kind = Store
		inst.AccessType = mm[1]
		inst.ValueOperand = strings.TrimSpace(mm[2])
		inst.PointerOperand = mm[3]
	case reAtomicRMW.MatchString(body):
		mm := reAtomicRMW.FindStringSubmatch(body)
		inst.Kind = AtomicRMW
		inst.Result = mm[1]
		inst.PointerOperand = mm[2]
		inst.AccessType = mm[3]
		inst.ValueOperand = mm[4]
	case reCmpXchg.MatchString(body):
		mm := reCmpXchg.FindStringSubmatch(body)
		inst.Kind = CmpXchg
		inst.Result = mm[1]
		inst.PointerOperand = mm[2]
		inst.AccessType = mm[3]
		inst.ValueOperand = mm[4]
	case strings.HasPrefix(body, "ret "):
		mm := reRet.FindStringSubmatch(body)
		inst.Kind = Ret
		if mm != nil {
			inst.RetType = mm[1]
			inst.RetValue = strings.TrimSpace(mm[2])
		}
	case strings.HasPrefix(body, "br "):
		inst.Kind = Br
	case strings.HasPrefix(body, "switch "):
		inst.Kind = Switch
	case strings.Contains(body, " = alloca "):
		inst.Kind = Alloca
		if idx := strings.Index(body, " = alloca "); idx > 0 {
			inst.Result = strings.TrimSpace(body[:idx])
		}
	default:
		inst.Kind = Other
		if mm := reAssign.FindStringSubmatch(body); mm != nil {
			inst.Result = mm[1]
		}
	}
	return inst
}

func calleeName(expr string) string {
	if strings.HasPrefix(expr, "@") {
		return expr
	}
	return "" // indirect call target, e.g. "%3"
}

func isMemIntrinsic(callee string) bool {
	switch callee {
	case "@llvm.memset", "@llvm.memcpy", "@llvm.memmove":
		return true
	}
	return strings.HasPrefix(callee, "@llvm.memset.") ||
		strings.HasPrefix(callee, "@llvm.memcpy.") ||
		strings.HasPrefix(callee, "@llvm.memmove.")
}

func splitCallArgs(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var out []string
	for _, a := range splitTopLevelCommas(s) {
		out = append(out, strings.TrimSpace(a))
	}
	return out
}
