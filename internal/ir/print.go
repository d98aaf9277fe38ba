package ir

import "strings"

// String regenerates textual LLVM IR from the module. Unmodified
// globals and instructions are re-emitted from their Raw text; anything
// a pass mutated is re-synthesized from its typed fields.
func (m *Module) String() string {
	var b strings.Builder
	for _, h := range m.Header {
		b.WriteString(h)
		b.WriteByte('\n')
	}
	if len(m.Header) > 0 {
		b.WriteByte('\n')
	}

	for _, g := range m.Globals {
		b.WriteString(g.String())
		b.WriteByte('\n')
	}
	if len(m.Globals) > 0 {
		b.WriteByte('\n')
	}

	for _, f := range m.Functions {
		b.WriteString(f.String())
		b.WriteString("\n\n")
	}

	for _, a := range m.Attrs {
		b.WriteString(a)
		b.WriteByte('\n')
	}

	for _, md := range m.Metadata {
		b.WriteString(md.ID)
		b.WriteString(" = ")
		b.WriteString(md.Text)
		b.WriteByte('\n')
	}

	for _, t := range m.Trailing {
		b.WriteString(t)
		b.WriteByte('\n')
	}

	return b.String()
}

func (g *Global) String() string {
	if !g.Modified {
		return g.Raw
	}
	kind := "global"
	if g.IsConst {
		kind = "constant"
	}
	linkage := ""
	if g.Linkage != "" {
		linkage = g.Linkage + " "
	}
	init := g.Type
	if g.Init != "" {
		init = g.Type + " " + g.Init
	}
	return "@" + g.Name + " = " + linkage + kind + " " + init
}

func (f *Function) String() string {
	if f.IsDecl {
		return f.Raw
	}

	var b strings.Builder
	b.WriteString("define ")
	if f.Linkage != "" {
		b.WriteString(f.Linkage)
		b.WriteByte(' ')
	}
	b.WriteString(f.RetType)
	b.WriteString(" @")
	b.WriteString(f.Name)
	b.WriteByte('(')
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Type)
		if p.Name != "" {
			b.WriteByte(' ')
			b.WriteString(p.Name)
		}
	}
	b.WriteByte(')')
	if f.Attrs != "" {
		b.WriteByte(' ')
		b.WriteString(f.Attrs)
	}
	b.WriteString(" {\n")

	for _, bb := range f.Blocks {
		b.WriteString(bb.Label)
		b.WriteString(":\n")
		for _, inst := range bb.Instructions {
			b.WriteString("  ")
			b.WriteString(inst.String())
			b.WriteByte('\n')
		}
	}
	b.WriteString("}")
	return b.String()
}

func (inst *Instruction) String() string {
	text := inst.Raw
	if inst.Inserted {
		text = inst.synthesize()
	}
	if inst.DebugLoc != "" && !strings.Contains(text, "!dbg") {
		text += ", !dbg " + inst.DebugLoc
	}
	return text
}

// synthesize renders an instruction this package's callers built purely
// from typed fields (Inserted == true), used for calls Pass.Alloc/
// Pass.Bounds/Pass.Trace/Pass.Vtable insert rather than parse.
func (inst *Instruction) synthesize() string {
	switch inst.Kind {
	case Call:
		var b strings.Builder
		if inst.Result != "" {
			b.WriteString(inst.Result)
			b.WriteString(" = ")
		}
		b.WriteString("call ")
		b.WriteString(inst.RetType)
		if inst.RetType == "" {
			b.WriteString("void")
		}
		b.WriteByte(' ')
		b.WriteString(inst.Callee)
		b.WriteByte('(')
		b.WriteString(strings.Join(inst.Args, ", "))
		b.WriteByte(')')
		return b.String()
	case Invoke:
		var b strings.Builder
		if inst.Result != "" {
			b.WriteString(inst.Result)
			b.WriteString(" = ")
		}
		b.WriteString("invoke ")
		b.WriteString(inst.RetType)
		if inst.RetType == "" {
			b.WriteString("void")
		}
		b.WriteByte(' ')
		b.WriteString(inst.Callee)
		b.WriteByte('(')
		b.WriteString(strings.Join(inst.Args, ", "))
		b.WriteString(")\n          to label ")
		b.WriteString(inst.NormalDest)
		b.WriteString(" unwind label ")
		b.WriteString(inst.UnwindDest)
		return b.String()
	default:
		return inst.Raw
	}
}
