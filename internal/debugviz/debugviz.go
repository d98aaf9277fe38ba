// Package debugviz renders the per-function escape-analysis findings
// Pass.Alloc computes (internal/passes/alloc.Analyze) as a graphviz
// digraph. No --ct-* flag or driver code path calls it; RenderFunction
// and RenderModule are invoked directly. This is a supplemental
// feature: the runtime's ct_runtime_alloc.cpp tracks the same
// reachable-local/escaped-store/escaped-return/escaped-call states per
// allocation site at runtime, and a static picture of the compiler's
// own classification is useful for the same reason a call graph is —
// it lets a reader see the shape of a decision that's otherwise buried
// in per-site log lines.
package debugviz

import (
	"fmt"

	"github.com/goccy/go-graphviz"

	"github.com/coretrace/coretrace/internal/ir"
	"github.com/coretrace/coretrace/internal/passes/alloc"
)

// stateColor mirrors the four EscapeState values with the same
// at-a-glance red/blue-for-notable convention callgraph.go uses for
// "covered" vs. plain nodes.
func stateColor(s alloc.EscapeState) string {
	switch s {
	case alloc.ReachableLocal:
		return "green"
	case alloc.EscapedStore:
		return "orange"
	case alloc.EscapedReturn:
		return "red"
	case alloc.EscapedCall:
		return "red"
	default:
		return "black"
	}
}

// RenderFunction renders one function's allocation sites and their
// escape classification to path, in the given graphviz output format
// ("svg", "png", "xdot", ...).
func RenderFunction(fn *ir.Function, format graphviz.Format, path string) error {
	findings := alloc.Analyze(fn)

	g := graphviz.New()
	digraph, err := g.Graph()
	if err != nil {
		return fmt.Errorf("debugviz: %w", err)
	}
	defer func() {
		digraph.Close()
		g.Close()
	}()

	digraph.SetLabel(fn.Name + " escape analysis")
	digraph.SetRankDir("LR")

	entry, err := digraph.CreateNode(fn.Name)
	if err != nil {
		return fmt.Errorf("debugviz: %w", err)
	}
	entry.SetShape("box")

	for i, f := range findings {
		nodeName := fmt.Sprintf("%s.site%d", fn.Name, i)
		n, cerr := digraph.CreateNode(nodeName)
		if cerr != nil {
			return fmt.Errorf("debugviz: %w", cerr)
		}
		n.SetShape("ellipse")
		n.SetColor(stateColor(f.State))
		label := fmt.Sprintf("%s %s\n%s", f.Instr.Result, f.Op.RuntimeSymbol(f.Unreachable), f.State)
		if f.Unreachable {
			label += "\n(unreachable)"
		}
		n.SetLabel(label)

		edge, eerr := digraph.CreateEdge(fmt.Sprintf("%s-site%d", fn.Name, i), entry, n)
		if eerr != nil {
			return fmt.Errorf("debugviz: %w", eerr)
		}
		edge.SetLabel(f.State.String())
	}

	if err := g.RenderFilename(digraph, format, path); err != nil {
		return fmt.Errorf("debugviz: rendering %s: %w", path, err)
	}
	return nil
}

// RenderModule renders every function with at least one allocation
// site finding to its own file under dir, named "<function>.<ext>".
func RenderModule(m *ir.Module, format graphviz.Format, dir string) error {
	for _, fn := range m.Functions {
		if fn.IsDecl {
			continue
		}
		if len(alloc.Analyze(fn)) == 0 {
			continue
		}
		path := dir + "/" + fn.Name + "." + string(format)
		if err := RenderFunction(fn, format, path); err != nil {
			return err
		}
	}
	return nil
}
