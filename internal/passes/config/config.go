// Package config implements Pass.Config: parsing the --ct-* flag family
// out of the driver's argument list into a config.RuntimeConfig, and
// emitting that configuration as weak-ODR globals into a compiled
// module (spec.md §4.6).
package config

import (
	"sort"
	"strings"

	"github.com/c2h5oh/datasize"

	"github.com/coretrace/coretrace/internal/config"
	"github.com/coretrace/coretrace/internal/ir"
)

// Result is everything Pass.Config produces from one argument list.
type Result struct {
	Config     config.RuntimeConfig
	Instrument bool
	InMemory   bool
	Help       bool
	// Remaining is args with every --ct-*/--instrument/--in-mem(ory)/
	// -h/--help flag stripped, in original order, ready to forward to
	// clang.
	Remaining []string
	// Unknown holds tokens from a --ct-modules=<csv> that didn't match
	// any known module name, for the driver to warn about.
	Unknown []string
}

// Parse walks args once, folding --ct-* flags into a RuntimeConfig that
// starts from config.Default() and stripping every flag this pass
// recognizes from the forwarded list. A bare "--" ends flag parsing:
// everything after it, including further "--ct-*" text, passes through
// verbatim (spec.md §6, "-- passes the remainder through unexamined").
func Parse(args []string) *Result {
	res := &Result{Config: config.Default()}

	for i := 0; i < len(args); i++ {
		a := args[i]

		if a == "--" {
			res.Remaining = append(res.Remaining, args[i+1:]...)
			break
		}

		switch {
		case a == "-h" || a == "--help":
			res.Help = true
		case a == "--instrument":
			res.Instrument = true
		case a == "--in-mem" || a == "--in-memory":
			res.InMemory = true
		case a == "--ct-shadow":
			res.Config.Shadow = true
		case a == "--ct-shadow=aggressive" || a == "--ct-shadow-aggressive":
			res.Config.Shadow = true
			res.Config.ShadowAggressive = true
		case a == "--ct-bounds-no-abort":
			res.Config.BoundsNoAbort = true
		case strings.HasPrefix(a, "--ct-modules="):
			tokens := splitCSV(strings.TrimPrefix(a, "--ct-modules="))
			res.Unknown = append(res.Unknown, res.Config.ApplyModules(tokens)...)
		case strings.HasPrefix(a, "--ct-shadow-max-bytes="):
			var v datasize.ByteSize
			if err := v.UnmarshalText([]byte(strings.TrimPrefix(a, "--ct-shadow-max-bytes="))); err == nil {
				res.Config.ShadowMaxBytes = v.Bytes()
			}
		default:
			if applied := applyToggle(&res.Config, a); applied {
				continue
			}
			res.Remaining = append(res.Remaining, a)
		}
	}

	return res
}

// toggleNames are the --ct-[no-]<name> pairs from spec.md §6, mapped to
// the RuntimeConfig field each one sets.
var toggleNames = map[string]func(*config.RuntimeConfig, bool){
	"trace":       func(c *config.RuntimeConfig, v bool) { c.Trace = v },
	"alloc":       func(c *config.RuntimeConfig, v bool) { c.Alloc = v },
	"bounds":      func(c *config.RuntimeConfig, v bool) { c.Bounds = v },
	"autofree":    func(c *config.RuntimeConfig, v bool) { c.Autofree = v },
	"alloc-trace": func(c *config.RuntimeConfig, v bool) { c.AllocTrace = v },
	"vcall-trace": func(c *config.RuntimeConfig, v bool) { c.VcallTrace = v },
	"vtable-diag": func(c *config.RuntimeConfig, v bool) { c.VtableDiag = v },
	"optnone":     func(c *config.RuntimeConfig, v bool) { c.Optnone = v },
}

func applyToggle(c *config.RuntimeConfig, arg string) bool {
	if !strings.HasPrefix(arg, "--ct-") {
		return false
	}
	rest := strings.TrimPrefix(arg, "--ct-")
	enable := true
	if strings.HasPrefix(rest, "no-") {
		enable = false
		rest = strings.TrimPrefix(rest, "no-")
	}
	set, ok := toggleNames[rest]
	if !ok {
		return false
	}
	set(c, enable)
	return true
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// EmitGlobals appends the weak-ODR integer globals config.ToGlobals
// produces to m, in a stable (sorted) order so repeated runs over the
// same configuration produce byte-identical IR.
func EmitGlobals(m *ir.Module, cfg config.RuntimeConfig) {
	globals := cfg.ToGlobals()

	names := make([]string, 0, len(globals))
	for name := range globals {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		m.Globals = append(m.Globals, &ir.Global{
			Name:     name,
			Linkage:  "weak_odr",
			IsConst:  false,
			Type:     "i32",
			Init:     itoa(globals[name]),
			Modified: true,
		})
	}
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	return "1"
}
