// Package config defines RuntimeConfig, the twelve-boolean-plus-derived
// feature set shared by the instrumentation passes (which choose what to
// insert) and the runtime library (which chooses what to honor).
//
// A RuntimeConfig value flows two ways: Pass.Config folds it from --ct-*
// flags and emits it as weak-ODR globals inside every compiled module;
// the runtime reads those globals at startup and folds them again with
// environment overrides. The runtime applies the compiled globals first
// and the environment second (features.ApplyCompiledConfig, then
// features.ApplyEnv), so environment values win over compiled ones.
package config

// RuntimeConfig is the twelve-boolean feature set from spec.md §3, plus the
// BoundsWithoutAlloc value derived from it.
type RuntimeConfig struct {
	Shadow           bool
	ShadowAggressive bool
	BoundsNoAbort    bool
	Trace            bool
	Alloc            bool
	Bounds           bool
	Autofree         bool
	AllocTrace       bool
	Vtable           bool
	VcallTrace       bool
	VtableDiag       bool
	Optnone          bool
	// ShadowMaxBytes caps Runtime.Shadow's page-table growth, a debug
	// knob (--ct-shadow-max-bytes) with no compiled-global counterpart:
	// it is a driver/env-only setting, never emitted into a module.
	ShadowMaxBytes uint64
}

// Default returns the configuration clang gets when --instrument is
// passed with no --ct-modules selection: alloc and bounds tracing on,
// trace/vtable off, shadow off. An explicit module list does not start
// from these values: ApplyModules first clears all four module toggles,
// so an empty token list leaves alloc and bounds off as well.
func Default() RuntimeConfig {
	return RuntimeConfig{
		Alloc:      true,
		Bounds:     true,
		AllocTrace: true,
		Autofree:   true,
	}
}

// BoundsWithoutAlloc reports the derived condition named in spec.md §3:
// bounds checking is requested but allocation tracking (which populates
// the table bounds checking consults) is not. The runtime still honors
// this — pointers into non-tracked memory simply never match in the
// table — but it is useful for driver-side warnings.
func (c RuntimeConfig) BoundsWithoutAlloc() bool {
	return c.Bounds && !c.Alloc
}

// ModuleTokens are the values accepted by --ct-modules=<csv>.
const (
	ModuleTrace = "trace"
	ModuleAlloc = "alloc"
	ModuleBounds = "bounds"
	ModuleVtable = "vtable"
	ModuleAll   = "all"
)

// ApplyModules resets the four module toggles (trace/alloc/bounds/vtable)
// to false and then enables each named in tokens, per spec.md §4.6:
// "module-list resets defaults before applying tokens". Unknown tokens
// are collected and returned so callers can produce a driver diagnostic;
// they do not abort parsing.
func (c *RuntimeConfig) ApplyModules(tokens []string) (unknown []string) {
	c.Trace = false
	c.Alloc = false
	c.Bounds = false
	c.Vtable = false

	for _, tok := range tokens {
		switch tok {
		case ModuleTrace:
			c.Trace = true
		case ModuleAlloc:
			c.Alloc = true
		case ModuleBounds:
			c.Bounds = true
		case ModuleVtable:
			c.Vtable = true
		case ModuleAll:
			c.Trace = true
			c.Alloc = true
			c.Bounds = true
			c.Vtable = true
		default:
			unknown = append(unknown, tok)
		}
	}
	return unknown
}

// GlobalNames are the exact weak-ODR global names Pass.Config emits and
// the runtime's env layer reads, per spec.md §3 and §4.6.
var GlobalNames = struct {
	Shadow, ShadowAggressive, BoundsNoAbort           string
	DisableAlloc, DisableAutofree, DisableAllocTrace  string
	VtableDiag                                        string
}{
	Shadow:            "__ct_config_shadow",
	ShadowAggressive:  "__ct_config_shadow_aggressive",
	BoundsNoAbort:     "__ct_config_bounds_no_abort",
	DisableAlloc:      "__ct_config_disable_alloc",
	DisableAutofree:   "__ct_config_disable_autofree",
	DisableAllocTrace: "__ct_config_disable_alloc_trace",
	VtableDiag:        "__ct_config_vtable_diag",
}

// ToGlobals converts a RuntimeConfig into the {name: 0|1} map that
// Pass.Config emits as module-level globals. Note the polarity flip for
// the "disable" globals: RuntimeConfig stores positive intent (Alloc
// enabled) while the compiled globals store negative intent (matching
// original_source's __ct_config_disable_* naming), so the runtime's
// env.go constructor can treat "global absent" (weak, unlinked, reads as
// zero) as "no override" for every flag uniformly.
func (c RuntimeConfig) ToGlobals() map[string]int {
	b2i := func(b bool) int {
		if b {
			return 1
		}
		return 0
	}
	return map[string]int{
		GlobalNames.Shadow:            b2i(c.Shadow),
		GlobalNames.ShadowAggressive:  b2i(c.ShadowAggressive),
		GlobalNames.BoundsNoAbort:     b2i(c.BoundsNoAbort),
		GlobalNames.DisableAlloc:      b2i(!c.Alloc),
		GlobalNames.DisableAutofree:   b2i(!c.Autofree),
		GlobalNames.DisableAllocTrace: b2i(!c.AllocTrace),
		GlobalNames.VtableDiag:        b2i(c.VtableDiag),
	}
}
