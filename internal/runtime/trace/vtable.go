package trace

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/coretrace/coretrace/internal/runtime/alloctable"
	"github.com/coretrace/coretrace/internal/runtime/features"
	"github.com/coretrace/coretrace/internal/runtime/logger"
)

// VtableInfo is what reading the vptr at an object's address yields:
// the vtable pointer itself, the RTTI type_info name derived from it
// (when available), and the Itanium "offset to top" prefix word.
type VtableInfo struct {
	Vtable      uintptr
	TypeName    string
	HasTypeInfo bool
	OffsetToTop int64
}

// ModuleInfo identifies the shared object/executable an address falls
// within, resolved via dyld iteration on macOS or dl_iterate_phdr on
// other platforms (spec.md §4.11) — a platform capability this package
// receives through Resolver rather than implementing itself.
type ModuleInfo struct {
	Path string
}

func (m ModuleInfo) display() string {
	if m.Path == "" {
		return "<unknown>"
	}
	i := strings.LastIndexByte(m.Path, '/')
	if i < 0 {
		return m.Path
	}
	return m.Path[i+1:]
}

// AddrInfo is the result of resolving an arbitrary code/data address to
// its owning module and executability.
type AddrInfo struct {
	Module    ModuleInfo
	HasModule bool
	ExecKnown bool
	IsExec    bool
}

// SymbolLookup resolves a code address to its exported symbol name, for
// the "demangled call target" line in __ct_vcall_trace's box.
type SymbolLookup func(addr uintptr) (symbol string, ok bool)

// Resolver is the platform-specific half of the vtable diagnostic:
// reading an object's vptr, resolving addresses to owning modules, and
// looking up symbols. cmd/libctruntime backs this with dl_iterate_phdr/
// dladdr (or dyld APIs on Darwin); this package only makes decisions
// from what Resolver reports.
type Resolver interface {
	ReadVtableInfo(thisPtr uintptr) (VtableInfo, bool)
	ResolveAddress(addr uintptr) AddrInfo
	LookupSymbol(addr uintptr) (string, bool)
}

// VtableDiag runs the vtable/vcall diagnostic against a Resolver and the
// process's AllocTable (to flag a vptr read through a freed object).
type VtableDiag struct {
	Table    *alloctable.Table
	Resolver Resolver

	diagStateLogged atomic.Bool
}

func isUnknownType(name string) bool { return name == "" || name == "<unknown>" }

// boxLine is one label/value row of the ASCII diagnostic box, matching
// ct_log_box's CtBoxLine.
type boxLine struct{ label, value string }

func logBox(level logger.Level, title string, lines []boxLine) {
	if len(lines) == 0 {
		return
	}
	labelWidth, valueWidth := 0, 0
	for _, l := range lines {
		if len(l.label) > labelWidth {
			labelWidth = len(l.label)
		}
		if len(l.value) > valueWidth {
			valueWidth = len(l.value)
		}
	}
	if valueWidth == 0 {
		valueWidth = 1
	}

	logger.Log(level, "┌─ %s %s┐", title, strings.Repeat("─", 1))
	for _, l := range lines {
		v := l.value
		if v == "" {
			v = "<empty>"
		}
		logger.Log(level, "│ %-*s : %-*s │", labelWidth, l.label, valueWidth, v)
	}
	logger.Log(level, "└%s┘", strings.Repeat("─", labelWidth+valueWidth+5))
}

// logDiagStateOnce implements ct_log_vtable_diag_state: the first call
// after --ct-vtable-diag is enabled logs whether alloc tracking (needed
// to flag "vptr on freed object") is available.
func (d *VtableDiag) logDiagStateOnce() {
	if !features.IsEnabled(features.VtableDiag) {
		return
	}
	if !d.diagStateLogged.CompareAndSwap(false, true) {
		return
	}
	if features.IsEnabled(features.Alloc) {
		logger.Log(logger.Info, "[VTABLE-DIAG]: alloc-tracking=enabled")
		return
	}
	logger.Log(logger.Info, "[VTABLE-DIAG]: alloc-tracking=disabled")
}

func (d *VtableDiag) freedThroughThis(thisPtr uintptr) bool {
	if !features.IsEnabled(features.Alloc) || thisPtr == 0 {
		return false
	}
	e, ok := d.Table.LookupContaining(thisPtr)
	return ok && e.State == alloctable.Freed
}

// Dump implements __ct_vtable_dump(this, site, static_type).
func (d *VtableDiag) Dump(thisPtr uintptr, site, staticType string) {
	if !logger.Enabled() {
		return
	}
	d.logDiagStateOnce()

	info, hasVtable := d.Resolver.ReadVtableInfo(thisPtr)
	typeName := "<unknown>"
	if hasVtable {
		typeName = info.TypeName
		if typeName == "" {
			typeName = "<unknown>"
		}
	}

	lines := []boxLine{{"site", siteNameOr(site)}}
	if thisPtr == 0 {
		lines = append(lines, boxLine{"this", "<null>"})
	} else {
		lines = append(lines, boxLine{"this", fmt.Sprintf("%#x", thisPtr)})
	}
	if hasVtable {
		lines = append(lines, boxLine{"vtable", fmt.Sprintf("%#x", info.Vtable)})
		lines = append(lines, boxLine{"off_top", fmt.Sprintf("%d", info.OffsetToTop)})
	}
	lines = append(lines, boxLine{"type", typeName})
	if features.IsEnabled(features.VtableDiag) && !isUnknownType(staticType) {
		lines = append(lines, boxLine{"static", staticType})
	}

	var warnings []string
	if features.IsEnabled(features.VtableDiag) {
		if thisPtr == 0 {
			warnings = append(warnings, "null this pointer")
		}
		if !hasVtable {
			warnings = append(warnings, "no vptr")
		}
		if hasVtable && !info.HasTypeInfo {
			warnings = append(warnings, "missing typeinfo")
		}
		if hasVtable {
			addr := d.Resolver.ResolveAddress(info.Vtable)
			if addr.HasModule {
				lines = append(lines, boxLine{"vmod", addr.Module.display()})
			} else {
				warnings = append(warnings, "vtable resolve failed")
			}
		}
		if d.freedThroughThis(thisPtr) {
			warnings = append(warnings, "vptr on freed object")
		}
		if !isUnknownType(staticType) && typeName != "<unknown>" && typeName != staticType {
			warnings = append(warnings, "static!=dynamic type")
		}
	}
	for _, w := range warnings {
		lines = append(lines, boxLine{"warn", w})
	}

	level := logger.Info
	if len(warnings) > 0 {
		level = logger.Warn
	}
	logBox(level, "vtable", lines)
}

// VcallTrace implements __ct_vcall_trace(this, target, site, static_type).
func (d *VtableDiag) VcallTrace(thisPtr, target uintptr, site, staticType string) {
	if !logger.Enabled() {
		return
	}
	d.logDiagStateOnce()

	info, hasVtable := d.Resolver.ReadVtableInfo(thisPtr)
	typeName := "<unknown>"
	if hasVtable {
		typeName = info.TypeName
		if typeName == "" {
			typeName = "<unknown>"
		}
	}

	var symbolName, demangledName = "<unknown>", "<unknown>"
	if target != 0 {
		if sym, ok := d.Resolver.LookupSymbol(target); ok {
			symbolName = sym
			demangledName = sym
		}
	}

	lines := []boxLine{
		{"site", siteNameOr(site)},
		{"this", nullOrHex(thisPtr)},
		{"vtable", vtableValue(hasVtable, info.Vtable)},
		{"type", typeName},
		{"target", nullOrHex(target)},
		{"symbol", symbolName},
		{"demangled", demangledName},
	}
	if features.IsEnabled(features.VtableDiag) && !isUnknownType(staticType) {
		lines = append(lines, boxLine{"static", staticType})
	}

	var warnings []string
	var vtableAddr, targetAddr AddrInfo
	if features.IsEnabled(features.VtableDiag) {
		if thisPtr == 0 {
			warnings = append(warnings, "null this pointer")
		}
		if !hasVtable {
			warnings = append(warnings, "no vptr")
		}
		if hasVtable && !info.HasTypeInfo {
			warnings = append(warnings, "missing typeinfo")
		}
		if hasVtable {
			vtableAddr = d.Resolver.ResolveAddress(info.Vtable)
			if vtableAddr.HasModule {
				lines = append(lines, boxLine{"vmod", vtableAddr.Module.display()})
			} else {
				warnings = append(warnings, "vtable resolve failed")
			}
		}
		if target != 0 {
			targetAddr = d.Resolver.ResolveAddress(target)
			if targetAddr.HasModule {
				lines = append(lines, boxLine{"tmod", targetAddr.Module.display()})
			}
		}
		if d.freedThroughThis(thisPtr) {
			warnings = append(warnings, "vptr on freed object")
		}
		if !isUnknownType(staticType) && typeName != "<unknown>" && typeName != staticType {
			warnings = append(warnings, "static!=dynamic type")
		}

		switch {
		case vtableAddr.HasModule && targetAddr.HasModule:
			if vtableAddr.Module.Path != targetAddr.Module.Path {
				warnings = append(warnings, fmt.Sprintf("module mismatch: vtable=%s target=%s",
					vtableAddr.Module.display(), targetAddr.Module.display()))
			}
		case vtableAddr.HasModule && !targetAddr.HasModule && target != 0:
			if targetAddr.ExecKnown && !targetAddr.IsExec {
				warnings = append(warnings, "target in non-exec memory")
			} else {
				lines = append(lines, boxLine{"note", "target module unresolved"})
			}
		case !vtableAddr.HasModule && targetAddr.HasModule:
			lines = append(lines, boxLine{"note", "vtable module unresolved"})
		case !vtableAddr.HasModule && !targetAddr.HasModule && target != 0:
			if targetAddr.ExecKnown && !targetAddr.IsExec {
				warnings = append(warnings, "target in non-exec memory")
			} else {
				lines = append(lines, boxLine{"note", "modules unresolved"})
			}
		}
	}
	for _, w := range warnings {
		lines = append(lines, boxLine{"warn", w})
	}

	level := logger.Info
	if len(warnings) > 0 {
		level = logger.Warn
	}
	logBox(level, "vcall", lines)
}

func siteNameOr(site string) string {
	if site == "" {
		return "<unknown>"
	}
	return site
}

func nullOrHex(v uintptr) string {
	if v == 0 {
		return "<null>"
	}
	return fmt.Sprintf("%#x", v)
}

func vtableValue(has bool, vtable uintptr) string {
	if !has || vtable == 0 {
		return "<unknown>"
	}
	return fmt.Sprintf("%#x", vtable)
}
