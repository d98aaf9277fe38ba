// Package common implements Pass.Common: site-string interning and the
// shouldInstrument candidate filter shared by every instrumentation
// pass (spec.md §4.1 "Site formatting" and "Candidate filtering").
package common

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/gobwas/glob"

	"github.com/coretrace/coretrace/internal/ir"
)

// Unknown is the lazily-created constant every site formatter falls
// back to when a DILocation is missing filename/line/column.
const Unknown = "<unknown>"

// SiteInterner deduplicates "basename:line:col" strings per DILocation,
// so two instructions sharing a debug location share one site pointer —
// the same interning shape spec.md §4.1 assigns to both site strings
// and Pass.Vtable's type-name strings. Backed by
// github.com/orcaman/concurrent-map/v2 so one interner is safe to share
// across goroutines; internal/driver/orchestrator itself runs the passes
// for its single translation unit on one goroutine.
type SiteInterner struct {
	byLocation cmap.ConcurrentMap[string, string]
	unknown    sync.Once
	unknownVal string
}

// NewSiteInterner constructs an empty interner.
func NewSiteInterner() *SiteInterner {
	return &SiteInterner{byLocation: cmap.New[string]()}
}

// DILocation is the subset of a parsed !DILocation node's fields the
// site formatter needs.
type DILocation struct {
	File   string
	Line   int
	Column int
}

// Site formats and interns "basename:line:col", falling back to Unknown
// when file/line are absent. Locations are keyed by their raw metadata
// ID (a DILocation only ever has one shape, so re-parsing is wasted work).
func (s *SiteInterner) Site(metadataID string, loc *DILocation) string {
	if loc == nil || loc.File == "" || loc.Line == 0 {
		s.unknown.Do(func() { s.unknownVal = Unknown })
		return s.unknownVal
	}
	if v, ok := s.byLocation.Get(metadataID); ok {
		return v
	}
	site := fmt.Sprintf("%s:%d:%d", filepath.Base(loc.File), loc.Line, loc.Column)
	s.byLocation.SetIfAbsent(metadataID, site)
	v, _ := s.byLocation.Get(metadataID)
	return v
}

// systemDirGlobs are the well-known toolchain/SDK directories spec.md
// §4.1 excludes from instrumentation, matched with
// github.com/gobwas/glob rather than strings.Contains so a project's
// own "usr/include"-named directory two levels deep isn't accidentally
// excluded — the pattern anchors on path segments.
var systemDirGlobs = compileSystemDirGlobs([]string{
	"/usr/include/**",
	"/usr/lib/**/include/**",
	"**/libc++/v1/**",
	"/lib/clang/**",
	"**/lib/clang/**",
	"**/Xcode.app/**",
	"**/MacOSX*.sdk/**",
})

func compileSystemDirGlobs(patterns []string) []glob.Glob {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, glob.MustCompile(p, '/'))
	}
	return out
}

func underSystemDir(path string) bool {
	if path == "" {
		return false
	}
	for _, g := range systemDirGlobs {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// linkagesToSkip are the linkage kinds spec.md §4.1 excludes: a
// definition with one of these can be replaced by another translation
// unit's copy, so instrumenting it risks inconsistent behavior across
// the program.
func skippableLinkage(linkage string) bool {
	switch {
	case linkage == "available_externally":
		return true
	case strings.HasPrefix(linkage, "linkonce"):
		return true
	case strings.HasPrefix(linkage, "weak"):
		return true
	default:
		return false
	}
}

// ShouldInstrument implements the shouldInstrument candidate filter.
// subprogramFile is the DISubprogram's file path when known ("" if the
// function has no debug info attached).
func ShouldInstrument(fn *ir.Function, subprogramFile string) bool {
	if fn.IsDecl {
		return false
	}
	if strings.HasPrefix(fn.Name, "__ct_") {
		return false
	}
	if hasAttr(fn.Attrs, "no_instrument_function") || hasAttr(fn.Attrs, "naked") {
		return false
	}
	if skippableLinkage(fn.Linkage) {
		return false
	}
	if underSystemDir(subprogramFile) {
		return false
	}
	return true
}

func hasAttr(attrs, name string) bool {
	for _, f := range strings.Fields(attrs) {
		if f == name {
			return true
		}
	}
	return strings.Contains(attrs, name)
}
