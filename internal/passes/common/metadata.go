package common

import (
	"regexp"
	"strconv"

	"github.com/coretrace/coretrace/internal/ir"
)

var (
	reDILocation = regexp.MustCompile(`^!DILocation\(line:\s*(\d+),\s*column:\s*(\d+),\s*scope:\s*(![\w.]+)`)
	reDIFileNode = regexp.MustCompile(`^!DIFile\(filename:\s*"([^"]*)"`)
	reFileField  = regexp.MustCompile(`\bfile:\s*(![\w.]+)`)
	reScopeField = regexp.MustCompile(`\bscope:\s*(![\w.]+)`)
)

// MetadataIndex is a module's `!N = ...` nodes keyed by ID, built once
// per module and shared by every pass that needs to resolve a `!dbg`
// attachment to a source location.
type MetadataIndex map[string]string

// BuildMetadataIndex indexes m.Metadata for repeated ResolveSite calls.
func BuildMetadataIndex(m *ir.Module) MetadataIndex {
	idx := make(MetadataIndex, len(m.Metadata))
	for _, md := range m.Metadata {
		idx[md.ID] = md.Text
	}
	return idx
}

// ResolveSite follows a `!dbg !N` attachment through its DILocation node
// and up the DIScope chain (DILexicalBlock/DILexicalBlockFile/
// DISubprogram) to the DIFile that names the source file, then formats
// and interns the "basename:line:col" site string. Any break in that
// chain — missing metadata, a scope that never reaches a DIFile — falls
// back to the interner's Unknown constant, matching spec.md §4.1's
// "components present, else <unknown>."
func ResolveSite(idx MetadataIndex, interner *SiteInterner, debugLoc string) string {
	if debugLoc == "" {
		return interner.Site("", nil)
	}
	text, ok := idx[debugLoc]
	if !ok {
		return interner.Site(debugLoc, nil)
	}
	m := reDILocation.FindStringSubmatch(text)
	if m == nil {
		return interner.Site(debugLoc, nil)
	}
	line, _ := strconv.Atoi(m[1])
	col, _ := strconv.Atoi(m[2])
	file := resolveFile(idx, m[3], 0)
	if file == "" {
		return interner.Site(debugLoc, nil)
	}
	return interner.Site(debugLoc, &DILocation{File: file, Line: line, Column: col})
}

func resolveFile(idx MetadataIndex, scopeID string, depth int) string {
	if depth > 8 {
		return ""
	}
	text, ok := idx[scopeID]
	if !ok {
		return ""
	}
	if mm := reDIFileNode.FindStringSubmatch(text); mm != nil {
		return mm[1]
	}
	if mm := reFileField.FindStringSubmatch(text); mm != nil {
		return resolveFile(idx, mm[1], depth+1)
	}
	if mm := reScopeField.FindStringSubmatch(text); mm != nil {
		return resolveFile(idx, mm[1], depth+1)
	}
	return ""
}
