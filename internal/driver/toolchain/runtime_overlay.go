package toolchain

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
)

// ResolveRuntimeArchive locates libctruntime.a (a shared .so is not
// looked for), the file Driver.Orchestrator appends to the link
// job's argument list when instrument=true and the action is a link
// (spec.md §4.1). Search order:
//
//  1. next to the coretrace binary itself — the normal installed
//     layout, one directory alongside cmd/coretrace and
//     cmd/libctruntime's build outputs;
//  2. a coretrace.mod overlay's replace directive pinning the archive
//     path, for a development checkout where the binary and the
//     runtime archive don't share a directory.
//
// Grounded on cmd/racedetector/runtime/link.go's ModFileOverlay: that
// function parses replace directives out of a go.mod-shaped file to
// repoint an import at a local path; this is the same parse applied to
// repoint a linker argument instead of a Go import path.
func ResolveRuntimeArchive(projectDir string) (string, error) {
	exe, err := os.Executable()
	if err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "libctruntime.a")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	overlayPath, err := overlayRuntimePath(projectDir)
	if err != nil {
		return "", err
	}
	if overlayPath != "" {
		return overlayPath, nil
	}
	return "", fmt.Errorf("toolchain: libctruntime.a not found next to the coretrace binary, and no coretrace.mod overlay pins one")
}

// overlayRuntimePath parses coretrace.mod (a go.mod-shaped file solely
// used to carry a replace directive, following the same convention
// racedetector's overlay files use) for a
// "replace coretrace/runtime => <path>" directive.
func overlayRuntimePath(projectDir string) (string, error) {
	path := filepath.Join(projectDir, "coretrace.mod")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	mf, err := modfile.Parse(path, data, nil)
	if err != nil {
		return "", fmt.Errorf("toolchain: parsing coretrace.mod: %w", err)
	}

	for _, rep := range mf.Replace {
		if rep.Old.Path != "coretrace/runtime" {
			continue
		}
		newPath := rep.New.Path
		if isLocalPath(newPath) && !filepath.IsAbs(newPath) {
			newPath = filepath.Join(projectDir, newPath)
		}
		return newPath, nil
	}
	return "", nil
}

func isLocalPath(path string) bool {
	if strings.HasPrefix(path, "./") || strings.HasPrefix(path, "../") {
		return true
	}
	return filepath.IsAbs(path)
}
