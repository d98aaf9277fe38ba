package toolchain

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectConfig is coretrace.yaml, a supplemental project-root config
// file (SPEC_FULL.md §4) that pins the values §4.1's autodetection
// otherwise has to guess. DefaultModules and RuntimeArchive are parsed
// but not applied: Apply sets only the resource dir and sysroot, the
// module selection comes from --ct-modules alone, and
// ResolveRuntimeArchive does not read this file. Grounded on
// original_source/src/compilerlib/toolchain.cpp's own environment-
// derived defaults, generalized into an explicit file the CLI
// distillation dropped.
type ProjectConfig struct {
	ResourceDir     string   `yaml:"resource_dir"`
	Sysroot         string   `yaml:"sysroot"`
	DefaultModules  []string `yaml:"default_modules"`
	RuntimeArchive  string   `yaml:"runtime_archive"`
}

// LoadProjectConfig reads coretrace.yaml from dir, returning a zero
// value (not an error) when the file doesn't exist — the file is
// entirely optional.
func LoadProjectConfig(dir string) (ProjectConfig, error) {
	data, err := os.ReadFile(filepath.Join(dir, "coretrace.yaml"))
	if os.IsNotExist(err) {
		return ProjectConfig{}, nil
	}
	if err != nil {
		return ProjectConfig{}, err
	}
	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ProjectConfig{}, err
	}
	return cfg, nil
}

// Apply overlays cfg's zero-value fields with p's non-empty ones,
// letting an explicit CLI/env value continue to win over the project
// file — the same override order spec.md §6 states for CT_* env vars
// over compiled config, generalized to config sources.
func (p ProjectConfig) Apply(cfg *Config) {
	if !cfg.AddResourceDir && p.ResourceDir != "" {
		cfg.ResourceDir = p.ResourceDir
		cfg.AddResourceDir = true
	}
	if !cfg.AddSysroot && p.Sysroot != "" {
		cfg.Sysroot = p.Sysroot
		cfg.AddSysroot = true
	}
}
