package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coretrace/coretrace/internal/config"
)

// modulesValue implements pflag.Value for a comma-separated --ct-modules
// token list, the same "accumulate a validated slice behind a custom
// pflag.Value" shape sakateka-yanet2's bird-adapter client command uses
// for its own --instances flag (there a uint32 slice, here a string
// token slice validated against config.ApplyModules's known names).
type modulesValue []string

func (m *modulesValue) String() string {
	if m == nil {
		return ""
	}
	return strings.Join(*m, ",")
}

func (m *modulesValue) Set(value string) error {
	for _, tok := range strings.Split(value, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		*m = append(*m, tok)
	}
	return nil
}

func (m *modulesValue) Type() string { return "modules" }

var checkModulesArgs struct {
	Modules modulesValue
}

// checkModulesCmd is a small standalone diagnostic: given a
// --ct-modules-style token list, report which tokens coretrace itself
// wouldn't recognize, without running any compilation. Useful for a
// build system that wants to validate a --ct-modules value before
// handing it to a real compile invocation.
var checkModulesCmd = &cobra.Command{
	Use:   "check-modules",
	Short: "validate a --ct-modules token list without compiling anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		var cfg config.RuntimeConfig
		unknown := cfg.ApplyModules(checkModulesArgs.Modules)
		if len(unknown) > 0 {
			return fmt.Errorf("unknown module token(s): %s", strings.Join(unknown, ", "))
		}
		fmt.Printf("ok: trace=%v alloc=%v bounds=%v vtable=%v\n", cfg.Trace, cfg.Alloc, cfg.Bounds, cfg.Vtable)
		return nil
	},
}

func init() {
	checkModulesCmd.Flags().Var(&checkModulesArgs.Modules, "modules", "comma-separated module token list, e.g. trace,alloc")
	checkModulesCmd.MarkFlagRequired("modules")
	rootCmd.AddCommand(checkModulesCmd)
}
