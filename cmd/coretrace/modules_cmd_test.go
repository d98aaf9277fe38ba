package main

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestModulesValueSetSplitsAndTrims(t *testing.T) {
	var v modulesValue
	require.NoError(t, v.Set(" trace, alloc ,bounds"))
	require.Equal(t, modulesValue{"trace", "alloc", "bounds"}, v)
}

func TestModulesValueStringJoins(t *testing.T) {
	v := modulesValue{"trace", "alloc"}
	require.Equal(t, "trace,alloc", v.String())
}

func TestCheckModulesFlagIsRegisteredAsPflagValue(t *testing.T) {
	flag := checkModulesCmd.Flags().Lookup("modules")
	require.NotNil(t, flag)
	require.Equal(t, "modules", flag.Value.Type())

	var _ pflag.Value = &modulesValue{}
}

func TestCheckModulesRejectsUnknownToken(t *testing.T) {
	checkModulesArgs.Modules = nil
	require.NoError(t, checkModulesCmd.Flags().Set("modules", "trace,bogus"))
	err := checkModulesCmd.RunE(checkModulesCmd, nil)
	require.ErrorContains(t, err, "bogus")
}
