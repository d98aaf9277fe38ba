package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestApplyEnvDisablesTrace(t *testing.T) {
	defer Reset()
	getenv := func(key string) string {
		if key == "CT_DISABLE_TRACE" {
			return "1"
		}
		return ""
	}
	SetEnabled(Trace, true)
	ApplyEnv(getenv)
	require.False(t, IsEnabled(Trace))
}

func TestApplyEnvParsesShadowMaxBytes(t *testing.T) {
	defer Reset()
	defer SetShadowMaxBytes(0)
	getenv := func(key string) string {
		if key == "CT_SHADOW_MAX_BYTES" {
			return "32MB"
		}
		return ""
	}
	ApplyEnv(getenv)
	require.NotZero(t, ShadowMaxBytes())
}

func TestApplyEnvIgnoresUnparseableShadowMaxBytes(t *testing.T) {
	defer Reset()
	defer SetShadowMaxBytes(0)
	getenv := func(key string) string {
		if key == "CT_SHADOW_MAX_BYTES" {
			return "garbage"
		}
		return ""
	}
	ApplyEnv(getenv)
	require.Zero(t, ShadowMaxBytes())
}

func resetAutofreeScanState() {
	SetAutofreeScanStack(true)
	SetAutofreeScanRegs(true)
	SetAutofreeScanGlobals(true)
	SetAutofreeScanInterior(false)
	SetAutofreeScanPtr(false)
	SetAutofreeScanPeriod(0)
	SetAutofreeScanBudget(0)
	SetDebugAutofree(false)
	SetDebugAutofreeScan(false)
}

// TestApplyEnvAutofreeScanRootTogglesDefaultOnButCanBeDisabled covers
// spec.md §6's CT_AUTOFREE_SCAN_{STACK,REGS,GLOBALS}: unset means "scan
// this root", and an explicit "0" opts it out.
func TestApplyEnvAutofreeScanRootTogglesDefaultOnButCanBeDisabled(t *testing.T) {
	defer resetAutofreeScanState()
	getenv := func(key string) string {
		if key == "CT_AUTOFREE_SCAN_STACK" {
			return "0"
		}
		return ""
	}
	ApplyEnv(getenv)
	require.False(t, AutofreeScanStack())
	require.True(t, AutofreeScanRegs())
	require.True(t, AutofreeScanGlobals())
}

// TestApplyEnvAutofreeScanInteriorAndPtrDefaultOff covers
// CT_AUTOFREE_SCAN_INTERIOR/CT_AUTOFREE_SCAN_PTR: unset by default, any
// non-"0" value turns them on.
func TestApplyEnvAutofreeScanInteriorAndPtrDefaultOff(t *testing.T) {
	defer resetAutofreeScanState()
	getenv := func(key string) string {
		switch key {
		case "CT_AUTOFREE_SCAN_INTERIOR", "CT_AUTOFREE_SCAN_PTR":
			return "1"
		}
		return ""
	}
	ApplyEnv(getenv)
	require.True(t, AutofreeScanInterior())
	require.True(t, AutofreeScanPtr())
}

func TestApplyEnvAutofreeScanPeriodParsesIntervalMs(t *testing.T) {
	defer resetAutofreeScanState()
	getenv := func(key string) string {
		if key == "CT_AUTOFREE_SCAN_INTERVAL_MS" {
			return "250"
		}
		return ""
	}
	ApplyEnv(getenv)
	require.Equal(t, 250*time.Millisecond, AutofreeScanPeriod())
}

func TestApplyEnvAutofreeScanPeriodParsesMicrosecondSuffix(t *testing.T) {
	defer resetAutofreeScanState()
	getenv := func(key string) string {
		if key == "CT_AUTOFREE_SCAN_PERIOD_US" {
			return "500"
		}
		return ""
	}
	ApplyEnv(getenv)
	require.Equal(t, 500*time.Microsecond, AutofreeScanPeriod())
}

func TestApplyEnvAutofreeScanBudgetParsesNanoseconds(t *testing.T) {
	defer resetAutofreeScanState()
	getenv := func(key string) string {
		if key == "CT_AUTOFREE_SCAN_BUDGET_NS" {
			return "1500"
		}
		return ""
	}
	ApplyEnv(getenv)
	require.Equal(t, 1500*time.Nanosecond, AutofreeScanBudget())
}

func TestApplyEnvDebugAutofreeToggles(t *testing.T) {
	defer resetAutofreeScanState()
	getenv := func(key string) string {
		switch key {
		case "CT_DEBUG_AUTOFREE", "CT_DEBUG_AUTOFREE_SCAN":
			return "1"
		}
		return ""
	}
	ApplyEnv(getenv)
	require.True(t, DebugAutofreeEnabled())
	require.True(t, DebugAutofreeScanEnabled())
}
