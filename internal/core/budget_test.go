package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeUsage_GateClosesAtCap(t *testing.T) {
	t.Parallel()

	policy := BudgetPolicy{CostPerThousand: 5.0, DailyCap: 100.0, WarningThreshold: 0.8}

	u := ComputeUsage(20000, policy)
	require.InDelta(t, 100.0, u.Cost, 1e-9)
	require.InDelta(t, 0.0, u.Remaining, 1e-9)
	require.False(t, u.CanContinue)
	require.True(t, u.Warning)
}

func TestComputeUsage_UnderCap(t *testing.T) {
	t.Parallel()

	policy := BudgetPolicy{CostPerThousand: 5.0, DailyCap: 100.0, WarningThreshold: 0.8}

	u := ComputeUsage(1000, policy)
	require.InDelta(t, 5.0, u.Cost, 1e-9)
	require.InDelta(t, 95.0, u.Remaining, 1e-9)
	require.True(t, u.CanContinue)
	require.False(t, u.Warning)
}

func TestComputeUsage_WarningBand(t *testing.T) {
	t.Parallel()

	policy := BudgetPolicy{CostPerThousand: 5.0, DailyCap: 100.0, WarningThreshold: 0.8}

	u := ComputeUsage(16000, policy) // cost 80.0
	require.True(t, u.Warning)
	require.True(t, u.CanContinue)
}

func TestComputeUsage_RolloverResets(t *testing.T) {
	t.Parallel()

	policy := BudgetPolicy{CostPerThousand: 5.0, DailyCap: 100.0, WarningThreshold: 0.8}

	// a new day means a fresh count from the dated log
	u := ComputeUsage(0, policy)
	require.True(t, u.CanContinue)
	require.InDelta(t, 100.0, u.Remaining, 1e-9)
}
