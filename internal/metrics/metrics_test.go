package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCountersAccumulate(t *testing.T) {
	Init()
	Init() // idempotent

	before := testutil.ToFloat64(itemsProcessedTotal.WithLabelValues("ready"))
	RecordItem("ready")
	RecordItem("ready")
	after := testutil.ToFloat64(itemsProcessedTotal.WithLabelValues("ready"))
	require.InDelta(t, before+2, after, 1e-9)

	RecordClaim("claimed")
	require.GreaterOrEqual(t, testutil.ToFloat64(claimsTotal.WithLabelValues("claimed")), 1.0)
}

func TestGauges(t *testing.T) {
	Init()

	WorkerStarted()
	WorkerStarted()
	WorkerStopped()
	require.GreaterOrEqual(t, testutil.ToFloat64(activeWorkers), 1.0)
	WorkerStopped()

	SetSearchCost(42.5)
	require.InDelta(t, 42.5, testutil.ToFloat64(searchCostToday), 1e-9)
}

func TestRecordBeforeInitDoesNotPanic(t *testing.T) {
	// collectors are package-level; after Init they are set, but the nil
	// guards keep early calls safe in binaries that skip Init.
	require.NotPanics(t, func() {
		RecordItem("ready")
		RecordChallenge("solved")
		RecordRetryResolution("completed")
		RecordSearchQuery()
		ObserveItemDuration(1.0)
	})
}
