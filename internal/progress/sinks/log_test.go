package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jobkontakt/crawler/internal/progress"
)

func TestLogSinkLevelsByOutcome(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))

	now := time.Now().UTC()
	batch := []progress.Event{
		{TS: now, WorkerID: "worker-1", Kind: progress.KindNavigated, Outcome: "ready", Dur: time.Second},
		{TS: now, WorkerID: "worker-1", Kind: progress.KindChallenge, Outcome: "failed", Note: "solver timeout"},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, zapcore.DebugLevel, entries[0].Level)
	require.Equal(t, zapcore.WarnLevel, entries[1].Level)

	fields := entries[1].ContextMap()
	require.Equal(t, "worker-1", fields["worker_id"])
	require.Equal(t, string(progress.KindChallenge), fields["kind"])
	require.Equal(t, "solver timeout", fields["note"])
}

func TestLogSinkNilLoggerIsSafe(t *testing.T) {
	t.Parallel()

	sink := NewLogSink(nil)
	evt := progress.Event{TS: time.Now().UTC(), WorkerID: "worker-1", Kind: progress.KindSaved, Outcome: "success"}
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{evt}))
	require.NoError(t, sink.Close(context.Background()))
}
