package sinks

import (
	"context"

	"github.com/jobkontakt/crawler/internal/metrics"
	"github.com/jobkontakt/crawler/internal/progress"
)

// PrometheusSink translates progress events into the process metrics.
// metrics.Init must have run before events arrive; unknown kinds are ignored.
type PrometheusSink struct{}

// NewPrometheusSink builds a PrometheusSink.
func NewPrometheusSink() *PrometheusSink {
	return &PrometheusSink{}
}

// Consume updates counters and histograms from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Kind {
		case progress.KindClaimed:
			metrics.RecordClaim(evt.Outcome)
		case progress.KindNavigated:
			metrics.RecordItem(evt.Outcome)
			if evt.Dur > 0 {
				metrics.ObserveItemDuration(evt.Dur.Seconds())
			}
		case progress.KindChallenge:
			metrics.RecordChallenge(evt.Outcome)
		case progress.KindRetryResolved:
			metrics.RecordRetryResolution(evt.Outcome)
		case progress.KindSearch:
			metrics.RecordSearchQuery()
		case progress.KindSaved:
			// Saves are visible through the items_processed counter already.
		}
	}
	return nil
}

// Close is a no-op.
func (s *PrometheusSink) Close(_ context.Context) error {
	return nil
}
