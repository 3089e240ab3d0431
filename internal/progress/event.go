// Package progress defines the event stream emitted by workers and runners
// and the hub that fans it out to sinks.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Kind denotes the milestone an Event represents.
type Kind string

// Supported progress milestones.
const (
	KindClaimed       Kind = "CLAIMED"
	KindNavigated     Kind = "NAVIGATED"
	KindChallenge     Kind = "CHALLENGE"
	KindSaved         Kind = "SAVED"
	KindRetryResolved Kind = "RETRY_RESOLVED"
	KindSearch        Kind = "SEARCH"
)

// Event captures one scheduler milestone.
type Event struct {
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// WorkerID identifies the emitting worker or runner.
	WorkerID string
	// Kind denotes which milestone occurred.
	Kind Kind
	// Employer optionally names the work unit's employer.
	Employer string
	// Reference optionally names the job reference being processed.
	Reference string
	// Outcome is the milestone result label (e.g. "ready", "solved", "ok").
	Outcome string
	// Dur captures execution latency where the milestone ends a span.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.WorkerID == "" {
		return errors.New("worker id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindClaimed, KindSaved, KindRetryResolved, KindSearch:
	case KindNavigated, KindChallenge:
		if e.Outcome == "" {
			return fmt.Errorf("%s requires an outcome", e.Kind)
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
