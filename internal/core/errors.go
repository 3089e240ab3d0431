package core

import "errors"

// Sentinel errors shared across the scheduler. Wrap them with %w so callers
// can classify failures with errors.Is.
var (
	// ErrNoWork means the backlog held no eligible unit this round. It is a
	// scheduling signal, not a failure.
	ErrNoWork = errors.New("no eligible work unit")

	// ErrNotFound means the source page is gone (404 or removal phrase).
	// Terminal for the item; the listing should be marked inactive.
	ErrNotFound = errors.New("target no longer available")

	// ErrChallengeTimeout means the solver's poll budget ran out without a
	// solution.
	ErrChallengeTimeout = errors.New("challenge solve timed out")

	// ErrChallengeRejected means the provider returned a terminal status for
	// the submitted challenge.
	ErrChallengeRejected = errors.New("challenge rejected by provider")

	// ErrBudgetExhausted means the metered sub-queue hit its daily spend cap.
	// Callers pause until the day rolls over; the backlog is untouched.
	ErrBudgetExhausted = errors.New("daily search budget exhausted")

	// ErrConsentUnavailable means no consent control could be located. The
	// absence of a prompt is a valid state; callers proceed without consent.
	ErrConsentUnavailable = errors.New("consent control not found")
)
