package core

import "time"

// OutcomeStatus classifies the result of one navigation attempt.
type OutcomeStatus string

// Navigation outcome values recorded per processed item.
const (
	OutcomeReady           OutcomeStatus = "ready"
	OutcomeNotFound        OutcomeStatus = "not_found"
	OutcomeChallengeFailed OutcomeStatus = "challenge_failed"
	OutcomeError           OutcomeStatus = "error"
)

// RetryStatus represents the lifecycle state of a domain retry item.
type RetryStatus string

// Retry item status values persisted in the retry queue.
const (
	RetryStatusQueued     RetryStatus = "queued"
	RetryStatusProcessing RetryStatus = "processing"
	RetryStatusCompleted  RetryStatus = "completed"
	RetryStatusFailed     RetryStatus = "failed"
)

// Claim is the transient result of a successful atomic reservation. The
// durable ownership token is the attempted flag flipped in the same statement;
// a Claim itself is never persisted.
type Claim struct {
	EmployerID   int64
	EmployerName string
	JobReference string
	JobTitle     string
	PostalCode   string
}

// Target identifies the page a navigation attempt should load.
type Target struct {
	URL          string
	Reference    string
	EmployerName string
}

// NavigationOutcome is produced by the navigation state machine for every
// claimed item. Content is opaque to the scheduler; the extraction layer
// consumes it immediately.
type NavigationOutcome struct {
	Status          OutcomeStatus
	Content         string
	RedirectDomain  string
	Detail          string
	ChallengeSolved bool
}

// RetryItem is one previously failed domain lookup tracked by the retry
// sub-queue.
type RetryItem struct {
	ID          int64
	Domain      string
	URL         string
	Category    string
	Attempts    int
	Status      RetryStatus
	NextRetryAt time.Time
}

// SearchItem is one pending lookup in the budget-limited search sub-queue,
// deduplicated by (employer name, postal code).
type SearchItem struct {
	ID           int64
	EmployerName string
	Reference    string
	PostalCode   string
}

// SearchUsage summarizes the metered search API's spend for the current day.
// It is derived from the dated query log, never stored directly.
type SearchUsage struct {
	Queries     int
	Cost        float64
	Remaining   float64
	CanContinue bool
	Warning     bool
}

// SearchResult is what the external search capability returns for one lookup.
type SearchResult struct {
	Found   bool
	Website string
	Title   string
	Address string
}

// ExtractionResult is the output of the external email extraction functions.
type ExtractionResult struct {
	Emails        []string
	PrimaryEmail  string
	PrimaryDomain string
	Count         int
	Website       string
}

// Result is what the worker persists for one processed work unit.
type Result struct {
	EmployerID   int64
	EmployerName string
	Reference    string
	Extraction   ExtractionResult
	Success      bool
	ErrorText    string
	Source       string
	DurationMs   int64
}

// PageInfo carries the response metadata observed for a top-level navigation.
type PageInfo struct {
	StatusCode int
	FinalURL   string
}
