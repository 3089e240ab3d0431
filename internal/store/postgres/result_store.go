package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jobkontakt/crawler/internal/core"
)

// ResultStore implements core.ResultSink.
//
// Results live in
//
//	CREATE TABLE contact_results (
//		reference TEXT PRIMARY KEY,
//		scraped_at TIMESTAMPTZ NOT NULL,
//		success BOOLEAN NOT NULL,
//		has_emails BOOLEAN NOT NULL,
//		contact_emails TEXT,
//		best_email TEXT,
//		company_domain TEXT,
//		email_count INT NOT NULL DEFAULT 0,
//		error_text TEXT,
//		source TEXT,
//		duration_ms BIGINT,
//		updated_at TIMESTAMPTZ
//	);
type ResultStore struct {
	pool Pool
}

// NewResultStore wraps a pool in a ResultStore.
func NewResultStore(pool Pool) (*ResultStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ResultStore{pool: pool}, nil
}

const saveResultSQL = `
INSERT INTO contact_results (
	reference, scraped_at, success, has_emails, contact_emails,
	best_email, company_domain, email_count, error_text, source, duration_ms
) VALUES ($1, NOW(), $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (reference) DO UPDATE SET
	scraped_at = EXCLUDED.scraped_at,
	success = EXCLUDED.success,
	has_emails = EXCLUDED.has_emails,
	contact_emails = EXCLUDED.contact_emails,
	best_email = EXCLUDED.best_email,
	company_domain = EXCLUDED.company_domain,
	email_count = EXCLUDED.email_count,
	error_text = EXCLUDED.error_text,
	source = EXCLUDED.source,
	duration_ms = EXCLUDED.duration_ms,
	updated_at = NOW()
`

const updateEmployerContactSQL = `
UPDATE employers
SET contact_emails = $2,
    best_email = $3,
    website = $4,
    notes = $5
WHERE id = $1
`

// SaveResult upserts the per-listing result row and, when the attempt
// produced contact data, mirrors it onto the employer row. Calling it twice
// for the same reference keeps the latest payload. Both writes happen in one
// transaction so a crash between them cannot leave the employer row pointing
// at a result that was never recorded.
func (s *ResultStore) SaveResult(ctx context.Context, res core.Result) error {
	if res.Reference == "" {
		return fmt.Errorf("result reference is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save result: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	hasEmails := len(res.Extraction.Emails) > 0
	emails := strings.Join(res.Extraction.Emails, ", ")

	if _, err := tx.Exec(ctx, saveResultSQL,
		res.Reference,
		res.Success,
		hasEmails,
		emails,
		res.Extraction.PrimaryEmail,
		res.Extraction.PrimaryDomain,
		res.Extraction.Count,
		res.ErrorText,
		res.Source,
		res.DurationMs,
	); err != nil {
		return fmt.Errorf("upsert result for %q: %w", res.Reference, err)
	}

	if res.EmployerID != 0 && (hasEmails || res.Extraction.Website != "") {
		if _, err := tx.Exec(ctx, updateEmployerContactSQL,
			res.EmployerID,
			emails,
			res.Extraction.PrimaryEmail,
			res.Extraction.Website,
			resultNote(res),
		); err != nil {
			return fmt.Errorf("update employer %d contact: %w", res.EmployerID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save result: %w", err)
	}
	return nil
}

// MarkInactive flags a listing whose source page is gone.
func (s *ResultStore) MarkInactive(ctx context.Context, reference string) error {
	if _, err := s.pool.Exec(ctx, `
UPDATE listings
SET is_active = FALSE
WHERE reference = $1
`, reference); err != nil {
		return fmt.Errorf("mark listing %q inactive: %w", reference, err)
	}
	return nil
}

func resultNote(res core.Result) string {
	switch {
	case res.ErrorText != "":
		return "error: " + res.ErrorText
	case len(res.Extraction.Emails) > 0:
		return fmt.Sprintf("found %d emails (%s)", len(res.Extraction.Emails), res.Source)
	case res.Extraction.Website != "":
		return "no emails, website found"
	default:
		return "no emails or website found"
	}
}
