package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jobkontakt/crawler/internal/core"
)

// ClaimStore implements core.ClaimStore against the shared employer backlog.
//
// It assumes the schema
//
//	CREATE TABLE employers (
//		id BIGSERIAL PRIMARY KEY,
//		name TEXT UNIQUE NOT NULL,
//		extraction_attempted BOOLEAN NOT NULL DEFAULT FALSE,
//		extraction_date TIMESTAMPTZ,
//		contact_emails TEXT,
//		best_email TEXT,
//		website TEXT,
//		notes TEXT
//	);
//	CREATE TABLE listings (
//		reference TEXT PRIMARY KEY,
//		employer_name TEXT NOT NULL,
//		title TEXT,
//		postal_code TEXT,
//		external_url TEXT,
//		is_active BOOLEAN NOT NULL DEFAULT TRUE,
//		published_at TIMESTAMPTZ
//	);
type ClaimStore struct {
	pool Pool
}

// NewClaimStore wraps a pool in a ClaimStore.
func NewClaimStore(pool Pool) (*ClaimStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ClaimStore{pool: pool}, nil
}

// claimNextSQL scans a bounded window of unattempted employers with a usable
// representative listing (newest first), locks exactly one of them without
// waiting on rows locked by concurrent claimers, and flips the attempted flag
// in the same statement. The flip is the ownership token: once a row comes
// back from this query, no other caller will ever see it again.
//
// Invariants the statement must keep:
//   - FOR UPDATE OF e SKIP LOCKED sits on the employers table reference
//     itself. Postgres does not apply locking clauses to WITH queries; a CTE
//     is materialized lock-free, so locking one would let two claimers
//     resolve the same employer.
//   - The outer WHERE rechecks extraction_attempted = FALSE. Under READ
//     COMMITTED a claimer that waited out another's commit re-evaluates its
//     WHERE against the updated row, and without the recheck it would flip
//     the flag a second time and return a duplicate claim.
const claimNextSQL = `
UPDATE employers
SET extraction_attempted = TRUE,
    extraction_date = NOW()
FROM (
	SELECT e.id AS employer_id, w.reference, w.title, w.postal_code
	FROM employers e
	JOIN (
		SELECT l.reference, l.title, l.postal_code, l.employer_name, l.published_at
		FROM listings l
		JOIN employers e2 ON e2.name = l.employer_name
		WHERE e2.extraction_attempted = FALSE
		  AND l.external_url IS NULL
		  AND l.reference IS NOT NULL
		  AND l.is_active = TRUE
		ORDER BY l.published_at DESC
		LIMIT $1
	) w ON w.employer_name = e.name
	WHERE e.extraction_attempted = FALSE
	ORDER BY w.published_at DESC
	LIMIT 1
	FOR UPDATE OF e SKIP LOCKED
) candidate
WHERE employers.id = candidate.employer_id
  AND employers.extraction_attempted = FALSE
RETURNING employers.id, employers.name, candidate.reference,
	COALESCE(candidate.title, ''), COALESCE(candidate.postal_code, '')
`

// ClaimNext reserves the next eligible work unit. Returns core.ErrNoWork when
// the candidate window is empty or every candidate is locked by a concurrent
// claimer.
func (s *ClaimStore) ClaimNext(ctx context.Context, window int) (core.Claim, error) {
	if window <= 0 {
		window = 100
	}
	var claim core.Claim
	err := s.pool.QueryRow(ctx, claimNextSQL, window).Scan(
		&claim.EmployerID,
		&claim.EmployerName,
		&claim.JobReference,
		&claim.JobTitle,
		&claim.PostalCode,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.Claim{}, core.ErrNoWork
		}
		return core.Claim{}, fmt.Errorf("claim next work unit: %w", err)
	}
	return claim, nil
}

// Requeue makes an employer claimable again. This is the administrative
// re-queue path for units that were claimed but never produced a result.
func (s *ClaimStore) Requeue(ctx context.Context, employerID int64) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE employers
SET extraction_attempted = FALSE,
    extraction_date = NULL
WHERE id = $1
`, employerID)
	if err != nil {
		return fmt.Errorf("requeue employer %d: %w", employerID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("requeue employer %d: no such employer", employerID)
	}
	return nil
}
