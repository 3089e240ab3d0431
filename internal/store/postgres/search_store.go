package postgres

import (
	"context"
	"fmt"

	"github.com/jobkontakt/crawler/internal/core"
)

// SearchStore implements core.SearchQueue.
//
// Queue and spend-log rows live in
//
//	CREATE TABLE search_queue (
//		id BIGSERIAL PRIMARY KEY,
//		employer_name TEXT NOT NULL,
//		reference TEXT,
//		postal_code TEXT NOT NULL DEFAULT '',
//		status TEXT NOT NULL DEFAULT 'pending',
//		error_text TEXT,
//		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//		processed_at TIMESTAMPTZ,
//		UNIQUE (employer_name, postal_code)
//	);
//	CREATE TABLE search_log (
//		id BIGSERIAL PRIMARY KEY,
//		query TEXT NOT NULL,
//		issued_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type SearchStore struct {
	pool   Pool
	policy core.BudgetPolicy
}

// NewSearchStore wraps a pool in a SearchStore governed by the given budget.
func NewSearchStore(pool Pool, policy core.BudgetPolicy) (*SearchStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &SearchStore{pool: pool, policy: policy}, nil
}

// Enqueue inserts a pending lookup, deduplicated by (name, postal code).
func (s *SearchStore) Enqueue(ctx context.Context, item core.SearchItem) error {
	if item.EmployerName == "" {
		return fmt.Errorf("employer name is required")
	}
	if _, err := s.pool.Exec(ctx, `
INSERT INTO search_queue (employer_name, reference, postal_code, status)
VALUES ($1, $2, $3, 'pending')
ON CONFLICT (employer_name, postal_code) DO NOTHING
`, item.EmployerName, item.Reference, item.PostalCode); err != nil {
		return fmt.Errorf("enqueue search for %q: %w", item.EmployerName, err)
	}
	return nil
}

// Usage recomputes today's spend from the dated query log.
func (s *SearchStore) Usage(ctx context.Context) (core.SearchUsage, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
SELECT COUNT(*) FROM search_log
WHERE issued_at::date = CURRENT_DATE
`).Scan(&count)
	if err != nil {
		return core.SearchUsage{}, fmt.Errorf("count today's search queries: %w", err)
	}
	return core.ComputeUsage(count, s.policy), nil
}

const claimSearchBatchSQL = `
UPDATE search_queue
SET status = 'processing',
    processed_at = NOW()
WHERE id IN (
	SELECT id FROM search_queue
	WHERE status = 'pending'
	ORDER BY created_at
	LIMIT $1
	FOR UPDATE SKIP LOCKED
)
RETURNING id, employer_name, COALESCE(reference, ''), postal_code
`

// ClaimBatch reserves up to n pending lookups. If the daily budget is spent
// it claims nothing and returns core.ErrBudgetExhausted, a hard stop the
// caller must treat as "pause until tomorrow", not as an empty queue.
func (s *SearchStore) ClaimBatch(ctx context.Context, n int) ([]core.SearchItem, error) {
	if n <= 0 {
		return nil, nil
	}
	usage, err := s.Usage(ctx)
	if err != nil {
		return nil, err
	}
	if !usage.CanContinue {
		return nil, core.ErrBudgetExhausted
	}

	rows, err := s.pool.Query(ctx, claimSearchBatchSQL, n)
	if err != nil {
		return nil, fmt.Errorf("claim search batch: %w", err)
	}
	defer rows.Close()

	var items []core.SearchItem
	for rows.Next() {
		var item core.SearchItem
		if err := rows.Scan(&item.ID, &item.EmployerName, &item.Reference, &item.PostalCode); err != nil {
			return nil, fmt.Errorf("scan search item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read search batch: %w", err)
	}
	return items, nil
}

// MarkProcessed is a terminal transition; re-attempts go through a fresh
// Enqueue, which the dedup key collapses.
func (s *SearchStore) MarkProcessed(ctx context.Context, id int64, success bool, detail string) error {
	status := "completed"
	if !success {
		status = "failed"
	}
	if _, err := s.pool.Exec(ctx, `
UPDATE search_queue
SET status = $2,
    error_text = $3,
    processed_at = NOW()
WHERE id = $1
`, id, status, detail); err != nil {
		return fmt.Errorf("mark search item %d processed: %w", id, err)
	}
	return nil
}

// RecordQuery appends one issued query to the spend log.
func (s *SearchStore) RecordQuery(ctx context.Context, query string) error {
	if _, err := s.pool.Exec(ctx, `
INSERT INTO search_log (query, issued_at)
VALUES ($1, NOW())
`, query); err != nil {
		return fmt.Errorf("record search query: %w", err)
	}
	return nil
}
