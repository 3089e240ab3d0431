package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jobkontakt/crawler/internal/core"
)

// RetryStoreConfig controls backoff behavior for re-queued domains.
type RetryStoreConfig struct {
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// MaxAttempts bounds retries per domain; 0 means retry forever at the
	// capped interval.
	MaxAttempts int
}

// RetryStore implements core.RetryQueue.
//
// Queue rows live in
//
//	CREATE TABLE domain_retry_queue (
//		id BIGSERIAL PRIMARY KEY,
//		domain TEXT UNIQUE NOT NULL,
//		url TEXT NOT NULL,
//		category TEXT,
//		status TEXT NOT NULL DEFAULT 'queued',
//		retry_attempts INT NOT NULL DEFAULT 0,
//		next_retry_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//		last_error TEXT,
//		claimed_at TIMESTAMPTZ,
//		completed_at TIMESTAMPTZ
//	);
type RetryStore struct {
	pool  Pool
	cfg   RetryStoreConfig
	clock core.Clock
}

// NewRetryStore wraps a pool in a RetryStore.
func NewRetryStore(pool Pool, cfg RetryStoreConfig, clock core.Clock) (*RetryStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Hour
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 24 * time.Hour
	}
	return &RetryStore{pool: pool, cfg: cfg, clock: clock}, nil
}

// Enqueue inserts a domain into the retry queue, ignored if already tracked.
func (s *RetryStore) Enqueue(ctx context.Context, domain, url, category string) error {
	if domain == "" {
		return fmt.Errorf("domain is required")
	}
	if _, err := s.pool.Exec(ctx, `
INSERT INTO domain_retry_queue (domain, url, category, status, retry_attempts, next_retry_at)
VALUES ($1, $2, $3, 'queued', 0, NOW())
ON CONFLICT (domain) DO NOTHING
`, domain, url, category); err != nil {
		return fmt.Errorf("enqueue domain %q: %w", domain, err)
	}
	return nil
}

// claimRetryBatchSQL is the batch form of the lock-and-skip claim: up to n
// eligible rows move queued -> processing in one statement, each locked so
// concurrent claimers skip rather than block.
const claimRetryBatchSQL = `
UPDATE domain_retry_queue
SET status = 'processing',
    claimed_at = NOW()
WHERE id IN (
	SELECT id FROM domain_retry_queue
	WHERE status = 'queued'
	  AND next_retry_at <= NOW()
	ORDER BY next_retry_at
	LIMIT $1
	FOR UPDATE SKIP LOCKED
)
RETURNING id, domain, url, COALESCE(category, ''), retry_attempts
`

// ClaimBatch reserves up to n eligible retry items.
func (s *RetryStore) ClaimBatch(ctx context.Context, n int) ([]core.RetryItem, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, claimRetryBatchSQL, n)
	if err != nil {
		return nil, fmt.Errorf("claim retry batch: %w", err)
	}
	defer rows.Close()

	var items []core.RetryItem
	for rows.Next() {
		item := core.RetryItem{Status: core.RetryStatusProcessing}
		if err := rows.Scan(&item.ID, &item.Domain, &item.URL, &item.Category, &item.Attempts); err != nil {
			return nil, fmt.Errorf("scan retry item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read retry batch: %w", err)
	}
	return items, nil
}

// Resolve finishes a claimed item. Success is terminal. Failure re-queues the
// item with capped exponential backoff, or marks it failed once the
// configured attempt ceiling (if any) is reached. next_retry_at never moves
// backwards for a given item.
func (s *RetryStore) Resolve(ctx context.Context, item core.RetryItem, success bool, detail string) error {
	if success {
		if _, err := s.pool.Exec(ctx, `
UPDATE domain_retry_queue
SET status = 'completed',
    last_error = NULL,
    completed_at = NOW()
WHERE id = $1
`, item.ID); err != nil {
			return fmt.Errorf("resolve retry item %d: %w", item.ID, err)
		}
		return nil
	}

	attempts := item.Attempts + 1
	if s.cfg.MaxAttempts > 0 && attempts >= s.cfg.MaxAttempts {
		if _, err := s.pool.Exec(ctx, `
UPDATE domain_retry_queue
SET status = 'failed',
    retry_attempts = $2,
    last_error = $3,
    completed_at = NOW()
WHERE id = $1
`, item.ID, attempts, detail); err != nil {
			return fmt.Errorf("fail retry item %d: %w", item.ID, err)
		}
		return nil
	}

	nextAt := s.clock.Now().Add(core.NextRetryDelay(attempts, s.cfg.BackoffBase, s.cfg.BackoffCap))
	if _, err := s.pool.Exec(ctx, `
UPDATE domain_retry_queue
SET status = 'queued',
    retry_attempts = $2,
    next_retry_at = $3,
    last_error = $4,
    claimed_at = NULL
WHERE id = $1
`, item.ID, attempts, nextAt, detail); err != nil {
		return fmt.Errorf("requeue retry item %d: %w", item.ID, err)
	}
	return nil
}
