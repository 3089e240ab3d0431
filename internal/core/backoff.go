package core

import "time"

// NextRetryDelay computes the wait before a domain's next retry attempt:
// base * 2^attempts, capped at max. Attempts counts failures already
// recorded, so the first failure of a 1h-base/24h-cap schedule waits 2h,
// then 4h, 8h, 16h, and stays at 24h from the fifth failure on. The delay is
// monotonically non-decreasing across consecutive failures of one item.
func NextRetryDelay(attempts int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Hour
	}
	if max <= 0 {
		max = 24 * time.Hour
	}
	if attempts < 0 {
		attempts = 0
	}
	delay := base
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
