package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Skotchmaster/account_service/internal/logging"
	"github.com/Skotchmaster/account_service/internal/repo"
)

const maxSwapRetries = 5

// RateLimiter caps token issuance per user. The attempts column is the only
// counter; it resets once more than Period has passed since LastAttempt.
type RateLimiter struct {
	Max    int
	Period time.Duration
	Now    func() time.Time
}

// Lock makes sure the user's counter row exists and holds its row lock until
// tx ends. Concurrent logins for one user queue here.
func (l *RateLimiter) Lock(ctx context.Context, tx *repo.GormRepo, userID uint) error {
	if err := tx.EnsureRateLimit(ctx, userID, now(l.Now)); err != nil {
		return err
	}
	if _, err := tx.LockRateLimit(ctx, userID); err != nil {
		return fmt.Errorf("lock rate limit: %w", err)
	}
	return nil
}

// Admit records one issuance attempt inside tx or rejects it with
// ErrRateLimitExceeded. Rejected attempts are not counted.
func (l *RateLimiter) Admit(ctx context.Context, tx *repo.GormRepo, userID uint) error {
	log := logging.FromContext(ctx).With("svc", "ratelimit", "user_id", userID)
	ts := now(l.Now)

	if err := tx.EnsureRateLimit(ctx, userID, ts); err != nil {
		return err
	}

	for i := 0; i < maxSwapRetries; i++ {
		row, err := tx.LockRateLimit(ctx, userID)
		if err != nil {
			return fmt.Errorf("lock rate limit: %w", err)
		}

		attempts := row.Attempts
		if ts.Sub(row.LastAttempt) > l.Period {
			attempts = 0
		}
		if attempts >= l.Max {
			log.Warn("rate_limit_exceeded", "attempts", attempts, "max", l.Max)
			return fmt.Errorf("%d attempts within %s: %w", attempts, l.Period, ErrRateLimitExceeded)
		}

		ok, err := tx.SwapRateLimit(ctx, userID, row.Revision, attempts+1, ts)
		if err != nil {
			return fmt.Errorf("update rate limit: %w", err)
		}
		if ok {
			return nil
		}
		log.Debug("rate_limit_swap_lost", "revision", row.Revision, "retry", i+1)
	}
	return fmt.Errorf("rate limit for user %d: %w", userID, ErrPersistenceConflict)
}

func now(fn func() time.Time) time.Time {
	if fn == nil {
		fn = time.Now
	}
	return fn().UTC().Truncate(time.Microsecond)
}
