package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/Skotchmaster/account_service/internal/logging"
	"github.com/Skotchmaster/account_service/internal/models"
	"github.com/Skotchmaster/account_service/internal/repo"
)

type Sessions struct {
	Repo *repo.GormRepo
	Now  func() time.Time
}

// ListActive returns users holding at least one token that expires after at.
func (s *Sessions) ListActive(ctx context.Context, at time.Time) ([]models.User, error) {
	users, err := s.Repo.ActiveUsers(ctx, at.UTC())
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

func (s *Sessions) Current(ctx context.Context) ([]models.User, error) {
	return s.ListActive(ctx, now(s.Now))
}

// Sweeper deletes expired token rows on an interval.
type Sweeper struct {
	Repo     *repo.GormRepo
	Interval time.Duration
	Now      func() time.Time
}

func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	return s.Repo.DeleteExpiredTokens(ctx, now(s.Now))
}

// Run blocks until ctx is done. A non-positive Interval disables sweeping.
func (s *Sweeper) Run(ctx context.Context) {
	if s.Interval <= 0 {
		return
	}
	l := logging.FromContext(ctx).With("svc", "token.sweeper")
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepOnce(ctx)
			if err != nil {
				l.Error("tokens_sweep_failed", "error", err)
				continue
			}
			level := slog.LevelDebug
			if n > 0 {
				level = slog.LevelInfo
			}
			l.Log(ctx, level, "tokens_swept", "count", n)
		}
	}
}
