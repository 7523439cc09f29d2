package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Skotchmaster/account_service/internal/logging"
	"github.com/Skotchmaster/account_service/internal/models"
	"github.com/Skotchmaster/account_service/internal/repo"
	"github.com/Skotchmaster/account_service/pkg/tokens"
)

// TokenIssuer mints and stores session tokens. It does not apply any
// single-session policy; callers decide with HasActiveSession.
type TokenIssuer struct {
	Repo    *repo.GormRepo
	Limiter *RateLimiter
	Secret  []byte
	TTL     time.Duration
	Now     func() time.Time
}

// Create admits the attempt, signs a token and inserts it, all inside tx.
func (s *TokenIssuer) Create(ctx context.Context, tx *repo.GormRepo, userID uint) (*models.Token, error) {
	l := logging.FromContext(ctx).With("svc", "token.create", "user_id", userID)

	if err := s.Limiter.Admit(ctx, tx, userID); err != nil {
		return nil, err
	}

	// jwt NumericDate has whole-second precision; the stored row must agree.
	issuedAt := now(s.Now).Truncate(time.Second)
	expiresAt := issuedAt.Add(s.TTL)
	raw, err := tokens.SignSession(userID, issuedAt, expiresAt, s.Secret)
	if err != nil {
		l.Error("token_sign_failed", "error", err)
		return nil, fmt.Errorf("sign token: %w", err)
	}

	tok := &models.Token{
		UserID:    userID,
		Token:     raw,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}
	if err := tx.CreateToken(ctx, tok); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %w", ErrPersistenceConflict, err)
		}
		return nil, err
	}

	l.Info("token_issued", "token_id", tok.ID, "expires_at", expiresAt)
	return tok, nil
}

// Issue runs Create in its own transaction.
func (s *TokenIssuer) Issue(ctx context.Context, userID uint) (*models.Token, error) {
	var tok *models.Token
	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		var err error
		tok, err = s.Create(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tok, nil
}

func (s *TokenIssuer) HasActiveSession(ctx context.Context, tx *repo.GormRepo, userID uint) (bool, error) {
	return tx.HasActiveToken(ctx, userID, now(s.Now))
}

type Revoker struct {
	Repo   *repo.GormRepo
	Secret []byte
	Now    func() time.Time
}

// Decode checks signature and expiry. It fails with ErrTokenExpired or
// ErrTokenInvalid.
func (r *Revoker) Decode(raw string) (*tokens.SessionClaims, error) {
	return tokens.SessionClaimsFromToken(raw, r.Secret, func() time.Time { return now(r.Now) })
}

// Authenticate accepts a token only if it decodes and its row is still stored
// and unexpired.
func (r *Revoker) Authenticate(ctx context.Context, raw string) (*models.Token, error) {
	return r.authenticate(ctx, r.Repo, raw)
}

func (r *Revoker) authenticate(ctx context.Context, q *repo.GormRepo, raw string) (*models.Token, error) {
	claims, err := r.Decode(raw)
	if err != nil {
		return nil, err
	}
	tok, err := q.TokenByValue(ctx, raw)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("token revoked: %w", ErrTokenInvalid)
		}
		return nil, err
	}
	uid, _ := claims.UserID()
	if tok.UserID != uid {
		return nil, fmt.Errorf("subject mismatch: %w", ErrTokenInvalid)
	}
	if !tok.ExpiresAt.After(now(r.Now)) {
		return nil, ErrTokenExpired
	}
	return tok, nil
}

// RevokeUser deletes every token of the user, expired or not.
func (r *Revoker) RevokeUser(ctx context.Context, tx *repo.GormRepo, userID uint) (int64, error) {
	n, err := tx.DeleteUserTokens(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke tokens: %w", err)
	}
	return n, nil
}

func (r *Revoker) RevokeByEmail(ctx context.Context, email string) (*models.User, int64, error) {
	var (
		user *models.User
		n    int64
	)
	err := r.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		var err error
		user, err = tx.UserByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("user %s: %w", email, ErrNotFound)
			}
			return err
		}
		n, err = r.RevokeUser(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	logging.FromContext(ctx).Info("tokens_revoked", "user_id", user.ID, "count", n)
	return user, n, nil
}
