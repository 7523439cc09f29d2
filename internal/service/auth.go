package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xlzd/gotp"

	"github.com/Skotchmaster/account_service/internal/config"
	"github.com/Skotchmaster/account_service/internal/hash"
	"github.com/Skotchmaster/account_service/internal/logging"
	"github.com/Skotchmaster/account_service/internal/mailer"
	"github.com/Skotchmaster/account_service/internal/models"
	"github.com/Skotchmaster/account_service/internal/mykafka"
	"github.com/Skotchmaster/account_service/internal/repo"
	"github.com/Skotchmaster/account_service/pkg/validate"
)

const (
	MsgEmailVerified        = "Email verified successfully"
	MsgEmailAlreadyVerified = "Email already verified"

	publishTimeout = 5 * time.Second
)

type Options struct {
	Secret          []byte
	TokenTTL        time.Duration
	RateLimitMax    int
	RateLimitPeriod time.Duration
	Policy          config.SessionPolicy
	CodeTTL         time.Duration

	Mailer mailer.Mailer
	Tasks  *mailer.Dispatcher
	Events mykafka.Publisher
	Topic  string

	Now func() time.Time
}

type AuthService struct {
	Repo     *repo.GormRepo
	Issuer   *TokenIssuer
	Revoker  *Revoker
	Devices  *DeviceRegistry
	Sessions *Sessions

	Policy  config.SessionPolicy
	CodeTTL time.Duration
	Mailer  mailer.Mailer
	Tasks   *mailer.Dispatcher
	Events  mykafka.Publisher
	Topic   string
	Now     func() time.Time

	// NewCode generates verification codes.
	NewCode func() string
}

func New(r *repo.GormRepo, o Options) *AuthService {
	clock := o.Now
	if clock == nil {
		clock = time.Now
	}
	if o.Tasks == nil {
		o.Tasks = mailer.NewDispatcher(30 * time.Second)
	}
	if o.Events == nil {
		o.Events = mykafka.Nop{}
	}
	if o.Topic == "" {
		o.Topic = "user_events"
	}
	if o.CodeTTL <= 0 {
		o.CodeTTL = 5 * time.Minute
	}

	limiter := &RateLimiter{Max: o.RateLimitMax, Period: o.RateLimitPeriod, Now: clock}
	return &AuthService{
		Repo:     r,
		Issuer:   &TokenIssuer{Repo: r, Limiter: limiter, Secret: o.Secret, TTL: o.TokenTTL, Now: clock},
		Revoker:  &Revoker{Repo: r, Secret: o.Secret, Now: clock},
		Devices:  &DeviceRegistry{Repo: r, Now: clock},
		Sessions: &Sessions{Repo: r, Now: clock},
		Policy:   o.Policy,
		CodeTTL:  o.CodeTTL,
		Mailer:   o.Mailer,
		Tasks:    o.Tasks,
		Events:   o.Events,
		Topic:    o.Topic,
		Now:      clock,
		NewCode:  newVerificationCode,
	}
}

// newVerificationCode returns a 6-digit one-time code from a fresh secret.
func newVerificationCode() string {
	return gotp.NewDefaultTOTP(gotp.RandomSecret(16)).Now()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type RegisterInput struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Phone    string `json:"phone"    validate:"max=32"`
	Referrer string `json:"referrer" validate:"omitempty,email"`
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")
	in.Email = normalizeEmail(in.Email)
	in.Referrer = normalizeEmail(in.Referrer)

	if err := validate.Struct(in); err != nil {
		l.Warn("register_error", "status", 400, "reason", err.Error())
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	if in.Referrer != "" && in.Referrer == in.Email {
		l.Warn("register_error", "status", 400, "reason", "self referral")
		return nil, fmt.Errorf("%w: referrer must be another user", ErrValidation)
	}

	pwHash, err := hash.HashPassword(in.Password)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, err
	}

	user := models.User{Email: in.Email, PasswordHash: pwHash, Phone: in.Phone}
	var code string
	err = s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		exists, err := tx.EmailExists(ctx, in.Email)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("email %s: %w", in.Email, ErrConflict)
		}
		if err := tx.CreateUser(ctx, &user); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return fmt.Errorf("email %s: %w", in.Email, ErrConflict)
			}
			return err
		}

		if in.Referrer != "" {
			referrer, err := tx.UserByEmail(ctx, in.Referrer)
			if err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return fmt.Errorf("referrer %s: %w", in.Referrer, ErrNotFound)
				}
				return err
			}
			if err := tx.CreateReferral(ctx, referrer.ID, user.ID); err != nil {
				return err
			}
		}

		code, err = s.saveCode(ctx, tx, in.Email)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrConflict):
			l.Warn("register_error", "status", 400, "reason", "email already registered")
		case errors.Is(err, ErrNotFound):
			l.Warn("register_error", "status", 404, "reason", "referrer not found")
		default:
			l.Error("register_error", "status", 500, "error", err)
		}
		return nil, err
	}

	if s.Mailer != nil {
		s.sendCode(ctx, in.Email, code)
	} else {
		l.Warn("verification_code_not_sent", "reason", "mailer not configured", "user_id", user.ID)
	}
	s.publish(ctx, mykafka.UserRegistered, &user)
	l.Info("user_registered", "user_id", user.ID)
	return &user, nil
}

func (s *AuthService) CheckEmail(ctx context.Context, email string) (bool, error) {
	return s.Repo.EmailExists(ctx, normalizeEmail(email))
}

func (s *AuthService) saveCode(ctx context.Context, tx *repo.GormRepo, email string) (string, error) {
	code := s.NewCode()
	ts := now(s.Now)
	if err := tx.SaveVerificationCode(ctx, email, code, ts, ts.Add(s.CodeTTL)); err != nil {
		return "", err
	}
	return code, nil
}

func (s *AuthService) sendCode(ctx context.Context, email, code string) {
	subject, body := mailer.VerificationMessage(code, int(s.CodeTTL/time.Minute))
	s.Tasks.SendAsync(ctx, s.Mailer, email, subject, body)
}

// SendVerificationCode stores a fresh code, replacing any previous one, and
// mails it in the background.
func (s *AuthService) SendVerificationCode(ctx context.Context, email string) error {
	l := logging.FromContext(ctx).With("svc", "auth.send_code")
	email = normalizeEmail(email)

	if _, err := s.Repo.UserByEmail(ctx, email); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("send_code_error", "status", 404, "reason", "user not found")
			return fmt.Errorf("user %s: %w", email, ErrNotFound)
		}
		return err
	}
	if s.Mailer == nil {
		l.Error("send_code_error", "status", 500, "reason", "mailer not configured")
		return ErrEmailDelivery
	}

	var code string
	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		var err error
		code, err = s.saveCode(ctx, tx, email)
		return err
	})
	if err != nil {
		return err
	}
	s.sendCode(ctx, email, code)
	l.Info("verification_code_sent")
	return nil
}

// VerifyCode flips email_verified. A verified user gets
// MsgEmailAlreadyVerified without any state change. The code is deleted on
// success so it cannot be replayed.
func (s *AuthService) VerifyCode(ctx context.Context, email, code string) (string, error) {
	l := logging.FromContext(ctx).With("svc", "auth.verify_code")
	email = normalizeEmail(email)

	var (
		msg  string
		user *models.User
	)
	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		var err error
		user, err = tx.UserByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("user %s: %w", email, ErrNotFound)
			}
			return err
		}
		if user.EmailVerified {
			msg = MsgEmailAlreadyVerified
			return nil
		}

		stored, err := tx.VerificationCodeByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrCodeInvalid
			}
			return err
		}
		if stored.Code != strings.TrimSpace(code) {
			return ErrCodeInvalid
		}
		if !stored.ExpiresAt.After(now(s.Now)) {
			return ErrCodeExpired
		}

		if _, err := tx.MarkEmailVerified(ctx, user.ID); err != nil {
			return err
		}
		if err := tx.DeleteVerificationCode(ctx, email); err != nil {
			return err
		}
		msg = MsgEmailVerified
		return nil
	})
	if err != nil {
		l.Warn("verify_code_failed", "error", err)
		return "", err
	}
	if msg == MsgEmailVerified {
		s.publish(ctx, mykafka.EmailVerified, user)
		l.Info("email_verified", "user_id", user.ID)
	}
	return msg, nil
}

type LoginInput struct {
	Email    string `json:"email"    validate:"required"`
	Password string `json:"password" validate:"required"`
	IP       string `json:"-"`
}

// Login authenticates, applies the session policy, records the device and
// issues a token in one transaction.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*models.Token, error) {
	email := normalizeEmail(in.Email)
	l := logging.FromContext(ctx).With("svc", "auth.login", "email", email)

	if err := validate.Struct(in); err != nil {
		return nil, ErrInvalidCredentials
	}

	var (
		user *models.User
		tok  *models.Token
	)
	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		var err error
		user, err = tx.UserByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrInvalidCredentials
			}
			return err
		}
		if !hash.CheckPassword(user.PasswordHash, in.Password) {
			return ErrInvalidCredentials
		}

		if err := s.Issuer.Limiter.Lock(ctx, tx, user.ID); err != nil {
			return err
		}
		active, err := s.Issuer.HasActiveSession(ctx, tx, user.ID)
		if err != nil {
			return err
		}
		if active {
			if s.Policy != config.PolicyReplace {
				return ErrAlreadyLoggedIn
			}
			n, err := s.Revoker.RevokeUser(ctx, tx, user.ID)
			if err != nil {
				return err
			}
			l.Warn("active_session_replaced", "user_id", user.ID, "revoked", n)
		}

		if _, err := s.Devices.Upsert(ctx, tx, user.ID, in.IP); err != nil {
			return err
		}
		tok, err = s.Issuer.Create(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			l.Warn("login_failed", "status", 400, "reason", "invalid credentials")
		case errors.Is(err, ErrAlreadyLoggedIn):
			l.Warn("login_failed", "status", 403, "reason", "already logged in")
		case errors.Is(err, ErrRateLimitExceeded):
			l.Warn("login_failed", "status", 429, "reason", "rate limit exceeded")
		default:
			l.Error("login_failed", "status", 500, "error", err)
		}
		return nil, err
	}

	s.publish(ctx, mykafka.UserLoggedIn, user)
	l.Info("login_successful", "user_id", user.ID, "ip", in.IP)
	return tok, nil
}

func (s *AuthService) Logout(ctx context.Context, email string) error {
	user, _, err := s.Revoker.RevokeByEmail(ctx, normalizeEmail(email))
	if err != nil {
		logging.FromContext(ctx).Warn("logout_failed", "error", err)
		return err
	}
	s.publish(ctx, mykafka.UserLoggedOut, user)
	return nil
}

// LogoutToken logs out the subject of a bearer token. The token must still be
// stored and unexpired, so a revoked token cannot end a later session.
func (s *AuthService) LogoutToken(ctx context.Context, raw string) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout_token")

	var user *models.User
	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		tok, err := s.Revoker.authenticate(ctx, tx, raw)
		if err != nil {
			return err
		}
		user, err = tx.UserByID(ctx, tok.UserID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("user %d: %w", tok.UserID, ErrNotFound)
			}
			return err
		}
		_, err = s.Revoker.RevokeUser(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		l.Warn("logout_failed", "error", err)
		return err
	}
	s.publish(ctx, mykafka.UserLoggedOut, user)
	return nil
}

func (s *AuthService) CurrentSessions(ctx context.Context) ([]models.User, error) {
	return s.Sessions.Current(ctx)
}

type Profile struct {
	User   *models.User
	Device *models.UserDevice
}

func (s *AuthService) Me(ctx context.Context, userID uint) (*Profile, error) {
	user, err := s.Repo.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}
		return nil, err
	}
	dev, err := s.Devices.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Profile{User: user, Device: dev}, nil
}

type ChangePasswordInput struct {
	Current string `json:"current_password" validate:"required"`
	New     string `json:"new_password"     validate:"required,min=8,max=72"`
}

// ChangePassword replaces the password hash and ends every session of the user.
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, in ChangePasswordInput) error {
	l := logging.FromContext(ctx).With("svc", "auth.change_password", "user_id", userID)
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err)
	}
	pwHash, err := hash.HashPassword(in.New)
	if err != nil {
		return err
	}

	err = s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		user, err := tx.UserByID(ctx, userID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("user %d: %w", userID, ErrNotFound)
			}
			return err
		}
		if !hash.CheckPassword(user.PasswordHash, in.Current) {
			return ErrInvalidCredentials
		}
		if err := tx.UpdatePasswordHash(ctx, user.ID, pwHash); err != nil {
			return err
		}
		_, err = s.Revoker.RevokeUser(ctx, tx, userID)
		return err
	})
	if err != nil {
		l.Warn("change_password_failed", "error", err)
		return err
	}
	l.Info("password_changed")
	return nil
}

type UpdateProfileInput struct {
	Phone string `json:"phone" validate:"required,max=32"`
}

// UpdateProfile changes the caller's contact details.
func (s *AuthService) UpdateProfile(ctx context.Context, userID uint, in UpdateProfileInput) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.update_profile", "user_id", userID)
	in.Phone = strings.TrimSpace(in.Phone)
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}

	var user *models.User
	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		if err := tx.UpdatePhone(ctx, userID, in.Phone); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("user %d: %w", userID, ErrNotFound)
			}
			return err
		}
		var err error
		user, err = tx.UserByID(ctx, userID)
		return err
	})
	if err != nil {
		l.Warn("update_profile_failed", "error", err)
		return nil, err
	}
	l.Info("profile_updated")
	return user, nil
}

// DeleteUser removes the account and everything it owns in one transaction.
func (s *AuthService) DeleteUser(ctx context.Context, userID uint) error {
	l := logging.FromContext(ctx).With("svc", "auth.delete_user", "user_id", userID)
	var user *models.User
	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		var err error
		user, err = tx.UserByID(ctx, userID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("user %d: %w", userID, ErrNotFound)
			}
			return err
		}
		return tx.DeleteUser(ctx, user)
	})
	if err != nil {
		l.Warn("delete_user_failed", "error", err)
		return err
	}
	s.publish(ctx, mykafka.UserDeleted, user)
	l.Info("user_deleted")
	return nil
}

func (s *AuthService) ListReferrals(ctx context.Context, userID uint, offset, limit int) ([]models.User, error) {
	users, err := s.Repo.ReferredUsers(ctx, userID, offset, limit)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

// publish hands the event to the background dispatcher; failures are logged only.
func (s *AuthService) publish(ctx context.Context, typ string, user *models.User) {
	ev := mykafka.UserEvent{Type: typ, UserID: user.ID, Email: user.Email, At: now(s.Now)}
	s.Tasks.Go(ctx, "publish_"+typ, func(ctx context.Context) error {
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		return s.Events.PublishEvent(pctx, s.Topic, ev.Key(), ev)
	})
}
