package integration

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/account_service/internal/config"
	"github.com/Skotchmaster/account_service/internal/mailer"
	"github.com/Skotchmaster/account_service/internal/repo"
	"github.com/Skotchmaster/account_service/internal/service"
	"github.com/Skotchmaster/account_service/pkg/db"
)

type integrationEnv struct {
	db    *gorm.DB
	repo  *repo.GormRepo
	svc   *service.AuthService
	tasks *mailer.Dispatcher
}

func newIntegrationEnv(t *testing.T, max int) *integrationEnv {
	t.Helper()

	dsn := os.Getenv("AUTH_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("AUTH_TEST_DATABASE_URL is required for tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, err := config.InitDB(ctx, dsn)
	require.NoError(t, err)

	r := repo.New(conn)
	tasks := mailer.NewDispatcher(5 * time.Second)
	env := &integrationEnv{
		db:    conn,
		repo:  r,
		tasks: tasks,
		svc: service.New(r, service.Options{
			Secret:          []byte("test-jwt-secret"),
			TokenTTL:        30 * time.Minute,
			RateLimitMax:    max,
			RateLimitPeriod: 10 * time.Minute,
			Policy:          config.PolicyBlock,
			Tasks:           tasks,
		}),
	}

	t.Cleanup(func() {
		_ = tasks.Wait(context.Background())
		truncateTables(t, conn)
		_ = db.Close(conn)
	})
	return env
}

func truncateTables(t *testing.T, conn *gorm.DB) {
	t.Helper()

	err := conn.Exec("TRUNCATE TABLE tokens, token_rate_limits, user_devices, email_verification_codes, referrals, users RESTART IDENTITY CASCADE").Error
	require.NoError(t, err)
}

// openPQ opens a second connection through lib/pq so constraint violations
// surface as *pq.Error with their SQLSTATE.
func openPQ(t *testing.T) *sql.DB {
	t.Helper()
	raw, err := sql.Open("postgres", os.Getenv("AUTH_TEST_DATABASE_URL"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	require.NoError(t, raw.Ping())
	return raw
}

func requirePQCode(t *testing.T, err error, code string) {
	t.Helper()
	var pqErr *pq.Error
	require.ErrorAs(t, err, &pqErr)
	assert.Equal(t, code, pqErr.Code.Name())
}

func uniqueEmail() string {
	return "u_" + uuid.NewString() + "@example.com"
}

func TestAuthService_Register_SuccessAndConflict(t *testing.T) {
	env := newIntegrationEnv(t, 30)
	ctx := context.Background()
	email := uniqueEmail()

	_, err := env.svc.Register(ctx, service.RegisterInput{Email: email, Password: "Secret123"})
	require.NoError(t, err)

	_, err = env.svc.Register(ctx, service.RegisterInput{Email: email, Password: "Secret123"})
	assert.ErrorIs(t, err, service.ErrConflict)
}

func TestAuthService_ConcurrentLogins_SingleSession(t *testing.T) {
	env := newIntegrationEnv(t, 30)
	ctx := context.Background()
	email := uniqueEmail()

	_, err := env.svc.Register(ctx, service.RegisterInput{Email: email, Password: "Secret123"})
	require.NoError(t, err)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		blocked int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := env.svc.Login(ctx, service.LoginInput{Email: email, Password: "Secret123", IP: "10.0.0.1"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, service.ErrAlreadyLoggedIn):
				blocked++
			default:
				t.Errorf("unexpected login error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, blocked)

	users, err := env.svc.CurrentSessions(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, email, users[0].Email)
}

func TestTokenIssuer_ConcurrentIssue_RespectsCeiling(t *testing.T) {
	env := newIntegrationEnv(t, 5)
	ctx := context.Background()

	user, err := env.svc.Register(ctx, service.RegisterInput{Email: uniqueEmail(), Password: "Secret123"})
	require.NoError(t, err)

	const workers = 16
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		issued int
		denied int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := env.svc.Issuer.Issue(ctx, user.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				issued++
			case errors.Is(err, service.ErrRateLimitExceeded):
				denied++
			default:
				t.Errorf("unexpected issue error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 5, issued)
	assert.Equal(t, workers-5, denied)

	row, err := env.repo.RateLimitByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, row.Attempts)

	toks, err := env.repo.TokensByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, toks, 5)
}

func TestAuthService_DeleteUser_Cascades(t *testing.T) {
	env := newIntegrationEnv(t, 30)
	ctx := context.Background()
	email := uniqueEmail()

	user, err := env.svc.Register(ctx, service.RegisterInput{Email: email, Password: "Secret123"})
	require.NoError(t, err)
	_, err = env.svc.Login(ctx, service.LoginInput{Email: email, Password: "Secret123", IP: "10.0.0.2"})
	require.NoError(t, err)

	require.NoError(t, env.svc.DeleteUser(ctx, user.ID))

	exists, err := env.svc.CheckEmail(ctx, email)
	require.NoError(t, err)
	assert.False(t, exists)

	toks, err := env.repo.TokensByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, toks)

	_, err = env.repo.RateLimitByUser(ctx, user.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestSchema_Constraints(t *testing.T) {
	env := newIntegrationEnv(t, 30)
	ctx := context.Background()
	raw := openPQ(t)

	user, err := env.svc.Register(ctx, service.RegisterInput{Email: uniqueEmail(), Password: "Secret123"})
	require.NoError(t, err)
	_, err = env.svc.Issuer.Issue(ctx, user.ID)
	require.NoError(t, err)

	now := time.Now().UTC()
	_, err = raw.ExecContext(ctx,
		"INSERT INTO token_rate_limits (user_id, created_at, attempts, last_attempt, revision) VALUES ($1, $2, 0, $2, 0)",
		user.ID, now)
	requirePQCode(t, err, "unique_violation")

	_, err = raw.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, phone, email_verified, created_at, updated_at) VALUES ($1, 'x', '', false, $2, $2)",
		user.Email, now)
	requirePQCode(t, err, "unique_violation")

	_, err = raw.ExecContext(ctx,
		"INSERT INTO tokens (user_id, token, issued_at, expires_at) VALUES ($1, $2, $3, $3)",
		user.ID+1000, uuid.NewString(), now)
	requirePQCode(t, err, "foreign_key_violation")
}
