package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/account_service/internal/config"
	"github.com/Skotchmaster/account_service/internal/mailer"
	"github.com/Skotchmaster/account_service/internal/models"
	"github.com/Skotchmaster/account_service/internal/mykafka"
	"github.com/Skotchmaster/account_service/internal/repo"
	"github.com/Skotchmaster/account_service/internal/testdb"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type sentMail struct{ to, subject, body string }

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *fakeMailer) SendEmail(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to, subject, body})
	return nil
}

func (m *fakeMailer) Sent() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []mykafka.UserEvent
}

func (p *fakePublisher) PublishEvent(_ context.Context, _, _ string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event.(mykafka.UserEvent))
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type testEnv struct {
	svc    *AuthService
	repo   *repo.GormRepo
	clock  *fakeClock
	mail   *fakeMailer
	events *fakePublisher
	tasks  *mailer.Dispatcher
}

func newTestEnv(t *testing.T, tweak ...func(*Options)) *testEnv {
	t.Helper()

	env := &testEnv{
		repo:   repo.New(testdb.New(t)),
		clock:  newClock(),
		mail:   &fakeMailer{},
		events: &fakePublisher{},
		tasks:  mailer.NewDispatcher(5 * time.Second),
	}
	opts := Options{
		Secret:          []byte("test-jwt-secret"),
		TokenTTL:        30 * time.Minute,
		RateLimitMax:    30,
		RateLimitPeriod: 10 * time.Minute,
		Policy:          config.PolicyBlock,
		CodeTTL:         5 * time.Minute,
		Mailer:          env.mail,
		Tasks:           env.tasks,
		Events:          env.events,
		Now:             env.clock.Now,
	}
	for _, fn := range tweak {
		fn(&opts)
	}
	env.svc = New(env.repo, opts)
	env.svc.NewCode = func() string { return "123456" }
	return env
}

func (e *testEnv) wait(t *testing.T) {
	t.Helper()
	require.NoError(t, e.tasks.Wait(context.Background()))
}

func (e *testEnv) register(t *testing.T, email string) *models.User {
	t.Helper()
	u, err := e.svc.Register(context.Background(), RegisterInput{Email: email, Password: "password123", Phone: "555-0100"})
	require.NoError(t, err)
	return u
}

func (e *testEnv) tokenCount(t *testing.T, userID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.repo.DB.Model(&models.Token{}).Where("user_id = ?", userID).Count(&n).Error)
	return n
}
