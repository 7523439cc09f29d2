package mailer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Skotchmaster/account_service/internal/logging"
)

// Dispatcher runs fire-and-forget work outside the request lifecycle.
// Failures are logged and never reach the caller.
type Dispatcher struct {
	Timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(timeout time.Duration) *Dispatcher {
	return &Dispatcher{Timeout: timeout}
}

func (d *Dispatcher) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	l := logging.FromContext(ctx).With("task", name)
	bg := logging.IntoContext(context.WithoutCancel(ctx), l)

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				l.Error("background_task_panic", "panic", r)
			}
		}()

		tctx, cancel := context.WithTimeout(bg, timeout)
		defer cancel()

		start := time.Now()
		if err := fn(tctx); err != nil {
			l.Error("background_task_failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
			return
		}
		l.Log(tctx, slog.LevelDebug, "background_task_done", "duration_ms", time.Since(start).Milliseconds())
	}()
}

// Wait blocks until every task started with Go has returned or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendAsync delivers one message through m on the dispatcher.
func (d *Dispatcher) SendAsync(ctx context.Context, m Mailer, to, subject, body string) {
	d.Go(ctx, "send_email", func(ctx context.Context) error {
		return m.SendEmail(to, subject, body)
	})
}
