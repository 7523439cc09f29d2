package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/Skotchmaster/account_service/internal/config"
	"github.com/Skotchmaster/account_service/internal/handlers/auth"
	"github.com/Skotchmaster/account_service/internal/logging"
	"github.com/Skotchmaster/account_service/internal/mailer"
	"github.com/Skotchmaster/account_service/internal/middleware/ratelimit"
	"github.com/Skotchmaster/account_service/internal/mykafka"
	"github.com/Skotchmaster/account_service/internal/repo"
	"github.com/Skotchmaster/account_service/internal/service"
	httpserver "github.com/Skotchmaster/account_service/internal/transport/http"
	pkgcfg "github.com/Skotchmaster/account_service/pkg/config"
	"github.com/Skotchmaster/account_service/pkg/db"
	loggingmw "github.com/Skotchmaster/account_service/pkg/middleware/logging"
)

func main() {
	cfg := config.Load()
	pkgcfg.MustNonEmpty(cfg.DatabaseURL, "DATABASE_URL")
	pkgcfg.MustNonEmptyBytes(cfg.JWTSecret, "JWT_SECRET")

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.IntoContext(ctx, logger)

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, err := config.InitDB(initCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("Ошибка инициализации БД: %v", err)
	}

	var events mykafka.Publisher = mykafka.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		prod, err := mykafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			log.Fatal(err)
		}
		events = prod
	} else {
		logger.Warn("kafka_disabled", "reason", "KAFKA_BROKERS is empty")
	}

	var mail mailer.Mailer
	if cfg.SMTP.Enabled() {
		mail = mailer.NewSMTP(mailer.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	} else {
		logger.Warn("smtp_disabled", "reason", "SMTP_HOST is empty")
	}
	tasks := mailer.NewDispatcher(30 * time.Second)

	r := repo.New(conn)
	svc := service.New(r, service.Options{
		Secret:          cfg.JWTSecret,
		TokenTTL:        cfg.TokenTTL,
		RateLimitMax:    cfg.RateLimitMax,
		RateLimitPeriod: cfg.RateLimitPeriod,
		Policy:          cfg.SessionPolicy,
		CodeTTL:         cfg.VerificationCodeTTL,
		Mailer:          mail,
		Tasks:           tasks,
		Events:          events,
		Topic:           cfg.KafkaTopic,
	})

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), loggingmw.RequestLogger(logger))

	throttle := ratelimit.New(ctx, rate.Limit(cfg.IPRatePerSec), cfg.IPRateBurst)
	httpserver.Register(e, &httpserver.Deps{
		AuthHandler: &auth.AuthHandler{Svc: svc},
		Sessions:    svc.Revoker,
		DB:          r,
		Throttle:    throttle.Middleware(),
	})

	sweeper := &service.Sweeper{Repo: r, Interval: cfg.TokenSweepInterval}
	go sweeper.Run(ctx)

	go func() {
		logger.Info("server_started", "addr", cfg.Addr(), "session_policy", cfg.SessionPolicy)
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("echo start: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting_down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_error", "error", err)
	}
	if err := tasks.Wait(shutdownCtx); err != nil {
		logger.Error("background_tasks_unfinished", "error", err)
	}
	if err := events.Close(); err != nil {
		logger.Error("kafka_close_error", "error", err)
	}
	if err := db.Close(conn); err != nil {
		logger.Error("db_close_error", "error", err)
	}

	logger.Info("shutdown_complete")
}
