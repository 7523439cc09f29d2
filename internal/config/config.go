package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/Skotchmaster/account_service/internal/models"
	pkgcfg "github.com/Skotchmaster/account_service/pkg/config"
	"github.com/Skotchmaster/account_service/pkg/db"
)

type SessionPolicy string

const (
	// PolicyBlock rejects a login while the user holds an unexpired token.
	PolicyBlock SessionPolicy = "block"
	// PolicyReplace revokes the existing tokens and issues a new one.
	PolicyReplace SessionPolicy = "replace"
)

type SMTP struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

func (s SMTP) Enabled() bool { return s.Host != "" }

type Config struct {
	ServerPort int
	LogLevel   string

	DatabaseURL string
	JWTSecret   []byte

	TokenTTL            time.Duration
	RateLimitMax        int
	RateLimitPeriod     time.Duration
	SessionPolicy       SessionPolicy
	VerificationCodeTTL time.Duration
	TokenSweepInterval  time.Duration

	IPRatePerSec float64
	IPRateBurst  int

	SMTP SMTP

	KafkaBrokers []string
	KafkaTopic   string
}

func Load() *Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	return &Config{
		ServerPort: pkgcfg.EnvIntDefault("SERVER_PORT", 8080),
		LogLevel:   pkgcfg.EnvDefault("LOG_LEVEL", "info"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   []byte(os.Getenv("JWT_SECRET")),

		TokenTTL:            pkgcfg.EnvDurationDefault("TOKEN_TTL", 30*time.Minute),
		RateLimitMax:        pkgcfg.EnvIntDefault("RATE_LIMIT_MAX", 30),
		RateLimitPeriod:     pkgcfg.EnvDurationDefault("RATE_LIMIT_PERIOD", 10*time.Minute),
		SessionPolicy:       ParsePolicy(os.Getenv("SESSION_POLICY")),
		VerificationCodeTTL: pkgcfg.EnvDurationDefault("VERIFICATION_CODE_TTL", 5*time.Minute),
		TokenSweepInterval:  pkgcfg.EnvDurationDefault("TOKEN_SWEEP_INTERVAL", 5*time.Minute),

		IPRatePerSec: pkgcfg.EnvFloatDefault("IP_RATE_PER_SEC", 5),
		IPRateBurst:  pkgcfg.EnvIntDefault("IP_RATE_BURST", 10),

		SMTP: SMTP{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     pkgcfg.EnvDefault("SMTP_PORT", "587"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     pkgcfg.EnvDefault("SMTP_FROM", "no-reply@localhost"),
		},

		KafkaBrokers: pkgcfg.CSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   pkgcfg.EnvDefault("KAFKA_TOPIC", "user_events"),
	}
}

func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.ServerPort) }

// ParsePolicy falls back to PolicyBlock for anything unknown.
func ParsePolicy(v string) SessionPolicy {
	if SessionPolicy(strings.ToLower(strings.TrimSpace(v))) == PolicyReplace {
		return PolicyReplace
	}
	return PolicyBlock
}

func InitDB(ctx context.Context, dsn string) (*gorm.DB, error) {
	conn, err := db.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := conn.WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		return nil, fmt.Errorf("не удалось выполнить миграцию: %w", err)
	}
	return conn, nil
}
