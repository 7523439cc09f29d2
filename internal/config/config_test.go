package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{
		"SERVER_PORT", "TOKEN_TTL", "RATE_LIMIT_MAX", "RATE_LIMIT_PERIOD", "SESSION_POLICY",
		"VERIFICATION_CODE_TTL", "SMTP_HOST", "KAFKA_BROKERS", "KAFKA_TOPIC",
	} {
		t.Setenv(k, "")
	}

	cfg := Load()
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, 30*time.Minute, cfg.TokenTTL)
	assert.Equal(t, 30, cfg.RateLimitMax)
	assert.Equal(t, 10*time.Minute, cfg.RateLimitPeriod)
	assert.Equal(t, 5*time.Minute, cfg.VerificationCodeTTL)
	assert.Equal(t, PolicyBlock, cfg.SessionPolicy)
	assert.False(t, cfg.SMTP.Enabled())
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "user_events", cfg.KafkaTopic)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("TOKEN_TTL", "1h")
	t.Setenv("RATE_LIMIT_MAX", "5")
	t.Setenv("RATE_LIMIT_PERIOD", "2")
	t.Setenv("SESSION_POLICY", "Replace")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg := Load()
	assert.Equal(t, ":9090", cfg.Addr())
	assert.Equal(t, []byte("s3cret"), cfg.JWTSecret)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.Equal(t, 5, cfg.RateLimitMax)
	assert.Equal(t, 2*time.Minute, cfg.RateLimitPeriod)
	assert.Equal(t, PolicyReplace, cfg.SessionPolicy)
	assert.True(t, cfg.SMTP.Enabled())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestParsePolicy(t *testing.T) {
	assert.Equal(t, PolicyBlock, ParsePolicy(""))
	assert.Equal(t, PolicyBlock, ParsePolicy("warn"))
	assert.Equal(t, PolicyReplace, ParsePolicy(" replace "))
}
