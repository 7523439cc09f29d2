package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestIPLimiter_Middleware(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := New(ctx, rate.Limit(0.001), 2)
	e := echo.New()
	e.POST("/login", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, rl.Middleware())

	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.Header.Set(echo.HeaderXRealIP, ip)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("1.1.1.1"))
	assert.Equal(t, http.StatusOK, do("1.1.1.1"))
	assert.Equal(t, http.StatusTooManyRequests, do("1.1.1.1"))
	assert.Equal(t, http.StatusOK, do("2.2.2.2"), "buckets are per ip")
}

func TestIPLimiter_SweepDropsStaleEntries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := New(ctx, rate.Every(time.Second), 1)
	now := time.Now()
	rl.get("1.1.1.1", now.Add(-time.Hour))
	rl.get("2.2.2.2", now)

	require.Equal(t, 1, rl.sweep(now))
	_, ok := rl.limiters["2.2.2.2"]
	assert.True(t, ok)
	_, ok = rl.limiters["1.1.1.1"]
	assert.False(t, ok)
}
