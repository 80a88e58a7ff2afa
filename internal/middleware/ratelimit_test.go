package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utsavam/event-booking/internal/config"
)

func limiterConfig() config.RateLimitConfig {
	return config.RateLimitConfig{Enabled: true, Requests: 2, Window: time.Minute, Prefix: "rl"}
}

func runLimited(t *testing.T, mw echo.MiddlewareFunc) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/bookings", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/bookings")

	h := mw(func(c echo.Context) error { return c.NoContent(http.StatusCreated) })
	require.NoError(t, h(c))
	return rec
}

func TestFixedWindowAllowsUnderLimit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectEvalSha(windowScript.Hash(), []string{"rl:10.0.0.9:POST /v1/bookings"}, int64(60)).
		SetVal([]interface{}{int64(1), int64(60)})

	rec := runLimited(t, NewFixedWindow(limiterConfig(), db))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet redis expectations: %v", err)
	}
}

func TestFixedWindowBlocksOverLimit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectEvalSha(windowScript.Hash(), []string{"rl:10.0.0.9:POST /v1/bookings"}, int64(60)).
		SetVal([]interface{}{int64(3), int64(42)})

	rec := runLimited(t, NewFixedWindow(limiterConfig(), db))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "42", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Contains(t, rec.Body.String(), "too_many_requests")
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet redis expectations: %v", err)
	}
}

func TestFixedWindowFailsOpenOnRedisError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectEvalSha(windowScript.Hash(), []string{"rl:10.0.0.9:POST /v1/bookings"}, int64(60)).
		SetErr(assert.AnError)

	rec := runLimited(t, NewFixedWindow(limiterConfig(), db))

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestFixedWindowDisabledWithoutRedis(t *testing.T) {
	rec := runLimited(t, NewFixedWindow(limiterConfig(), nil))
	assert.Equal(t, http.StatusCreated, rec.Code)

	cfg := limiterConfig()
	cfg.Enabled = false
	db, _ := redismock.NewClientMock()
	rec = runLimited(t, NewFixedWindow(cfg, db))
	assert.Equal(t, http.StatusCreated, rec.Code)
}
