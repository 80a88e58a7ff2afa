package middleware

import (
    "net/http"
    "strconv"
    "strings"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/utsavam/event-booking/internal/config"
)

// windowScript counts a request against the current window and reports the
// window's remaining TTL.  The key expires cfg.Window seconds after its
// first hit, so counts reset in fixed windows rather than sliding ones.
var windowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('EXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('TTL', KEYS[1])
return { n, ttl }
`)

// NewFixedWindow returns a middleware limiting each client to cfg.Requests
// per cfg.Window on the routes it wraps.  Limiting is advisory: a nil
// Redis client or a Redis error lets the request through.
func NewFixedWindow(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return func(c echo.Context) error { return next(c) } }
    }
    windowSecs := int64(cfg.Window.Seconds())

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := windowKey(cfg.Prefix, c)
            vals, err := windowScript.Run(c.Request().Context(), rdb, []string{key}, windowSecs).Result()
            if err != nil {
                return next(c)
            }
            arr, ok := vals.([]interface{})
            if !ok || len(arr) != 2 {
                return next(c)
            }
            count, _ := arr[0].(int64)
            ttl, _ := arr[1].(int64)
            if ttl < 0 { ttl = windowSecs }

            remaining := int64(cfg.Requests) - count
            if remaining < 0 { remaining = 0 }
            c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Requests))
            c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

            if count > int64(cfg.Requests) {
                c.Response().Header().Set("Retry-After", strconv.FormatInt(ttl, 10))
                return c.JSON(http.StatusTooManyRequests, map[string]any{
                    "error":       "too_many_requests",
                    "message":     "rate limit exceeded",
                    "retry_after": ttl,
                })
            }
            return next(c)
        }
    }
}

// windowKey scopes the counter per client address and route so one hot
// endpoint cannot starve the rest of the API for that client.
func windowKey(prefix string, c echo.Context) string {
    ip := c.RealIP()
    if ip == "" { ip = "unknown" }
    route := c.Request().Method + " " + c.Path()
    return strings.Join([]string{prefix, ip, route}, ":")
}
