package config

import (
    "os"
    "strconv"
    "time"
)

// RateLimitConfig drives the fixed-window limiter applied to the booking
// routes.  Requests is the number of requests a single client may make per
// Window before receiving 429 responses.
type RateLimitConfig struct {
    Enabled  bool
    Requests int           // allowed requests per window
    Window   time.Duration // fixed window length
    Prefix   string        // Redis key namespace
}

// LoadRateLimitConfig reads the rate limiter settings from the environment,
// falling back to defaults generous enough for interactive use.
func LoadRateLimitConfig() RateLimitConfig {
    cfg := RateLimitConfig{
        Enabled:  envBool("RATE_LIMIT_ENABLED", true),
        Requests: envInt("RATE_LIMIT_REQUESTS", 30),
        Window:   envDur("RATE_LIMIT_WINDOW", time.Minute),
        Prefix:   envStr("RATE_LIMIT_PREFIX", "rl"),
    }
    if cfg.Requests < 1 { cfg.Requests = 1 }
    if cfg.Window < time.Second { cfg.Window = time.Second }
    return cfg
}

func envStr(k, d string) string { if v := os.Getenv(k); v != "" { return v }; return d }
func envBool(k string, d bool) bool {
    v := os.Getenv(k)
    if v == "" { return d }
    switch v {
    case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON": return true
    case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF": return false
    }
    return d
}
func envInt(k string, d int) int {
    v := os.Getenv(k); if v == "" { return d }
    if n, err := strconv.Atoi(v); err == nil { return n }
    return d
}
func envDur(k string, d time.Duration) time.Duration {
    v := os.Getenv(k); if v == "" { return d }
    if dur, err := time.ParseDuration(v); err == nil { return dur }
    return d
}
