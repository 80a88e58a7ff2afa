package middleware // middleware provides shared request processing for handlers

import (
    "crypto/subtle" // subtle provides constant-time comparison for secrets
    "net/http"      // http package defines standard HTTP status codes

    "github.com/labstack/echo/v4" // echo provides middleware chaining and context
)

// RequireAdminKey returns a middleware that guards administrative routes
// with a shared secret.  Clients must send the secret in the X-Admin-Key
// header; the comparison is constant time.  A missing header yields 401
// and a wrong key yields 403.
func RequireAdminKey(key string) echo.MiddlewareFunc {
    secret := []byte(key)
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            got := c.Request().Header.Get("X-Admin-Key")
            if got == "" {
                return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing admin key"})
            }
            if subtle.ConstantTimeCompare([]byte(got), secret) != 1 {
                return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
            }
            return next(c)
        }
    }
}
