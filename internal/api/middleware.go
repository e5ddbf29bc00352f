package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hostmesh/hostmesh/internal/auth"
	"github.com/hostmesh/hostmesh/internal/ratelimit"
)

// ValidateContentType middleware ensures that requests with a body have the correct Content-Type
func ValidateContentType(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		method := c.Request().Method

		// Only check POST, PUT, PATCH requests
		if method == "POST" || method == "PUT" || method == "PATCH" {
			contentType := c.Request().Header.Get("Content-Type")

			// Allow empty body for some requests
			if c.Request().ContentLength == 0 {
				return next(c)
			}

			if !strings.HasPrefix(contentType, "application/json") {
				return BadRequestError(
					"Invalid Content-Type",
					"Content-Type must be 'application/json'. Got: "+contentType,
				)
			}
		}

		return next(c)
	}
}

// ValidateAcceptHeader middleware ensures that clients can accept JSON responses
func ValidateAcceptHeader(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		accept := c.Request().Header.Get("Accept")

		// If no Accept header, assume */*
		if accept == "" {
			return next(c)
		}

		if !strings.Contains(accept, "application/json") &&
			!strings.Contains(accept, "*/*") &&
			!strings.Contains(accept, "application/*") {
			return BadRequestError(
				"Invalid Accept header",
				"API only returns JSON. Accept header must include 'application/json' or '*/*'. Got: "+accept,
			)
		}

		return next(c)
	}
}

// ValidateIDFormat middleware validates that resource IDs follow expected patterns
func ValidateIDFormat(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")

		// If no ID param, skip validation
		if id == "" {
			return next(c)
		}

		if strings.Contains(id, " ") {
			return BadRequestError(
				"Invalid ID format",
				"ID cannot contain spaces",
			)
		}

		if len(id) < 3 {
			return BadRequestError(
				"Invalid ID format",
				"ID must be at least 3 characters long",
			)
		}

		if len(id) > 256 {
			return BadRequestError(
				"Invalid ID format",
				"ID must not exceed 256 characters",
			)
		}

		return next(c)
	}
}

// SecurityHeaders middleware adds security headers to responses
func SecurityHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set("X-Content-Type-Options", "nosniff")
		c.Response().Header().Set("X-Frame-Options", "DENY")
		c.Response().Header().Set("X-XSS-Protection", "1; mode=block")
		c.Response().Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		return next(c)
	}
}

// rateLimitExempt paths bypass the limiter entirely.
func rateLimitExempt(path string) bool {
	return path == "/health" || path == "/" || strings.HasPrefix(path, "/docs")
}

// classifyPath assigns a request to its rate limit class.
func classifyPath(path string) ratelimit.Class {
	switch {
	case strings.Contains(path, "/ws/"):
		return ratelimit.ClassSignaling
	case strings.Contains(path, "/auth/"):
		return ratelimit.ClassAuth
	default:
		return ratelimit.ClassDefault
	}
}

// RateLimit returns middleware enforcing per-client quotas through the
// shared limiter. The client identity is the authenticated subject when
// available, otherwise the caller's IP. Rejected requests carry the quota,
// the remaining allowance and the window reset time.
func RateLimit(limiter *ratelimit.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if rateLimitExempt(path) {
				return next(c)
			}

			clientID := c.RealIP()
			if claims, ok := auth.ClaimsFrom(c); ok && claims.SubjectID != "" {
				clientID = claims.SubjectID
			}

			res := limiter.Allow(c.Request().Context(), clientID, classifyPath(path))

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", fmt.Sprintf("%d", res.Limit))
			h.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", res.Remaining))
			h.Set("X-RateLimit-Reset", fmt.Sprintf("%d", res.Reset.Unix()))

			if !res.Allowed {
				retryAfter := int(time.Until(res.Reset).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				h.Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				return &APIError{
					Code:    http.StatusTooManyRequests,
					Message: "rate limit exceeded",
					Context: map[string]interface{}{
						"limit":      res.Limit,
						"remaining":  res.Remaining,
						"reset_time": res.Reset.UTC().Format(time.RFC3339),
					},
				}
			}

			return next(c)
		}
	}
}
