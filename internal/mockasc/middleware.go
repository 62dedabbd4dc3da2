package mockasc

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/RaydowCharole/AppStoreIapScript/internal/metrics"
)

const (
	requestIDHeader = "X-Request-ID"
	rateLimitHeader = "X-Rate-Limit"
	audience        = "appstoreconnect-v1"
	maxTokenTTL     = 20 * time.Minute
)

// RequestLog returns Echo middleware that logs requests with structured fields.
// It generates a request ID if none is provided and echoes it in the response.
func RequestLog(log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			reqID := c.Request().Header.Get(requestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}

			c.Set("request_id", reqID)
			c.Response().Header().Set(requestIDHeader, reqID)

			err := next(c)

			log.Info("request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", reqID,
			)

			return err
		}
	}
}

// Recovery returns Echo middleware that recovers from panics, logs the stack
// trace, and answers with a JSON:API 500 error.
func Recovery(log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					buf := make([]byte, 4096)
					n := runtime.Stack(buf, false)

					log.Error("panic recovered",
						"error", fmt.Sprint(r),
						"method", c.Request().Method,
						"path", c.Request().URL.Path,
						"stack", string(buf[:n]),
					)

					err = jsonAPIError(c, http.StatusInternalServerError, "UNEXPECTED_ERROR", "internal server error")
				}
			}()
			return next(c)
		}
	}
}

// metricsSkipPaths are operational endpoints left out of request metrics.
var metricsSkipPaths = map[string]struct{}{
	"/metrics": {},
	"/healthz": {},
}

// Metrics returns Echo middleware that records request duration and status
// per route.
func Metrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			if _, skip := metricsSkipPaths[path]; skip {
				return next(c)
			}

			start := time.Now()
			err := next(c)

			status := strconv.Itoa(c.Response().Status)
			method := c.Request().Method
			metrics.MockRequestDuration.
				WithLabelValues(method, path, status).
				Observe(time.Since(start).Seconds())
			metrics.MockRequestsTotal.
				WithLabelValues(method, path, status).
				Inc()

			return err
		}
	}
}

// auth rejects requests without a valid App Store Connect bearer token.
func (s *Server) auth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, ok := strings.CutPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			return jsonAPIError(c, http.StatusUnauthorized, "NOT_AUTHORIZED", "missing bearer token")
		}
		if err := s.verifyToken(raw); err != nil {
			s.log.Warn("token rejected", "path", c.Request().URL.Path, "error", err)
			return jsonAPIError(c, http.StatusUnauthorized, "NOT_AUTHORIZED", err.Error())
		}
		return next(c)
	}
}

func (s *Server) verifyToken(raw string) error {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}))

	var (
		claims jwt.RegisteredClaims
		tok    *jwt.Token
		err    error
	)
	if len(s.keys) == 0 {
		tok, _, err = parser.ParseUnverified(raw, &claims)
		if err == nil && tok.Method.Alg() != jwt.SigningMethodES256.Alg() {
			err = fmt.Errorf("unexpected alg %s", tok.Method.Alg())
		}
	} else {
		tok, err = parser.ParseWithClaims(raw, &claims, s.keyFunc)
	}
	if err != nil {
		return fmt.Errorf("parsing token: %w", err)
	}

	if _, ok := tok.Header["kid"].(string); !ok {
		return errors.New("token header has no kid")
	}
	return s.checkClaims(&claims, time.Now())
}

func (s *Server) keyFunc(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	key, ok := s.keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}
	return key, nil
}

func (s *Server) checkClaims(claims *jwt.RegisteredClaims, now time.Time) error {
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return errors.New("token needs iat and exp")
	}
	if !now.Before(claims.ExpiresAt.Time) {
		return errors.New("token expired")
	}
	if claims.ExpiresAt.Sub(claims.IssuedAt.Time) > maxTokenTTL {
		return fmt.Errorf("token lifetime exceeds %s", maxTokenTTL)
	}
	if len(claims.Audience) != 1 || claims.Audience[0] != audience {
		return fmt.Errorf("audience must be %q", audience)
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return fmt.Errorf("unexpected issuer %q", claims.Issuer)
	}
	return nil
}

// quota counts requests per hour, reports the remaining quota the way App
// Store Connect does and rejects requests beyond it.
func (s *Server) quota(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		s.mu.Lock()
		if time.Since(s.state.windowStart) >= time.Hour {
			s.state.windowStart = time.Now()
			s.state.requests = 0
		}
		s.state.requests++
		used := s.state.requests
		s.mu.Unlock()

		remaining := max(s.hourlyLimit-used, 0)
		c.Response().Header().Set(rateLimitHeader,
			fmt.Sprintf("user-hour-lim:%d;user-hour-rem:%d;", s.hourlyLimit, remaining))

		if used > s.hourlyLimit {
			return jsonAPIError(c, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "hourly request limit reached")
		}
		return next(c)
	}
}
