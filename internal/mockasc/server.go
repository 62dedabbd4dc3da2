// Package mockasc implements an in-memory App Store Connect API for local
// runs and end-to-end tests. It covers the endpoints the batch uses,
// verifies ES256 bearer tokens and serves presigned-style upload URLs.
package mockasc

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultChunkSize   = 1 << 20
	defaultHourlyLimit = 3600
)

// DefaultTerritories is the territory list served when none is configured.
var DefaultTerritories = []string{"USA", "CAN", "GBR", "DEU", "FRA", "JPN", "CHN", "AUS", "BRA", "IND"}

// DefaultPricePoints are the USA tiers served when none are configured.
var DefaultPricePoints = []string{"0.29", "0.49", "0.99", "1.99", "2.99", "3.99", "4.99", "9.99", "19.99", "49.99", "99.99"}

// Server is a fake App Store Connect API.
type Server struct {
	e   *echo.Echo
	log *slog.Logger

	keys        map[string]*ecdsa.PublicKey
	issuer      string
	chunkSize   int64
	hourlyLimit int
	territories []string
	pricePoints []string

	mu       sync.Mutex
	state    state
	failures []failure
}

type failure struct {
	method string
	prefix string
	status int
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// WithVerifyKey registers the public key tokens with the given kid must be
// signed with. Without any key, token signatures are not checked.
func WithVerifyKey(kid string, key *ecdsa.PublicKey) Option {
	return func(s *Server) {
		s.keys[kid] = key
	}
}

// WithIssuer requires tokens to carry the given iss claim.
func WithIssuer(iss string) Option {
	return func(s *Server) {
		s.issuer = iss
	}
}

// WithChunkSize sets the size of each upload operation.
func WithChunkSize(n int64) Option {
	return func(s *Server) {
		s.chunkSize = n
	}
}

// WithHourlyLimit sets the request quota reported in X-Rate-Limit. Requests
// beyond it are rejected with 429.
func WithHourlyLimit(n int) Option {
	return func(s *Server) {
		s.hourlyLimit = n
	}
}

// WithTerritories overrides the served territory ids.
func WithTerritories(ids ...string) Option {
	return func(s *Server) {
		s.territories = ids
	}
}

// WithPricePoints overrides the served USA customer prices.
func WithPricePoints(prices ...string) Option {
	return func(s *Server) {
		s.pricePoints = prices
	}
}

// WithFailure makes every request whose method matches and whose path starts
// with prefix fail with status.
func WithFailure(method, prefix string, status int) Option {
	return func(s *Server) {
		s.failures = append(s.failures, failure{method: method, prefix: prefix, status: status})
	}
}

// New creates a Server with its routes registered.
func New(opts ...Option) *Server {
	s := &Server{
		log:         slog.Default(),
		keys:        make(map[string]*ecdsa.PublicKey),
		chunkSize:   defaultChunkSize,
		hourlyLimit: defaultHourlyLimit,
		territories: DefaultTerritories,
		pricePoints: DefaultPricePoints,
		state:       newState(),
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler

	e.Use(RequestLog(s.log))
	e.Use(Recovery(s.log))
	e.Use(Metrics())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Presigned uploads carry no bearer token.
	e.PUT("/upload/:id/:part", s.handleUploadChunk)
	e.POST("/upload/:id/:part", s.handleUploadChunk)

	api := e.Group("", s.auth, s.quota, s.injectFailures)
	api.POST("/v2/inAppPurchases", s.handleCreateIAP)
	api.GET("/v2/inAppPurchases/:id", s.handleGetIAP)
	api.GET("/v2/inAppPurchases/:id/pricePoints", s.handlePricePoints)
	api.POST("/v1/inAppPurchaseLocalizations", s.handleCreateLocalization)
	api.POST("/v1/inAppPurchasePriceSchedules", s.handleCreatePriceSchedule)
	api.GET("/v1/territories", s.handleTerritories)
	api.POST("/v1/inAppPurchaseAvailabilities", s.handleCreateAvailability)
	api.POST("/v1/inAppPurchaseAppStoreReviewScreenshots", s.handleReserveScreenshot)
	api.PATCH("/v1/inAppPurchaseAppStoreReviewScreenshots/:id", s.handleCommitScreenshot)

	s.e = e
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.e.ServeHTTP(w, r)
}

// Start listens on addr until the server is shut down.
func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}

// apiError is a JSON:API error object.
type apiError struct {
	Status string `json:"status"`
	Code   string `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

type errorDocument struct {
	Errors []apiError `json:"errors"`
}

func jsonAPIError(c echo.Context, status int, code, detail string) error {
	return c.JSON(status, errorDocument{Errors: []apiError{{
		Status: fmt.Sprint(status),
		Code:   code,
		Title:  http.StatusText(status),
		Detail: detail,
	}}})
}

// errorHandler renders echo errors (unknown routes, bad methods) as JSON:API
// errors.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := http.StatusInternalServerError
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
	}
	if werr := jsonAPIError(c, status, "NOT_HANDLED", err.Error()); werr != nil {
		s.log.Error("writing error response", "error", werr)
	}
}

func (s *Server) injectFailures(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		path := c.Request().URL.Path
		for _, f := range s.failures {
			if f.method == c.Request().Method && strings.HasPrefix(path, f.prefix) {
				return jsonAPIError(c, f.status, "INJECTED_FAILURE", "failure injected for "+path)
			}
		}
		return next(c)
	}
}

// uploadBase returns the scheme and host the client reached us on, used to
// build upload URLs.
func uploadBase(c echo.Context) string {
	return c.Scheme() + "://" + c.Request().Host
}
