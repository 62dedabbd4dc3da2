// Package config handles loading and validating the batch configuration from
// JSON or YAML files with environment variable substitution.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	domain "github.com/RaydowCharole/AppStoreIapScript/pkg/types"
)

// DefaultFile is the config file read when no --config flag is given.
const DefaultFile = "iap_config.json"

// ErrConfig marks every error produced while loading or validating config.
var ErrConfig = errors.New("config error")

// Price match modes.
const (
	PriceMatchExact   = "exact"
	PriceMatchNumeric = "numeric"
)

// Config is the top-level batch configuration. Field names follow the
// snake_case keys of iap_config.json.
type Config struct {
	KeyID           string         `yaml:"key_id"            validate:"required"`
	IssuerID        string         `yaml:"issuer_id"         validate:"required"`
	KeyPath         string         `yaml:"key_path"`
	ProductIDPrefix string         `yaml:"product_id_prefix" validate:"required"`
	AppID           string         `yaml:"app_id"            validate:"required"`
	Prices          []domain.Price `yaml:"prices"            validate:"required,min=1"`
	Locale          string         `yaml:"locale"            validate:"required"`
	ScreenshotPath  string         `yaml:"screenshot_path"   validate:"required"`
	PriceMatch      string         `yaml:"price_match"       validate:"oneof=exact numeric"`
	Concurrency     int            `yaml:"concurrency"       validate:"min=1,max=16"`

	API           APIConfig           `yaml:"api"`
	Logging       LoggingConfig       `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Tracing       TracingConfig       `yaml:"tracing"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

// APIConfig defines App Store Connect API settings.
type APIConfig struct {
	BaseURL       string          `yaml:"base_url"       validate:"required,url"`
	Timeout       time.Duration   `yaml:"timeout"`
	UploadTimeout time.Duration   `yaml:"upload_timeout"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig defines client-side throttling. App Store Connect enforces
// a rolling hourly quota per API key.
type RateLimitConfig struct {
	PerSecond   float64 `yaml:"per_second"   validate:"gt=0"`
	Burst       int     `yaml:"burst"        validate:"min=1"`
	HourlyLimit int64   `yaml:"hourly_limit" validate:"min=1"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"  validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json console"`
}

// MetricsConfig defines where run metrics are written. Empty disables export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// TracingConfig defines the OTLP/gRPC trace exporter. Empty endpoint disables
// tracing.
type TracingConfig struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// NotificationsConfig defines notification targets.
type NotificationsConfig struct {
	Discord DiscordConfig `yaml:"discord"`
}

// DiscordConfig defines Discord webhook settings.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url" validate:"required_if=Enabled true,omitempty,url"`
}

// Load reads and parses a config file, performing environment variable
// substitution, defaulting, and validation. Relative key and screenshot
// paths are resolved against the config file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // config path from trusted CLI flag
	if err != nil {
		return nil, fmt.Errorf("%w: reading config file: %w", ErrConfig, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	cfg.KeyPath = resolve(dir, cfg.KeyPath)
	cfg.ScreenshotPath = resolve(dir, cfg.ScreenshotPath)

	return cfg, nil
}

// Parse decodes config bytes (JSON or YAML), applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables in the raw content.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing config: %w", ErrConfig, err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: validating config: %w", ErrConfig, err)
	}

	return cfg, nil
}

// ProductID derives the product id for a price: prefix followed by the
// price literal.
func (c *Config) ProductID(p domain.Price) string {
	return c.ProductIDPrefix + p.String()
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func applyDefaults(cfg *Config) {
	if cfg.KeyPath == "" && cfg.KeyID != "" {
		cfg.KeyPath = "AuthKey_" + cfg.KeyID + ".p8"
	}
	if cfg.Locale == "" {
		cfg.Locale = "en-US"
	}
	if cfg.ScreenshotPath == "" {
		cfg.ScreenshotPath = "review.png"
	}
	if cfg.PriceMatch == "" {
		cfg.PriceMatch = PriceMatchExact
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 1
	}
	applyAPIDefaults(&cfg.API)
	applyLoggingDefaults(&cfg.Logging)
}

func applyAPIDefaults(a *APIConfig) {
	if a.BaseURL == "" {
		a.BaseURL = "https://api.appstoreconnect.apple.com"
	}
	a.BaseURL = strings.TrimRight(a.BaseURL, "/")
	if a.Timeout == 0 {
		a.Timeout = 30 * time.Second
	}
	if a.UploadTimeout == 0 {
		a.UploadTimeout = 2 * time.Minute
	}
	if a.RateLimit.PerSecond == 0 {
		a.RateLimit.PerSecond = 5
	}
	if a.RateLimit.Burst == 0 {
		a.RateLimit.Burst = 5
	}
	if a.RateLimit.HourlyLimit == 0 {
		a.RateLimit.HourlyLimit = 3600
	}
}

func applyLoggingDefaults(l *LoggingConfig) {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "text"
	}
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

func validate(cfg *Config) error {
	err := structValidator.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, fmt.Errorf("%s failed %q validation", fieldPath(fe), fe.Tag()))
	}
	return errors.Join(errs...)
}

// fieldPath turns "Config.API.RateLimit.Burst" into "api.rate_limit.burst"
// style paths using the yaml tag names.
func fieldPath(fe validator.FieldError) string {
	ns := fe.StructNamespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	parts := strings.Split(ns, ".")
	for i, p := range parts {
		if name, ok := yamlNames[p]; ok {
			parts[i] = name
		}
	}
	return strings.Join(parts, ".")
}

var yamlNames = map[string]string{
	"KeyID":           "key_id",
	"IssuerID":        "issuer_id",
	"ProductIDPrefix": "product_id_prefix",
	"AppID":           "app_id",
	"Prices":          "prices",
	"Locale":          "locale",
	"ScreenshotPath":  "screenshot_path",
	"PriceMatch":      "price_match",
	"Concurrency":     "concurrency",
	"API":             "api",
	"BaseURL":         "base_url",
	"RateLimit":       "rate_limit",
	"PerSecond":       "per_second",
	"Burst":           "burst",
	"HourlyLimit":     "hourly_limit",
	"Logging":         "logging",
	"Level":           "level",
	"Format":          "format",
	"Notifications":   "notifications",
	"Discord":         "discord",
	"WebhookURL":      "webhook_url",
}
