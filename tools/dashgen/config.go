package main

import "errors"

// KnownMetrics is the set of metric names exported by appstore-iap and the
// fake App Store Connect server, plus recording rule names referenced in
// dashboards and alerts.
var KnownMetrics = map[string]bool{
	// App Store Connect API client.
	"asc_iap_api_requests_total":           true,
	"asc_iap_api_request_duration_seconds": true,
	"asc_iap_api_rate_limit_remaining":     true,
	"asc_iap_api_quota_exhausted_total":    true,
	"asc_iap_tokens_signed_total":          true,

	// Screenshot uploads.
	"asc_iap_upload_operations_total": true,
	"asc_iap_upload_bytes_total":      true,

	// Batch runs (node_exporter textfile).
	"asc_iap_batch_items_total":                true,
	"asc_iap_batch_item_duration_seconds":      true,
	"asc_iap_batch_last_run_timestamp_seconds": true,

	// Fake App Store Connect server.
	"asc_iap_mock_requests_total":           true,
	"asc_iap_mock_request_duration_seconds": true,

	// Recording rules.
	"asc_iap:api_requests:rate5m":       true,
	"asc_iap:api_errors:rate5m":         true,
	"asc_iap:upload_failures:rate5m":    true,
	"asc_iap:batch_items:increase1h":    true,
	"asc_iap:batch_failures:increase1h": true,
	"asc_iap:mock_requests:rate5m":      true,

	// Standard Prometheus metrics referenced in dashboards.
	"up": true,
}

// Config controls which artifacts the generator produces and where they go.
type Config struct {
	OutputDir        string
	DashboardEnabled bool
	RulesEnabled     bool
}

// DefaultConfig returns a Config that generates all artifacts into ../../deploy
// (relative to tools/dashgen/).
func DefaultConfig() Config {
	return Config{
		OutputDir:        "../../deploy",
		DashboardEnabled: true,
		RulesEnabled:     true,
	}
}

// Validate checks that the config is usable.
func (c Config) Validate() error {
	if c.OutputDir == "" {
		return errors.New("output directory must be set")
	}
	if !c.DashboardEnabled && !c.RulesEnabled {
		return errors.New("at least one of dashboard or rules must be enabled")
	}
	return nil
}
