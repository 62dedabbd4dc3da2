package panels

import (
	"github.com/grafana/grafana-foundation-sdk/go/dashboard"
	"github.com/grafana/grafana-foundation-sdk/go/timeseries"
)

// RequestRate shows App Store Connect request rate, total and by resource.
func RequestRate() *timeseries.PanelBuilder {
	return lineChart("Request Rate", "App Store Connect API requests per second", TSWidth).
		WithTarget(PromQuery(`asc_iap:api_requests:rate5m`, "total", "A")).
		WithTarget(PromQuery(
			`sum(rate(asc_iap_api_requests_total[5m])) by (resource)`,
			"{{resource}}", "B",
		)).
		Unit("reqps").
		Legend(TableLegend("mean", "max")).
		Tooltip(MultiTooltip())
}

// LatencyPercentiles shows p50, p95 and p99 API call latencies.
func LatencyPercentiles() *timeseries.PanelBuilder {
	const q = `histogram_quantile(%s, sum(rate(asc_iap_api_request_duration_seconds_bucket[5m])) by (le))`
	return lineChart("Latency Percentiles", "App Store Connect API call duration percentiles", TSWidth).
		WithTarget(PromQuery(quantile(q, "0.50"), "p50", "A")).
		WithTarget(PromQuery(quantile(q, "0.95"), "p95", "B")).
		WithTarget(PromQuery(quantile(q, "0.99"), "p99", "C")).
		Unit("s").
		Legend(TableLegend("mean", "max")).
		Tooltip(MultiTooltip())
}

// ErrorRate shows failed API calls as a percentage of all calls.
func ErrorRate() *timeseries.PanelBuilder {
	return lineChart("Error Rate %", "Non-2xx and transport errors as percentage of API calls", TSWidth).
		WithTarget(PromQuery(
			`asc_iap:api_errors:rate5m / asc_iap:api_requests:rate5m * 100`,
			"error %", "A",
		)).
		Unit("percent").
		Thresholds(ThresholdsGreenYellowRed(1, 5)).
		ColorScheme(ColorScheme(dashboard.FieldColorModeIdThresholds))
}

// TokensSigned shows JWT signing per hour. Every outbound request signs its
// own token.
func TokensSigned() *timeseries.PanelBuilder {
	return barChart("Tokens Signed", "ES256 tokens minted per hour", TSWidth).
		WithTarget(PromQuery(`increase(asc_iap_tokens_signed_total[1h])`, "tokens", "A"))
}
