package panels

import "github.com/grafana/grafana-foundation-sdk/go/timeseries"

// MockRequestRate shows traffic served by the fake App Store Connect
// server, by route.
func MockRequestRate() *timeseries.PanelBuilder {
	return lineChart("Mock Request Rate", "Requests per second served by mock-server", TSWidth).
		WithTarget(PromQuery(
			`sum(rate(asc_iap_mock_requests_total[5m])) by (path)`,
			"{{path}}", "A",
		)).
		Unit("reqps").
		Legend(TableLegend("mean", "max")).
		Tooltip(MultiTooltip())
}

// MockLatency shows p95 mock-server latency.
func MockLatency() *timeseries.PanelBuilder {
	return lineChart("Mock Latency p95", "95th percentile mock-server response time", TSWidth).
		WithTarget(PromQuery(
			quantile(`histogram_quantile(%s, sum(rate(asc_iap_mock_request_duration_seconds_bucket[5m])) by (le))`, "0.95"),
			"p95", "A",
		)).
		Unit("s")
}
