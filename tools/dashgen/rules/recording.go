package rules

// RecordingRules returns pre-computed expressions shared by the dashboard
// and the alert rules. Batch series are written once per run and are
// summarised per hour.
func RecordingRules() PrometheusRule {
	return newRule("asc-iap-recording-rules", RuleGroup{
		Name: "asc-iap-recording",
		Rules: []Rule{
			record("asc_iap:api_requests:rate5m",
				`sum(rate(asc_iap_api_requests_total[5m]))`),
			record("asc_iap:api_errors:rate5m",
				`sum(rate(asc_iap_api_requests_total{status!~"2.."}[5m]))`),
			record("asc_iap:upload_failures:rate5m",
				`sum(rate(asc_iap_upload_operations_total{outcome!="ok"}[5m]))`),
			record("asc_iap:batch_items:increase1h",
				`sum(increase(asc_iap_batch_items_total[1h]))`),
			record("asc_iap:batch_failures:increase1h",
				`sum(increase(asc_iap_batch_items_total{status="failed"}[1h]))`),
			record("asc_iap:mock_requests:rate5m",
				`sum(rate(asc_iap_mock_requests_total[5m]))`),
		},
	})
}
