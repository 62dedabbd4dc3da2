package rules

import (
	"fmt"

	"github.com/RaydowCharole/AppStoreIapScript/tools/dashgen/panels"
)

// quotaLowThreshold is 10% of the hourly allowance.
const quotaLowThreshold = panels.HourlyQuota / 10

// AlertRules returns alert rules for appstore-iap batch runs.
func AlertRules() PrometheusRule {
	return newRule("asc-iap-alerts", RuleGroup{
		Name: "asc-iap-alerts",
		Rules: []Rule{
			alert("AscIapBatchFailures",
				`asc_iap:batch_failures:increase1h > 0`, "0m", SeverityWarning,
				"In-app purchase batch had failed items",
				"At least one configured price could not be created in the last hour."),
			alert("AscIapBatchMostlyFailed",
				`asc_iap:batch_failures:increase1h / asc_iap:batch_items:increase1h > 0.5`, "0m", SeverityCritical,
				"Most in-app purchases in the last batch failed",
				"More than half of the batch items failed in the last hour. Check credentials and the app id."),
			alert("AscIapHighAPIErrorRate",
				`asc_iap:api_errors:rate5m / asc_iap:api_requests:rate5m > 0.2`, "5m", SeverityWarning,
				"High App Store Connect API error rate",
				"More than 20% of App Store Connect requests returned errors over the last 5 minutes."),
			alert("AscIapQuotaLow",
				fmt.Sprintf(`min(asc_iap_api_rate_limit_remaining) < %d`, quotaLowThreshold), "1m", SeverityWarning,
				"App Store Connect hourly quota is nearly spent",
				fmt.Sprintf("Fewer than %d requests (10%% of %d) remain in the rolling hour.",
					quotaLowThreshold, panels.HourlyQuota)),
			alert("AscIapQuotaExhausted",
				`increase(asc_iap_api_quota_exhausted_total[5m]) > 0`, "0m", SeverityCritical,
				"App Store Connect hourly quota exhausted",
				"Requests are being refused locally until the rolling hour resets."),
			alert("AscIapScreenshotUploadFailures",
				`asc_iap:upload_failures:rate5m > 0`, "5m", SeverityWarning,
				"Review screenshot uploads are failing",
				"Screenshot reservations are not reaching UPLOAD_COMPLETE. Items are left degraded."),
		},
	})
}
