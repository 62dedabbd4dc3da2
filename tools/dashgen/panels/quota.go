package panels

import (
	"fmt"

	"github.com/grafana/grafana-foundation-sdk/go/common"
	"github.com/grafana/grafana-foundation-sdk/go/dashboard"
	"github.com/grafana/grafana-foundation-sdk/go/stat"
	"github.com/grafana/grafana-foundation-sdk/go/timeseries"
)

// QuotaRemaining shows the remaining hourly request quota reported by App
// Store Connect. Red below 10% of the allowance.
func QuotaRemaining() *timeseries.PanelBuilder {
	return lineChart("Quota Remaining",
		fmt.Sprintf("Requests left in the rolling hour (limit: %d)", HourlyQuota), 16).
		WithTarget(PromQuery(`min(asc_iap_api_rate_limit_remaining)`, "remaining", "A")).
		Thresholds(ThresholdsRedGreen(HourlyQuota * 0.1)).
		ColorScheme(ColorScheme(dashboard.FieldColorModeIdThresholds))
}

// QuotaExhausted shows how often the client refused to send because the
// hourly quota was spent.
func QuotaExhausted() *stat.PanelBuilder {
	return bigNumber("Quota Exhausted (24h)",
		"Requests refused locally because the hourly quota was used up",
		TSHeight, 8).
		WithTarget(PromQuery(`sum(increase(asc_iap_api_quota_exhausted_total[24h]))`, "", "A")).
		Thresholds(ThresholdsGreenYellowRed(1, 10)).
		ColorMode(common.BigValueColorModeBackground).
		GraphMode(common.BigValueGraphModeArea)
}
