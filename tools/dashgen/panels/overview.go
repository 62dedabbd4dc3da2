package panels

import (
	"fmt"

	"github.com/grafana/grafana-foundation-sdk/go/common"
	"github.com/grafana/grafana-foundation-sdk/go/dashboard"
	"github.com/grafana/grafana-foundation-sdk/go/gauge"
	"github.com/grafana/grafana-foundation-sdk/go/stat"
)

// LastRunStat shows time since the last batch finished.
func LastRunStat() *stat.PanelBuilder {
	return bigNumber("Last Run", "Time since the last batch finished", StatHeight, StatWidth).
		WithTarget(PromQuery(`time() - max(asc_iap_batch_last_run_timestamp_seconds)`, "", "A")).
		Unit("s").
		Thresholds(ThresholdsGreenOnly())
}

// ItemsCreatedStat shows items created in the last 24 hours, degraded
// included.
func ItemsCreatedStat() *stat.PanelBuilder {
	return bigNumber("Created (24h)",
		"In-app purchases created in the last 24 hours (success + degraded)",
		StatHeight, StatWidth).
		WithTarget(PromQuery(
			`sum(increase(asc_iap_batch_items_total{status=~"success|degraded"}[24h]))`,
			"", "A",
		)).
		Thresholds(ThresholdsGreenOnly()).
		ColorMode(common.BigValueColorModeBackground).
		TextMode(common.BigValueTextModeValue)
}

// ItemsFailedStat shows items that failed in the last 24 hours.
func ItemsFailedStat() *stat.PanelBuilder {
	return bigNumber("Failed (24h)",
		"In-app purchases that could not be created in the last 24 hours",
		StatHeight, StatWidth).
		WithTarget(PromQuery(
			`sum(increase(asc_iap_batch_items_total{status="failed"}[24h]))`,
			"", "A",
		)).
		Thresholds(ThresholdsGreenYellowRed(1, 5)).
		ColorMode(common.BigValueColorModeBackground).
		TextMode(common.BigValueTextModeValue)
}

// QuotaGauge shows the hourly API quota used as a percentage, from the last
// quota header seen.
func QuotaGauge() *gauge.PanelBuilder {
	expr := fmt.Sprintf("(1 - min(asc_iap_api_rate_limit_remaining) / %d) * 100", HourlyQuota)
	return gauge.NewPanelBuilder().
		Title("Hourly Quota %").
		Description("App Store Connect hourly request quota used").
		Datasource(DSRef()).
		Height(StatHeight).
		Span(StatWidth).
		WithTarget(PromQuery(expr, "", "A")).
		Unit("percent").
		Min(0).
		Max(100).
		Thresholds(ThresholdsGreenYellowRed(80, 95)).
		ColorScheme(ColorScheme(dashboard.FieldColorModeIdThresholds))
}
