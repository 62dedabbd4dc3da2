package panels

import (
	"github.com/grafana/grafana-foundation-sdk/go/bargauge"
	"github.com/grafana/grafana-foundation-sdk/go/common"
	"github.com/grafana/grafana-foundation-sdk/go/dashboard"
	"github.com/grafana/grafana-foundation-sdk/go/timeseries"
)

// ItemsByStatus shows batch items finished per hour by final status.
func ItemsByStatus() *timeseries.PanelBuilder {
	return barChart("Items by Status", "Batch items finished per hour (success, degraded, failed)", TSWidth).
		WithTarget(PromQuery(
			`sum(increase(asc_iap_batch_items_total[1h])) by (status)`,
			"{{status}}", "A",
		)).
		Legend(TableLegend("sum")).
		Tooltip(MultiTooltip())
}

// ItemDuration shows how long single items took across histogram buckets.
func ItemDuration() *bargauge.PanelBuilder {
	return bargauge.NewPanelBuilder().
		Title("Item Duration").
		Description("Distribution of per-item creation time").
		Datasource(DSRef()).
		Height(TSHeight).
		Span(TSWidth).
		WithTarget(PromQuery(
			`sum(increase(asc_iap_batch_item_duration_seconds_bucket[24h])) by (le)`,
			"{{le}}", "A",
		)).
		Orientation(common.VizOrientationHorizontal).
		Min(0).
		Thresholds(ThresholdsGreenOnly()).
		ColorScheme(ColorScheme(dashboard.FieldColorModeIdPaletteClassic))
}
