// Package dashboards assembles Grafana dashboard definitions from panel builders.
package dashboards

import (
	"github.com/grafana/grafana-foundation-sdk/go/dashboard"

	"github.com/RaydowCharole/AppStoreIapScript/tools/dashgen/panels"
)

// BuildOverview constructs the appstore-iap overview dashboard.
func BuildOverview() *dashboard.DashboardBuilder {
	b := dashboard.NewDashboardBuilder("App Store IAP Overview").
		Uid("asc-iap-overview").
		Tags([]string{"asc-iap", "app-store-connect"}).
		Refresh("1m").
		Time("now-7d", "now").
		Timezone("browser").
		Editable().
		Tooltip(dashboard.DashboardCursorSyncCrosshair).
		WithVariable(datasourceVar())

	b.WithRow(dashboard.NewRowBuilder("Overview").
		WithPanel(panels.LastRunStat()).
		WithPanel(panels.ItemsCreatedStat()).
		WithPanel(panels.ItemsFailedStat()).
		WithPanel(panels.QuotaGauge()))

	b.WithRow(dashboard.NewRowBuilder("App Store Connect API").
		WithPanel(panels.RequestRate()).
		WithPanel(panels.LatencyPercentiles()).
		WithPanel(panels.ErrorRate()).
		WithPanel(panels.TokensSigned()))

	b.WithRow(dashboard.NewRowBuilder("Quota").
		WithPanel(panels.QuotaRemaining()).
		WithPanel(panels.QuotaExhausted()))

	b.WithRow(dashboard.NewRowBuilder("Screenshots").
		WithPanel(panels.UploadOutcomes()).
		WithPanel(panels.UploadThroughput()))

	b.WithRow(dashboard.NewRowBuilder("Batch").
		WithPanel(panels.ItemsByStatus()).
		WithPanel(panels.ItemDuration()))

	b.WithRow(dashboard.NewRowBuilder("Mock Server").
		WithPanel(panels.MockRequestRate()).
		WithPanel(panels.MockLatency()))

	return b
}

func datasourceVar() *dashboard.DatasourceVariableBuilder {
	return dashboard.NewDatasourceVariableBuilder("datasource").
		Label("Datasource").
		Type("prometheus")
}
