package panels

import "github.com/grafana/grafana-foundation-sdk/go/timeseries"

// UploadOutcomes shows screenshot uploads per hour by outcome (ok, failed,
// error).
func UploadOutcomes() *timeseries.PanelBuilder {
	return barChart("Screenshot Uploads", "Review screenshot uploads per hour by outcome", TSWidth).
		WithTarget(PromQuery(
			`sum(increase(asc_iap_upload_operations_total[1h])) by (outcome)`,
			"{{outcome}}", "A",
		)).
		Legend(TableLegend("sum"))
}

// UploadThroughput shows bytes sent to the upload operation URLs.
func UploadThroughput() *timeseries.PanelBuilder {
	return lineChart("Upload Throughput", "Screenshot bytes uploaded per second", TSWidth).
		WithTarget(PromQuery(`rate(asc_iap_upload_bytes_total[5m])`, "bytes/s", "A")).
		Unit("Bps")
}
