package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/RaydowCharole/AppStoreIapScript/internal/batch"
	domain "github.com/RaydowCharole/AppStoreIapScript/pkg/types"
)

const reviewReminder = "Review submission is not automated: submit the new in-app purchases in App Store Connect."

// tabWriter wraps tabwriter with error tracking.
type tabWriter struct {
	*tabwriter.Writer
	err error
}

func newTabWriter(w io.Writer) *tabWriter {
	return &tabWriter{Writer: tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)}
}

func (tw *tabWriter) writef(format string, args ...any) {
	if tw.err != nil {
		return
	}
	_, tw.err = fmt.Fprintf(tw.Writer, format, args...)
}

func (tw *tabWriter) finish() error {
	if tw.err != nil {
		return tw.err
	}
	return tw.Flush()
}

func printSummary(w io.Writer, res *domain.BatchResult) error {
	s := res.Summary()

	tw := newTabWriter(w)
	tw.writef("\nFinished in %s: %d succeeded (%d degraded), %d failed, %d total\n\n",
		res.Duration().Round(time.Millisecond), s.Success, s.Degraded, s.Failed, s.Total)
	tw.writef("PRICE\tPRODUCT ID\tSTATUS\tIAP ID\tPRICE POINT\tSCREENSHOT\tNOTE\n")
	for i := range res.Items {
		item := &res.Items[i]
		tw.writef("$%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			item.Price,
			item.ProductID,
			item.Status,
			orDash(item.IAPID),
			orDash(item.PricePointID),
			orDash(item.ScreenshotState),
			truncate(note(item), 60),
		)
	}
	tw.writef("\n%s\n", reviewReminder)
	return tw.finish()
}

func printPlan(w io.Writer, plan []batch.PlannedItem) error {
	tw := newTabWriter(w)
	tw.writef("Dry run: %d in-app purchases would be created\n\n", len(plan))
	tw.writef("PRICE\tPRODUCT ID\tNAME\tDISPLAY NAME\tLOCALE\n")
	for i := range plan {
		tw.writef("$%s\t%s\t%s\t%s\t%s\n",
			plan[i].Price,
			plan[i].ProductID,
			plan[i].Name,
			plan[i].DisplayName,
			plan[i].Locale,
		)
	}
	return tw.finish()
}

func note(item *domain.ItemResult) string {
	if item.Error != "" {
		return item.Error
	}
	return orDash(strings.Join(item.Warnings, "; "))
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
