package notify

import (
	"context"
	"log/slog"

	domain "github.com/RaydowCharole/AppStoreIapScript/pkg/types"
)

// NoOpNotifier implements Notifier by logging discarded summaries. It is used
// when Discord (or another notification backend) is not configured.
type NoOpNotifier struct {
	log *slog.Logger
}

// NewNoOpNotifier creates a notifier that discards summaries with a log message.
func NewNoOpNotifier(log *slog.Logger) *NoOpNotifier {
	return &NoOpNotifier{log: log}
}

// SendBatchSummary logs and discards a batch summary.
func (n *NoOpNotifier) SendBatchSummary(_ context.Context, res *domain.BatchResult) error {
	s := res.Summary()
	n.log.Debug("notification discarded (no backend configured)",
		"run_id", res.RunID,
		"success", s.Success,
		"failed", s.Failed,
	)
	return nil
}
