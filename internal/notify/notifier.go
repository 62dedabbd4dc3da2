// Package notify defines the notification interface and implementations
// for batch summary delivery.
package notify

import (
	"context"

	domain "github.com/RaydowCharole/AppStoreIapScript/pkg/types"
)

// Notifier defines the interface for reporting a finished batch.
type Notifier interface {
	SendBatchSummary(ctx context.Context, res *domain.BatchResult) error
}
