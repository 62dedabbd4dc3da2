// Package asc provides an App Store Connect API client for creating in-app
// purchases, abstracted behind interfaces for testability.
package asc

import (
	"context"

	domain "github.com/RaydowCharole/AppStoreIapScript/pkg/types"
)

// TokenProvider defines the interface for obtaining bearer tokens.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// IAPClient defines the in-app purchase operations the batch pipeline needs.
type IAPClient interface {
	CreateInAppPurchase(ctx context.Context, appID, name, productID string) (*domain.InAppPurchase, error)
	CreateLocalization(ctx context.Context, iapID string, loc domain.Localization) (*domain.Localization, error)
	FindPricePointForPrice(ctx context.Context, iapID string, price domain.Price) (string, error)
	SetPrice(ctx context.Context, iapID, pricePointID string, startDate *string) error
	SetGlobalAvailability(ctx context.Context, iapID string) error
}

// ScreenshotUploader attaches the App Store review screenshot to an
// in-app purchase.
type ScreenshotUploader interface {
	Upload(ctx context.Context, iapID, path string) (*ScreenshotResult, error)
}
