package asc

import (
	"context"
	"fmt"

	domain "github.com/RaydowCharole/AppStoreIapScript/pkg/types"
)

// CreateInAppPurchase creates a consumable in-app purchase linked to appID.
func (c *Client) CreateInAppPurchase(
	ctx context.Context,
	appID, name, productID string,
) (*domain.InAppPurchase, error) {
	var req createInAppPurchaseRequest
	req.Data.Type = typeInAppPurchases
	req.Data.Attributes.Name = name
	req.Data.Attributes.ProductID = productID
	req.Data.Attributes.InAppPurchaseType = string(domain.IAPTypeConsumable)
	req.Data.Relationships.App = toOne{Data: ResourceRef{Type: typeApps, ID: appID}}

	var doc Document[InAppPurchaseAttributes]
	if err := c.CreateResource(ctx, "/v2/inAppPurchases", req, &doc); err != nil {
		return nil, fmt.Errorf("creating in-app purchase %s: %w", productID, err)
	}
	if doc.Data.ID == "" {
		return nil, fmt.Errorf("creating in-app purchase %s: response has no id", productID)
	}

	iap := toInAppPurchase(&doc.Data)
	c.log.Debug("in-app purchase created", "id", iap.ID, "product_id", productID)
	return &iap, nil
}

// CreateLocalization attaches display metadata to an in-app purchase. An
// empty locale falls back to en-US.
func (c *Client) CreateLocalization(
	ctx context.Context,
	iapID string,
	loc domain.Localization,
) (*domain.Localization, error) {
	if loc.Locale == "" {
		loc.Locale = DefaultLocale
	}

	var req createLocalizationRequest
	req.Data.Type = typeLocalizations
	req.Data.Attributes = LocalizationAttributes{
		Locale:      loc.Locale,
		Name:        loc.Name,
		Description: loc.Description,
	}
	req.Data.Relationships.InAppPurchaseV2 = toOne{
		Data: ResourceRef{Type: typeInAppPurchases, ID: iapID},
	}

	var doc Document[LocalizationAttributes]
	if err := c.CreateResource(ctx, "/v1/inAppPurchaseLocalizations", req, &doc); err != nil {
		return nil, fmt.Errorf("creating %s localization for %s: %w", loc.Locale, iapID, err)
	}

	out := toLocalization(&doc.Data, loc)
	return &out, nil
}
