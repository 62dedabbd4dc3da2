package asc

import (
	domain "github.com/RaydowCharole/AppStoreIapScript/pkg/types"
)

// DefaultLocale is used when a localization names no locale.
const DefaultLocale = "en-US"

func toInAppPurchase(r *Resource[InAppPurchaseAttributes]) domain.InAppPurchase {
	return domain.InAppPurchase{
		ID:        r.ID,
		ProductID: r.Attributes.ProductID,
		Name:      r.Attributes.Name,
		Type:      domain.IAPType(r.Attributes.InAppPurchaseType),
		State:     r.Attributes.State,
	}
}

// toLocalization prefers the server's echo of the attributes and falls back
// to what was sent when the response omits them.
func toLocalization(r *Resource[LocalizationAttributes], sent domain.Localization) domain.Localization {
	out := sent
	out.ID = r.ID
	if r.Attributes.Locale != "" {
		out.Locale = r.Attributes.Locale
	}
	if r.Attributes.Name != "" {
		out.Name = r.Attributes.Name
	}
	if r.Attributes.Description != "" {
		out.Description = r.Attributes.Description
	}
	return out
}

// toPricePoints converts price point resources into domain price points.
func toPricePoints(items []pricePointResource) []domain.PricePoint {
	points := make([]domain.PricePoint, 0, len(items))
	for i := range items {
		points = append(points, domain.PricePoint{
			ID:            items[i].ID,
			CustomerPrice: items[i].Attributes.CustomerPrice,
			Proceeds:      items[i].Attributes.Proceeds,
			Territory:     items[i].Relationships.Territory.Data.ID,
		})
	}
	return points
}

func territoryIDs(items []Resource[TerritoryAttributes]) []string {
	ids := make([]string, 0, len(items))
	for i := range items {
		if items[i].ID != "" {
			ids = append(ids, items[i].ID)
		}
	}
	return ids
}
