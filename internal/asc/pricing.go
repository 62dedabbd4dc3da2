package asc

import (
	"context"
	"fmt"
	"net/url"

	domain "github.com/RaydowCharole/AppStoreIapScript/pkg/types"
)

// GetPricePoints fetches the price points of an in-app purchase for one
// territory. A single large page is requested; App Store Connect returns
// every tier for a territory in it.
func (c *Client) GetPricePoints(
	ctx context.Context,
	iapID, territory string,
) ([]domain.PricePoint, error) {
	if territory == "" {
		territory = defaultBaseTerritory
	}
	path := fmt.Sprintf(
		"/v2/inAppPurchases/%s/pricePoints?include=territory&filter[territory]=%s&limit=%d",
		url.PathEscape(iapID), url.QueryEscape(territory), defaultPricePointPageLimit,
	)

	var doc pricePointsDocument
	if err := c.GetResource(ctx, path, &doc); err != nil {
		return nil, fmt.Errorf("fetching price points for %s: %w", iapID, err)
	}

	points := toPricePoints(doc.Data)
	c.log.Debug("price points fetched", "iap_id", iapID, "territory", territory, "count", len(points))
	return points, nil
}

// MatchPricePoint returns the first point whose customer price matches price
// under the given mode.
func MatchPricePoint(points []domain.PricePoint, price domain.Price, mode PriceMatch) (domain.PricePoint, bool) {
	for _, p := range points {
		switch mode {
		case MatchNumeric:
			cp, err := domain.NewPrice(p.CustomerPrice)
			if err != nil {
				continue
			}
			if cp.Decimal().Equal(price.Decimal()) {
				return p, true
			}
		default:
			if p.CustomerPrice == price.String() {
				return p, true
			}
		}
	}
	return domain.PricePoint{}, false
}

// FindPricePointForPrice returns the id of the USA price point matching
// price, or "" when there is none.
func (c *Client) FindPricePointForPrice(
	ctx context.Context,
	iapID string,
	price domain.Price,
) (string, error) {
	points, err := c.GetPricePoints(ctx, iapID, defaultBaseTerritory)
	if err != nil {
		return "", err
	}
	p, ok := MatchPricePoint(points, price, c.priceMatch)
	if !ok {
		c.log.Warn("no price point matches price",
			"iap_id", iapID,
			"price", price.String(),
			"candidates", len(points),
		)
		return "", nil
	}
	return p.ID, nil
}

// SetPrice creates the price schedule of an in-app purchase with USA as the
// base territory. A nil startDate makes the price effective immediately.
func (c *Client) SetPrice(
	ctx context.Context,
	iapID, pricePointID string,
	startDate *string,
) error {
	var req createPriceScheduleRequest
	req.Data.Type = typePriceSchedules
	req.Data.Relationships.InAppPurchase = toOne{
		Data: ResourceRef{Type: typeInAppPurchases, ID: iapID},
	}
	req.Data.Relationships.ManualPrices = toMany{
		Data: []ResourceRef{{Type: typePrices, ID: newPricePlaceholder}},
	}
	req.Data.Relationships.BaseTerritory = toOne{
		Data: ResourceRef{Type: typeTerritories, ID: defaultBaseTerritory},
	}

	var price includedPrice
	price.Type = typePrices
	price.ID = newPricePlaceholder
	price.Attributes.StartDate = startDate
	price.Relationships.InAppPurchasePricePoint = toOne{
		Data: ResourceRef{Type: typePricePoints, ID: pricePointID},
	}
	req.Included = []includedPrice{price}

	if err := c.CreateResource(ctx, "/v1/inAppPurchasePriceSchedules", req, nil); err != nil {
		return fmt.Errorf("setting price schedule for %s: %w", iapID, err)
	}
	return nil
}
