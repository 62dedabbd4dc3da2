package asc

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

type territoryCache struct {
	mu  sync.Mutex
	ids []string
}

// AllTerritories returns every territory id. The first non-empty result is
// cached on the client; later calls make no request. Failures and empty
// results are not cached.
func (c *Client) AllTerritories(ctx context.Context) ([]string, error) {
	c.territories.mu.Lock()
	defer c.territories.mu.Unlock()

	if c.territories.ids != nil {
		return slices.Clone(c.territories.ids), nil
	}

	path := fmt.Sprintf("/v1/territories?limit=%d", defaultTerritoryPageLimit)

	var doc CollectionDocument[TerritoryAttributes]
	if err := c.GetResource(ctx, path, &doc); err != nil {
		return nil, fmt.Errorf("fetching territories: %w", err)
	}

	ids := territoryIDs(doc.Data)
	if len(ids) == 0 {
		return nil, nil
	}

	c.log.Info("territories fetched", "count", len(ids))
	c.territories.ids = ids
	return slices.Clone(ids), nil
}

// SetGlobalAvailability makes an in-app purchase available in every
// territory, including ones added later. It returns ErrNoTerritories when the
// territory list is empty.
func (c *Client) SetGlobalAvailability(ctx context.Context, iapID string) error {
	territories, err := c.AllTerritories(ctx)
	if err != nil {
		return err
	}
	if len(territories) == 0 {
		return ErrNoTerritories
	}

	refs := make([]ResourceRef, 0, len(territories))
	for _, id := range territories {
		refs = append(refs, ResourceRef{Type: typeTerritories, ID: id})
	}

	var req createAvailabilityRequest
	req.Data.Type = typeAvailabilities
	req.Data.Attributes.AvailableInNewTerritories = true
	req.Data.Relationships.InAppPurchase = toOne{
		Data: ResourceRef{Type: typeInAppPurchases, ID: iapID},
	}
	req.Data.Relationships.AvailableTerritories = toMany{Data: refs}

	if err := c.CreateResource(ctx, "/v1/inAppPurchaseAvailabilities", req, nil); err != nil {
		return fmt.Errorf("setting availability for %s: %w", iapID, err)
	}

	c.log.Debug("global availability set", "iap_id", iapID, "territories", len(territories))
	return nil
}
