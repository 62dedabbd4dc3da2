package asc

import (
	"encoding/json"
)

// Resource type names used on the wire.
const (
	typeApps                   = "apps"
	typeInAppPurchases         = "inAppPurchases"
	typeLocalizations          = "inAppPurchaseLocalizations"
	typePricePoints            = "inAppPurchasePricePoints"
	typePrices                 = "inAppPurchasePrices"
	typePriceSchedules         = "inAppPurchasePriceSchedules"
	typeAvailabilities         = "inAppPurchaseAvailabilities"
	typeReviewScreenshots      = "inAppPurchaseAppStoreReviewScreenshots"
	typeTerritories            = "territories"
	newPricePlaceholder        = "${newprice-0}"
	assetStateUploadComplete   = "UPLOAD_COMPLETE"
	defaultBaseTerritory       = "USA"
	defaultPricePointPageLimit = 8000
	defaultTerritoryPageLimit  = 200
)

// ResourceRef is a JSON:API resource identifier.
type ResourceRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type toOne struct {
	Data ResourceRef `json:"data"`
}

type toMany struct {
	Data []ResourceRef `json:"data"`
}

// Resource is a JSON:API resource object with typed attributes.
type Resource[A any] struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Attributes A      `json:"attributes"`
}

// Document is a JSON:API response holding one resource.
type Document[A any] struct {
	Data Resource[A] `json:"data"`
}

// CollectionDocument is a JSON:API response holding many resources.
type CollectionDocument[A any] struct {
	Data  []Resource[A] `json:"data"`
	Links PagedLinks    `json:"links"`
	Meta  struct {
		Paging struct {
			Total int `json:"total"`
			Limit int `json:"limit"`
		} `json:"paging"`
	} `json:"meta"`
}

// PagedLinks carries pagination links.
type PagedLinks struct {
	Self string `json:"self"`
	Next string `json:"next,omitempty"`
}

// InAppPurchaseAttributes are the attributes of an inAppPurchases resource.
type InAppPurchaseAttributes struct {
	Name              string `json:"name"`
	ProductID         string `json:"productId"`
	InAppPurchaseType string `json:"inAppPurchaseType"`
	State             string `json:"state,omitempty"`
}

// LocalizationAttributes are the attributes of an inAppPurchaseLocalizations resource.
type LocalizationAttributes struct {
	Locale      string `json:"locale"`
	Name        string `json:"name"`
	Description string `json:"description"`
	State       string `json:"state,omitempty"`
}

// PricePointAttributes are the attributes of an inAppPurchasePricePoints resource.
type PricePointAttributes struct {
	CustomerPrice string `json:"customerPrice"`
	Proceeds      string `json:"proceeds"`
}

// pricePointResource keeps the territory relationship that the generic
// Resource drops.
type pricePointResource struct {
	Type          string               `json:"type"`
	ID            string               `json:"id"`
	Attributes    PricePointAttributes `json:"attributes"`
	Relationships struct {
		Territory toOne `json:"territory"`
	} `json:"relationships"`
}

type pricePointsDocument struct {
	Data  []pricePointResource `json:"data"`
	Links PagedLinks           `json:"links"`
}

// TerritoryAttributes are the attributes of a territories resource.
type TerritoryAttributes struct {
	Currency string `json:"currency"`
}

// UploadOperation describes one chunk of a reserved asset upload against a
// presigned destination.
type UploadOperation struct {
	Method         string          `json:"method"`
	URL            string          `json:"url"`
	Length         *int64          `json:"length"`
	Offset         int64           `json:"offset"`
	RequestHeaders []RequestHeader `json:"requestHeaders"`
}

// RequestHeader is a header the presigned destination expects.
type RequestHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AssetDeliveryState reports processing of an uploaded asset.
type AssetDeliveryState struct {
	State    string            `json:"state"`
	Errors   []AssetStateError `json:"errors,omitempty"`
	Warnings []AssetStateError `json:"warnings,omitempty"`
}

// AssetStateError is an error or warning attached to an asset state.
type AssetStateError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// UnmarshalJSON accepts the documented object form as well as a bare state
// string.
func (s *AssetDeliveryState) UnmarshalJSON(data []byte) error {
	var state string
	if err := json.Unmarshal(data, &state); err == nil {
		*s = AssetDeliveryState{State: state}
		return nil
	}
	type plain AssetDeliveryState
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = AssetDeliveryState(p)
	return nil
}

// ReviewScreenshotAttributes are the attributes of an
// inAppPurchaseAppStoreReviewScreenshots resource.
type ReviewScreenshotAttributes struct {
	FileName           string              `json:"fileName"`
	FileSize           int64               `json:"fileSize"`
	SourceFileChecksum string              `json:"sourceFileChecksum,omitempty"`
	AssetDeliveryState *AssetDeliveryState `json:"assetDeliveryState,omitempty"`
	UploadOperations   []UploadOperation   `json:"uploadOperations,omitempty"`
}

// Request bodies. Field order and names mirror what App Store Connect expects.

type createInAppPurchaseRequest struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			Name              string `json:"name"`
			ProductID         string `json:"productId"`
			InAppPurchaseType string `json:"inAppPurchaseType"`
		} `json:"attributes"`
		Relationships struct {
			App toOne `json:"app"`
		} `json:"relationships"`
	} `json:"data"`
}

type createLocalizationRequest struct {
	Data struct {
		Type          string `json:"type"`
		Attributes    LocalizationAttributes `json:"attributes"`
		Relationships struct {
			InAppPurchaseV2 toOne `json:"inAppPurchaseV2"`
		} `json:"relationships"`
	} `json:"data"`
}

type createPriceScheduleRequest struct {
	Data struct {
		Type          string   `json:"type"`
		Attributes    struct{} `json:"attributes"`
		Relationships struct {
			InAppPurchase toOne  `json:"inAppPurchase"`
			ManualPrices  toMany `json:"manualPrices"`
			BaseTerritory toOne  `json:"baseTerritory"`
		} `json:"relationships"`
	} `json:"data"`
	Included []includedPrice `json:"included"`
}

type includedPrice struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Attributes struct {
		StartDate *string `json:"startDate"`
	} `json:"attributes"`
	Relationships struct {
		InAppPurchasePricePoint toOne `json:"inAppPurchasePricePoint"`
	} `json:"relationships"`
}

type createAvailabilityRequest struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			AvailableInNewTerritories bool `json:"availableInNewTerritories"`
		} `json:"attributes"`
		Relationships struct {
			InAppPurchase        toOne  `json:"inAppPurchase"`
			AvailableTerritories toMany `json:"availableTerritories"`
		} `json:"relationships"`
	} `json:"data"`
}

type reserveScreenshotRequest struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			FileName string `json:"fileName"`
			FileSize int64  `json:"fileSize"`
		} `json:"attributes"`
		Relationships struct {
			InAppPurchaseV2 toOne `json:"inAppPurchaseV2"`
		} `json:"relationships"`
	} `json:"data"`
}

type commitScreenshotRequest struct {
	Data struct {
		Type       string `json:"type"`
		ID         string `json:"id"`
		Attributes struct {
			Uploaded           bool   `json:"uploaded"`
			SourceFileChecksum string `json:"sourceFileChecksum"`
		} `json:"attributes"`
	} `json:"data"`
}
