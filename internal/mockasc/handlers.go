package mockasc

import (
	"bytes"
	"crypto/md5" //nolint:gosec // App Store Connect checksums are MD5
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

const (
	stateAwaitingUpload = "AWAITING_UPLOAD"
	stateUploadComplete = "UPLOAD_COMPLETE"
	stateFailed         = "FAILED"

	defaultPageLimit    = 50
	maxPricePointsLimit = 8000
	maxTerritoriesLimit = 200
	newPricePlaceholder = "${newprice-0}"
)

// proceedsRate is the developer share used to derive proceeds.
var proceedsRate = decimal.RequireFromString("0.85")

var territoryCurrency = map[string]string{
	"USA": "USD", "CAN": "CAD", "GBR": "GBP", "DEU": "EUR", "FRA": "EUR",
	"JPN": "JPY", "CHN": "CNY", "AUS": "AUD", "BRA": "BRL", "IND": "INR",
}

// Wire shapes. Decoding is strict so a misspelled field fails loudly.

type ref struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type toOne struct {
	Data *ref `json:"data"`
}

type toMany struct {
	Data []ref `json:"data"`
}

type resource struct {
	Type          string         `json:"type"`
	ID            string         `json:"id"`
	Attributes    any            `json:"attributes,omitempty"`
	Relationships map[string]any `json:"relationships,omitempty"`
}

type document struct {
	Data     any               `json:"data"`
	Included []resource        `json:"included,omitempty"`
	Links    map[string]string `json:"links,omitempty"`
	Meta     any               `json:"meta,omitempty"`
}

type createIAPBody struct {
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

type createLocalizationBody struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			Locale      string `json:"locale"`
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"attributes"`
		Relationships struct {
			InAppPurchaseV2 toOne `json:"inAppPurchaseV2"`
		} `json:"relationships"`
	} `json:"data"`
}

type createPriceScheduleBody struct {
	Data struct {
		Type          string   `json:"type"`
		Attributes    struct{} `json:"attributes"`
		Relationships struct {
			InAppPurchase toOne  `json:"inAppPurchase"`
			ManualPrices  toMany `json:"manualPrices"`
			BaseTerritory toOne  `json:"baseTerritory"`
		} `json:"relationships"`
	} `json:"data"`
	Included []struct {
		Type       string `json:"type"`
		ID         string `json:"id"`
		Attributes struct {
			StartDate *string `json:"startDate"`
		} `json:"attributes"`
		Relationships struct {
			InAppPurchasePricePoint toOne `json:"inAppPurchasePricePoint"`
		} `json:"relationships"`
	} `json:"included"`
}

type createAvailabilityBody struct {
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

type reserveScreenshotBody struct {
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

type commitScreenshotBody struct {
	Data struct {
		Type       string `json:"type"`
		ID         string `json:"id"`
		Attributes struct {
			Uploaded           bool   `json:"uploaded"`
			SourceFileChecksum string `json:"sourceFileChecksum"`
		} `json:"attributes"`
	} `json:"data"`
}

type uploadOperation struct {
	Method         string          `json:"method"`
	URL            string          `json:"url"`
	Length         int64           `json:"length"`
	Offset         int64           `json:"offset"`
	RequestHeaders []requestHeader `json:"requestHeaders"`
}

type requestHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type assetStateError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type assetDeliveryState struct {
	State    string            `json:"state"`
	Errors   []assetStateError `json:"errors"`
	Warnings []assetStateError `json:"warnings"`
}

func decodeStrict(c echo.Context, dst any) error {
	dec := json.NewDecoder(c.Request().Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return jsonAPIError(c, http.StatusBadRequest, "PARAMETER_ERROR.INVALID", "malformed request body: "+err.Error())
	}
	return nil
}

func invalid(c echo.Context, detail string) error {
	return jsonAPIError(c, http.StatusConflict, "ENTITY_ERROR.ATTRIBUTE.INVALID", detail)
}

func notFound(c echo.Context, kind, id string) error {
	return jsonAPIError(c, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("no %s with id %q", kind, id))
}

// lookupIAP resolves a relationship to an in-app purchase. Callers hold s.mu.
func (s *Server) lookupIAP(rel toOne) (*IAPRecord, bool) {
	if rel.Data == nil || rel.Data.Type != "inAppPurchases" {
		return nil, false
	}
	r, ok := s.state.iaps[rel.Data.ID]
	return r, ok
}

func iapResource(r *IAPRecord) resource {
	return resource{
		Type: "inAppPurchases",
		ID:   r.ID,
		Attributes: map[string]any{
			"name":              r.Name,
			"productId":         r.ProductID,
			"inAppPurchaseType": r.Type,
			"state":             "MISSING_METADATA",
		},
	}
}

func (s *Server) handleCreateIAP(c echo.Context) error {
	var body createIAPBody
	if err := decodeStrict(c, &body); err != nil {
		return err
	}
	a := body.Data.Attributes
	switch {
	case body.Data.Type != "inAppPurchases":
		return invalid(c, "data.type must be inAppPurchases")
	case a.Name == "" || a.ProductID == "":
		return invalid(c, "name and productId are required")
	case a.InAppPurchaseType != "CONSUMABLE" && a.InAppPurchaseType != "NON_CONSUMABLE" &&
		a.InAppPurchaseType != "NON_RENEWING_SUBSCRIPTION":
		return invalid(c, "unknown inAppPurchaseType "+a.InAppPurchaseType)
	case body.Data.Relationships.App.Data == nil || body.Data.Relationships.App.Data.Type != "apps":
		return invalid(c, "relationships.app is required")
	}

	s.mu.Lock()
	if _, dup := s.state.byProductID[a.ProductID]; dup {
		s.mu.Unlock()
		return jsonAPIError(c, http.StatusConflict, "ENTITY_ERROR.ATTRIBUTE.INVALID.DUPLICATE",
			"The product ID you entered has already been used.")
	}
	r := &IAPRecord{
		ID:        numericID(len(s.state.iaps) + 1),
		AppID:     body.Data.Relationships.App.Data.ID,
		Name:      a.Name,
		ProductID: a.ProductID,
		Type:      a.InAppPurchaseType,
		CreatedAt: time.Now(),
	}
	s.state.iaps[r.ID] = r
	s.state.byProductID[r.ProductID] = r.ID
	res := iapResource(r)
	s.mu.Unlock()

	s.log.Info("in-app purchase created", "id", r.ID, "product_id", r.ProductID)
	return c.JSON(http.StatusCreated, document{Data: res})
}

func (s *Server) handleGetIAP(c echo.Context) error {
	s.mu.Lock()
	r, ok := s.state.iaps[c.Param("id")]
	var res resource
	if ok {
		res = iapResource(r)
	}
	s.mu.Unlock()

	if !ok {
		return notFound(c, "inAppPurchases", c.Param("id"))
	}
	return c.JSON(http.StatusOK, document{Data: res})
}

func (s *Server) handleCreateLocalization(c echo.Context) error {
	var body createLocalizationBody
	if err := decodeStrict(c, &body); err != nil {
		return err
	}
	a := body.Data.Attributes
	if body.Data.Type != "inAppPurchaseLocalizations" {
		return invalid(c, "data.type must be inAppPurchaseLocalizations")
	}
	if a.Locale == "" || a.Name == "" {
		return invalid(c, "locale and name are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.lookupIAP(body.Data.Relationships.InAppPurchaseV2)
	if !ok {
		return invalid(c, "relationships.inAppPurchaseV2 does not reference an in-app purchase")
	}
	for _, l := range r.Localizations {
		if l.Locale == a.Locale {
			return jsonAPIError(c, http.StatusConflict, "ENTITY_ERROR.ATTRIBUTE.INVALID.DUPLICATE",
				"localization for "+a.Locale+" already exists")
		}
	}
	loc := LocalizationRecord{ID: newID(), Locale: a.Locale, Name: a.Name, Description: a.Description}
	r.Localizations = append(r.Localizations, loc)

	return c.JSON(http.StatusCreated, document{Data: resource{
		Type: "inAppPurchaseLocalizations",
		ID:   loc.ID,
		Attributes: map[string]any{
			"locale":      loc.Locale,
			"name":        loc.Name,
			"description": loc.Description,
			"state":       "PREPARE_FOR_SUBMISSION",
		},
	}})
}

func (s *Server) handlePricePoints(c echo.Context) error {
	iapID := c.Param("id")
	s.mu.Lock()
	_, ok := s.state.iaps[iapID]
	s.mu.Unlock()
	if !ok {
		return notFound(c, "inAppPurchases", iapID)
	}

	territory := c.QueryParam("filter[territory]")
	if territory == "" {
		territory = "USA"
	}
	limit := pageLimit(c.QueryParam("limit"), maxPricePointsLimit)

	data := make([]resource, 0, min(limit, len(s.pricePoints)))
	for _, p := range s.pricePoints {
		if len(data) == limit {
			break
		}
		price := decimal.RequireFromString(p)
		data = append(data, resource{
			Type: "inAppPurchasePricePoints",
			ID:   pricePointID(territory, p),
			Attributes: map[string]any{
				"customerPrice": p,
				"proceeds":      price.Mul(proceedsRate).Round(2).String(),
			},
			Relationships: map[string]any{
				"territory": toOne{Data: &ref{Type: "territories", ID: territory}},
			},
		})
	}

	doc := document{
		Data:  data,
		Links: map[string]string{"self": uploadBase(c) + c.Request().URL.RequestURI()},
		Meta:  map[string]any{"paging": map[string]int{"total": len(s.pricePoints), "limit": limit}},
	}
	if c.QueryParam("include") == "territory" {
		doc.Included = []resource{territoryResource(territory)}
	}
	return c.JSON(http.StatusOK, doc)
}

func (s *Server) knownPricePoint(id string) bool {
	territory, price, ok := strings.Cut(strings.TrimPrefix(id, "pp-"), "-")
	if !ok || !slices.Contains(s.territories, territory) {
		return false
	}
	return slices.Contains(s.pricePoints, price)
}

func (s *Server) handleCreatePriceSchedule(c echo.Context) error {
	var body createPriceScheduleBody
	if err := decodeStrict(c, &body); err != nil {
		return err
	}
	rel := body.Data.Relationships
	switch {
	case body.Data.Type != "inAppPurchasePriceSchedules":
		return invalid(c, "data.type must be inAppPurchasePriceSchedules")
	case rel.BaseTerritory.Data == nil || rel.BaseTerritory.Data.Type != "territories":
		return invalid(c, "relationships.baseTerritory is required")
	case len(rel.ManualPrices.Data) == 0:
		return invalid(c, "relationships.manualPrices is required")
	}

	// Every manual price must be resolved by an included inAppPurchasePrices
	// entry with the same local id.
	var pricePoint string
	var startDate *string
	for _, mp := range rel.ManualPrices.Data {
		found := false
		for _, inc := range body.Included {
			if inc.Type == mp.Type && inc.ID == mp.ID && inc.Type == "inAppPurchasePrices" {
				pp := inc.Relationships.InAppPurchasePricePoint.Data
				if pp == nil || pp.Type != "inAppPurchasePricePoints" {
					return invalid(c, "included price needs an inAppPurchasePricePoint")
				}
				pricePoint, startDate, found = pp.ID, inc.Attributes.StartDate, true
			}
		}
		if !found {
			return invalid(c, fmt.Sprintf("manual price %q is not included", mp.ID))
		}
	}
	if !s.knownPricePoint(pricePoint) {
		return invalid(c, "unknown price point "+pricePoint)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.lookupIAP(rel.InAppPurchase)
	if !ok {
		return invalid(c, "relationships.inAppPurchase does not reference an in-app purchase")
	}
	r.PricePointID = pricePoint
	r.PriceStartDate = startDate

	return c.JSON(http.StatusCreated, document{Data: resource{
		Type: "inAppPurchasePriceSchedules",
		ID:   r.ID,
	}})
}

func territoryResource(id string) resource {
	currency, ok := territoryCurrency[id]
	if !ok {
		currency = "USD"
	}
	return resource{
		Type:       "territories",
		ID:         id,
		Attributes: map[string]any{"currency": currency},
	}
}

func (s *Server) handleTerritories(c echo.Context) error {
	limit := pageLimit(c.QueryParam("limit"), maxTerritoriesLimit)

	data := make([]resource, 0, min(limit, len(s.territories)))
	for _, id := range s.territories {
		if len(data) == limit {
			break
		}
		data = append(data, territoryResource(id))
	}

	doc := document{
		Data:  data,
		Links: map[string]string{"self": uploadBase(c) + c.Request().URL.RequestURI()},
		Meta:  map[string]any{"paging": map[string]int{"total": len(s.territories), "limit": limit}},
	}
	if limit < len(s.territories) {
		doc.Links["next"] = fmt.Sprintf("%s/v1/territories?limit=%d&cursor=%d", uploadBase(c), limit, limit)
	}
	return c.JSON(http.StatusOK, doc)
}

func (s *Server) handleCreateAvailability(c echo.Context) error {
	var body createAvailabilityBody
	if err := decodeStrict(c, &body); err != nil {
		return err
	}
	if body.Data.Type != "inAppPurchaseAvailabilities" {
		return invalid(c, "data.type must be inAppPurchaseAvailabilities")
	}
	refs := body.Data.Relationships.AvailableTerritories.Data
	if len(refs) == 0 {
		return invalid(c, "relationships.availableTerritories is required")
	}
	ids := make([]string, 0, len(refs))
	for _, t := range refs {
		if t.Type != "territories" || !slices.Contains(s.territories, t.ID) {
			return invalid(c, fmt.Sprintf("unknown territory %q", t.ID))
		}
		ids = append(ids, t.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.lookupIAP(body.Data.Relationships.InAppPurchase)
	if !ok {
		return invalid(c, "relationships.inAppPurchase does not reference an in-app purchase")
	}
	r.Territories = ids
	r.AvailableInNewTerritories = body.Data.Attributes.AvailableInNewTerritories

	return c.JSON(http.StatusCreated, document{Data: resource{
		Type: "inAppPurchaseAvailabilities",
		ID:   r.ID,
		Attributes: map[string]any{
			"availableInNewTerritories": r.AvailableInNewTerritories,
		},
	}})
}

func (s *Server) handleReserveScreenshot(c echo.Context) error {
	var body reserveScreenshotBody
	if err := decodeStrict(c, &body); err != nil {
		return err
	}
	a := body.Data.Attributes
	switch {
	case body.Data.Type != "inAppPurchaseAppStoreReviewScreenshots":
		return invalid(c, "data.type must be inAppPurchaseAppStoreReviewScreenshots")
	case a.FileName == "" || a.FileSize <= 0:
		return invalid(c, "fileName and a positive fileSize are required")
	}

	s.mu.Lock()
	r, ok := s.lookupIAP(body.Data.Relationships.InAppPurchaseV2)
	if !ok {
		s.mu.Unlock()
		return invalid(c, "relationships.inAppPurchaseV2 does not reference an in-app purchase")
	}
	shot := &ScreenshotRecord{
		ID:       newID(),
		IAPID:    r.ID,
		FileName: a.FileName,
		FileSize: a.FileSize,
		Chunks:   make(map[int][]byte),
		Parts:    int((a.FileSize + s.chunkSize - 1) / s.chunkSize),
		State:    stateAwaitingUpload,
	}
	s.state.screenshots[shot.ID] = shot
	s.mu.Unlock()

	ops := make([]uploadOperation, 0, shot.Parts)
	for i := range shot.Parts {
		offset := int64(i) * s.chunkSize
		ops = append(ops, uploadOperation{
			Method: http.MethodPut,
			URL:    fmt.Sprintf("%s/upload/%s/%d?X-Amz-Signature=mock", uploadBase(c), shot.ID, i),
			Length: min(s.chunkSize, a.FileSize-offset),
			Offset: offset,
			RequestHeaders: []requestHeader{
				{Name: "Content-Type", Value: "image/png"},
			},
		})
	}

	return c.JSON(http.StatusCreated, document{Data: resource{
		Type: "inAppPurchaseAppStoreReviewScreenshots",
		ID:   shot.ID,
		Attributes: map[string]any{
			"fileName":           shot.FileName,
			"fileSize":           shot.FileSize,
			"uploadOperations":   ops,
			"assetDeliveryState": assetDeliveryState{State: shot.State},
		},
	}})
}

func (s *Server) handleUploadChunk(c echo.Context) error {
	part, err := strconv.Atoi(c.Param("part"))
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	shot, ok := s.state.screenshots[c.Param("id")]
	if !ok || part < 0 || part >= shot.Parts {
		return c.NoContent(http.StatusNotFound)
	}
	want := min(s.chunkSize, shot.FileSize-int64(part)*s.chunkSize)
	if int64(len(data)) != want {
		return c.String(http.StatusBadRequest, fmt.Sprintf("expected %d bytes, got %d", want, len(data)))
	}
	shot.Chunks[part] = data
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleCommitScreenshot(c echo.Context) error {
	var body commitScreenshotBody
	if err := decodeStrict(c, &body); err != nil {
		return err
	}
	id := c.Param("id")
	switch {
	case body.Data.Type != "inAppPurchaseAppStoreReviewScreenshots" || body.Data.ID != id:
		return invalid(c, "data.type and data.id must match the screenshot")
	case !body.Data.Attributes.Uploaded:
		return invalid(c, "uploaded must be true")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	shot, ok := s.state.screenshots[id]
	if !ok {
		return notFound(c, "inAppPurchaseAppStoreReviewScreenshots", id)
	}
	shot.Checksum = body.Data.Attributes.SourceFileChecksum

	delivery := assetDeliveryState{State: stateAwaitingUpload, Errors: []assetStateError{}, Warnings: []assetStateError{}}
	if len(shot.Chunks) == shot.Parts {
		var buf bytes.Buffer
		for i := range shot.Parts {
			buf.Write(shot.Chunks[i])
		}
		sum := md5.Sum(buf.Bytes()) //nolint:gosec // App Store Connect checksums are MD5
		if hex.EncodeToString(sum[:]) == shot.Checksum {
			delivery.State = stateUploadComplete
			s.state.iaps[shot.IAPID].ScreenshotID = shot.ID
		} else {
			delivery.State = stateFailed
			delivery.Errors = append(delivery.Errors, assetStateError{
				Code:        "IMAGE_INCORRECT_CHECKSUM",
				Description: "sourceFileChecksum does not match the uploaded data",
			})
		}
	}
	shot.State = delivery.State

	return c.JSON(http.StatusOK, document{Data: resource{
		Type: "inAppPurchaseAppStoreReviewScreenshots",
		ID:   shot.ID,
		Attributes: map[string]any{
			"fileName":           shot.FileName,
			"fileSize":           shot.FileSize,
			"sourceFileChecksum": shot.Checksum,
			"assetDeliveryState": delivery,
		},
	}})
}

func pageLimit(raw string, maxLimit int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultPageLimit
	}
	return min(n, maxLimit)
}
