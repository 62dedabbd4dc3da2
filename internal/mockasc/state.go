package mockasc

import (
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// IAPRecord is an in-app purchase held by the fake server.
type IAPRecord struct {
	ID                        string
	AppID                     string
	Name                      string
	ProductID                 string
	Type                      string
	Localizations             []LocalizationRecord
	PricePointID              string
	PriceStartDate            *string
	Territories               []string
	AvailableInNewTerritories bool
	ScreenshotID              string
	CreatedAt                 time.Time
}

// LocalizationRecord is a localization held by the fake server.
type LocalizationRecord struct {
	ID          string
	Locale      string
	Name        string
	Description string
}

// ScreenshotRecord is a review screenshot held by the fake server.
type ScreenshotRecord struct {
	ID       string
	IAPID    string
	FileName string
	FileSize int64
	Chunks   map[int][]byte
	Parts    int
	Checksum string
	State    string
}

type state struct {
	iaps        map[string]*IAPRecord
	byProductID map[string]string
	screenshots map[string]*ScreenshotRecord
	requests    int
	windowStart time.Time
}

func newState() state {
	return state{
		iaps:        make(map[string]*IAPRecord),
		byProductID: make(map[string]string),
		screenshots: make(map[string]*ScreenshotRecord),
		windowStart: time.Now(),
	}
}

func newID() string {
	return uuid.NewString()
}

// numericID mimics the numeric ids App Store Connect assigns to in-app
// purchases.
func numericID(n int) string {
	return strconv.Itoa(6_450_000_000 + n)
}

// pricePointID encodes territory and customer price, so lookups need no
// table.
func pricePointID(territory, price string) string {
	return "pp-" + territory + "-" + price
}

// InAppPurchases returns a copy of every in-app purchase, ordered by
// creation.
func (s *Server) InAppPurchases() []IAPRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]IAPRecord, 0, len(s.state.iaps))
	for _, r := range s.state.iaps {
		cp := *r
		cp.Localizations = append([]LocalizationRecord(nil), r.Localizations...)
		cp.Territories = append([]string(nil), r.Territories...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// InAppPurchase returns the in-app purchase with the given product id.
func (s *Server) InAppPurchase(productID string) (IAPRecord, bool) {
	for _, r := range s.InAppPurchases() {
		if r.ProductID == productID {
			return r, true
		}
	}
	return IAPRecord{}, false
}

// Screenshot returns the screenshot with the given id.
func (s *Server) Screenshot(id string) (ScreenshotRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.state.screenshots[id]
	if !ok {
		return ScreenshotRecord{}, false
	}
	cp := *r
	cp.Chunks = make(map[int][]byte, len(r.Chunks))
	for k, v := range r.Chunks {
		cp.Chunks[k] = append([]byte(nil), v...)
	}
	return cp, true
}

// Requests returns the number of authenticated API requests served.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.requests
}
