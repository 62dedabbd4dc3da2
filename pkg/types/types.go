// Package domain defines the core business types for in-app purchase creation.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Price is a configured customer price. It keeps the literal text exactly as
// written in the config ("0.99", "4", "4.00") alongside its decimal value. The
// literal is what product ids are derived from and what exact price-point
// matching compares against.
type Price struct {
	literal string
	amount  decimal.Decimal
}

// NewPrice parses a price literal. The literal must be a plain positive
// decimal number.
func NewPrice(s string) (Price, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Price{}, fmt.Errorf("empty price")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Price{}, fmt.Errorf("parsing price %q: %w", s, err)
	}
	if !d.IsPositive() {
		return Price{}, fmt.Errorf("price %q must be positive", s)
	}
	return Price{literal: s, amount: d}, nil
}

// MustPrice is like NewPrice but panics on error. Intended for tests and
// constant tables.
func MustPrice(s string) Price {
	p, err := NewPrice(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the literal as configured.
func (p Price) String() string {
	return p.literal
}

// Decimal returns the numeric value.
func (p Price) Decimal() decimal.Decimal {
	return p.amount
}

// IsZero reports whether p is the zero Price (never parsed).
func (p Price) IsZero() bool {
	return p.literal == ""
}

// UnmarshalYAML keeps the scalar text verbatim so that 0.99 stays "0.99"
// rather than round-tripping through float64.
func (p *Price) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: price must be a scalar", value.Line)
	}
	parsed, err := NewPrice(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*p = parsed
	return nil
}

// UnmarshalJSON accepts both bare numbers and quoted strings.
func (p *Price) UnmarshalJSON(data []byte) error {
	parsed, err := NewPrice(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalJSON writes the literal as a JSON number.
func (p Price) MarshalJSON() ([]byte, error) {
	if p.literal == "" {
		return []byte("null"), nil
	}
	return []byte(p.literal), nil
}

// IAPType is the App Store in-app purchase type. Only consumables are created.
type IAPType string

// IAP type constants.
const (
	IAPTypeConsumable IAPType = "CONSUMABLE"
)

// InAppPurchase is an in-app purchase as known to the remote service.
type InAppPurchase struct {
	ID        string  `json:"id"`
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Type      IAPType `json:"type"`
	State     string  `json:"state,omitempty"`
}

// Localization is the display metadata attached to an in-app purchase.
type Localization struct {
	ID          string `json:"id,omitempty"`
	Locale      string `json:"locale"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// PricePoint is one of the platform's quantized price tiers for a territory.
type PricePoint struct {
	ID            string `json:"id"`
	CustomerPrice string `json:"customer_price"`
	Proceeds      string `json:"proceeds,omitempty"`
	Territory     string `json:"territory,omitempty"`
}

// ItemStatus is the outcome of processing a single price.
type ItemStatus string

// Item status constants. Degraded means every required step succeeded but a
// best-effort step (global availability) did not.
const (
	StatusSuccess  ItemStatus = "success"
	StatusDegraded ItemStatus = "degraded"
	StatusFailed   ItemStatus = "failed"
)

// ItemResult is the per-price outcome of a batch run.
type ItemResult struct {
	Price           Price      `json:"price"`
	ProductID       string     `json:"product_id"`
	Status          ItemStatus `json:"status"`
	IAPID           string     `json:"iap_id,omitempty"`
	PricePointID    string     `json:"price_point_id,omitempty"`
	ScreenshotID    string     `json:"screenshot_id,omitempty"`
	ScreenshotState string     `json:"screenshot_state,omitempty"`
	Warnings        []string   `json:"warnings,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// Succeeded reports whether the item was created, including degraded items.
func (r *ItemResult) Succeeded() bool {
	return r.Status == StatusSuccess || r.Status == StatusDegraded
}

// BatchResult holds one ItemResult per input price, in input order.
type BatchResult struct {
	RunID      string       `json:"run_id"`
	AppID      string       `json:"app_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Items      []ItemResult `json:"items"`
}

// Summary counts item outcomes.
type Summary struct {
	Total    int `json:"total"`
	Success  int `json:"success"`
	Degraded int `json:"degraded"`
	Failed   int `json:"failed"`
}

// Summary tallies the items of the batch. Degraded items count towards
// Success as well as Degraded.
func (b *BatchResult) Summary() Summary {
	s := Summary{Total: len(b.Items)}
	for i := range b.Items {
		switch b.Items[i].Status {
		case StatusSuccess:
			s.Success++
		case StatusDegraded:
			s.Success++
			s.Degraded++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}

// Duration returns how long the batch took.
func (b *BatchResult) Duration() time.Duration {
	return b.FinishedAt.Sub(b.StartedAt)
}

// MarshalIndent renders the batch as indented JSON.
func (b *BatchResult) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(b, "", "  ")
}
