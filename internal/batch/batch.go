// Package batch creates one in-app purchase per configured price and reports
// a per-item outcome.
package batch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/RaydowCharole/AppStoreIapScript/internal/asc"
	"github.com/RaydowCharole/AppStoreIapScript/internal/metrics"
	domain "github.com/RaydowCharole/AppStoreIapScript/pkg/types"
)

const (
	defaultScreenshotPath = "review.png"
	tracerName            = "github.com/RaydowCharole/AppStoreIapScript/internal/batch"
)

// Orchestrator drives the per-price creation sequence: create, localize,
// price, make available, attach screenshot.
type Orchestrator struct {
	client   asc.IAPClient
	uploader asc.ScreenshotUploader
	log      *slog.Logger
	tracer   trace.Tracer
	nowFunc  func() time.Time

	progress   io.Writer
	progressMu sync.Mutex

	productIDPrefix string
	locale          string
	screenshotPath  string
	concurrency     int
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.log = l
	}
}

// WithProgress sets where the human-readable progress narrative is written.
func WithProgress(w io.Writer) Option {
	return func(o *Orchestrator) {
		o.progress = w
	}
}

// WithProductIDPrefix sets the prefix each price literal is appended to.
func WithProductIDPrefix(prefix string) Option {
	return func(o *Orchestrator) {
		o.productIDPrefix = prefix
	}
}

// WithLocale sets the localization locale.
func WithLocale(locale string) Option {
	return func(o *Orchestrator) {
		o.locale = locale
	}
}

// WithScreenshotPath sets the review screenshot attached to every item.
func WithScreenshotPath(path string) Option {
	return func(o *Orchestrator) {
		o.screenshotPath = path
	}
}

// WithConcurrency sets how many items are processed at once. Values below
// one mean sequential.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		o.concurrency = n
	}
}

// WithTracerProvider sets the tracer provider for per-item spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) {
		o.tracer = tp.Tracer(tracerName)
	}
}

// WithNowFunc overrides the clock for testing.
func WithNowFunc(f func() time.Time) Option {
	return func(o *Orchestrator) {
		o.nowFunc = f
	}
}

// New creates an Orchestrator with injected dependencies.
func New(client asc.IAPClient, uploader asc.ScreenshotUploader, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:         client,
		uploader:       uploader,
		log:            slog.Default(),
		tracer:         otel.Tracer(tracerName),
		nowFunc:        time.Now,
		progress:       io.Discard,
		locale:         asc.DefaultLocale,
		screenshotPath: defaultScreenshotPath,
		concurrency:    1,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ProductID derives the product id of a price.
func (o *Orchestrator) ProductID(p domain.Price) string {
	return o.productIDPrefix + p.String()
}

// PlannedItem is what Run would create for one price.
type PlannedItem struct {
	Price       domain.Price `json:"price"`
	ProductID   string       `json:"product_id"`
	Name        string       `json:"name"`
	DisplayName string       `json:"display_name"`
	Locale      string       `json:"locale"`
}

// Plan returns the items Run would create, without touching the network.
func (o *Orchestrator) Plan(prices []domain.Price) []PlannedItem {
	items := make([]PlannedItem, 0, len(prices))
	for _, p := range prices {
		items = append(items, PlannedItem{
			Price:       p,
			ProductID:   o.ProductID(p),
			Name:        p.String(),
			DisplayName: displayName(p),
			Locale:      o.locale,
		})
	}
	return items
}

// Run processes every price and returns one ItemResult per price, in input
// order. A failing item never stops the batch. Items not started before ctx
// is canceled are reported failed with the context error.
func (o *Orchestrator) Run(ctx context.Context, appID string, prices []domain.Price) *domain.BatchResult {
	res := &domain.BatchResult{
		RunID:     uuid.NewString(),
		AppID:     appID,
		StartedAt: o.nowFunc(),
		Items:     make([]domain.ItemResult, len(prices)),
	}

	log := o.log.With("run_id", res.RunID, "app_id", appID)
	log.Info("batch started", "items", len(prices), "concurrency", o.concurrency)
	o.printf("Creating %d in-app purchases: %s\n", len(prices), joinPrices(prices))

	if o.concurrency <= 1 {
		for i := range prices {
			res.Items[i] = o.processItem(ctx, log, appID, prices[i])
		}
	} else {
		var g errgroup.Group
		g.SetLimit(o.concurrency)
		for i := range prices {
			g.Go(func() error {
				res.Items[i] = o.processItem(ctx, log, appID, prices[i])
				return nil
			})
		}
		_ = g.Wait() //nolint:errcheck // workers never return errors
	}

	res.FinishedAt = o.nowFunc()
	metrics.BatchLastRunTimestamp.Set(float64(res.FinishedAt.Unix()))

	s := res.Summary()
	log.Info("batch finished",
		"success", s.Success,
		"degraded", s.Degraded,
		"failed", s.Failed,
		"duration", res.Duration(),
	)
	return res
}

func (o *Orchestrator) processItem(
	ctx context.Context,
	log *slog.Logger,
	appID string,
	price domain.Price,
) (item domain.ItemResult) {
	start := time.Now()
	item = domain.ItemResult{Price: price, ProductID: o.ProductID(price)}
	log = log.With("price", price.String(), "product_id", item.ProductID)

	ctx, span := o.tracer.Start(ctx, "batch.item", trace.WithAttributes(
		attribute.String("iap.price", price.String()),
		attribute.String("iap.product_id", item.ProductID),
	))
	defer func() {
		span.SetAttributes(attribute.String("iap.status", string(item.Status)))
		if item.Status == domain.StatusFailed {
			span.SetStatus(codes.Error, item.Error)
		}
		span.End()
		metrics.BatchItemsTotal.WithLabelValues(string(item.Status)).Inc()
		metrics.BatchItemDuration.Observe(time.Since(start).Seconds())
	}()

	fail := func(err error) domain.ItemResult {
		item.Status = domain.StatusFailed
		item.Error = err.Error()
		log.Error("item failed", "iap_id", item.IAPID, "error", err)
		o.printf("[$%s] failed: %v\n", price, err)
		return item
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	o.printf("[$%s] creating in-app purchase %s\n", price, item.ProductID)
	iap, err := o.client.CreateInAppPurchase(ctx, appID, price.String(), item.ProductID)
	if err != nil {
		return fail(err)
	}
	item.IAPID = iap.ID
	log = log.With("iap_id", iap.ID)

	o.printf("[$%s] adding %s localization\n", price, o.locale)
	name := displayName(price)
	if _, err := o.client.CreateLocalization(ctx, iap.ID, domain.Localization{
		Locale:      o.locale,
		Name:        name,
		Description: name,
	}); err != nil {
		return fail(err)
	}

	o.printf("[$%s] looking up price point\n", price)
	pointID, err := o.client.FindPricePointForPrice(ctx, iap.ID, price)
	if err != nil {
		return fail(err)
	}
	if pointID == "" {
		item.Warnings = append(item.Warnings, fmt.Sprintf("no price point matches %s; price not set", price))
	} else {
		o.printf("[$%s] setting price point %s\n", price, pointID)
		if err := o.client.SetPrice(ctx, iap.ID, pointID, nil); err != nil {
			return fail(err)
		}
		item.PricePointID = pointID
	}

	o.printf("[$%s] setting global availability\n", price)
	item.Status = domain.StatusSuccess
	if err := o.client.SetGlobalAvailability(ctx, iap.ID); err != nil {
		item.Status = domain.StatusDegraded
		item.Warnings = append(item.Warnings, "global availability not set: "+err.Error())
		log.Warn("global availability failed", "error", err)
		o.printf("[$%s] warning: global availability not set: %v\n", price, err)
	}

	o.printf("[$%s] uploading review screenshot\n", price)
	shot, err := o.uploader.Upload(ctx, iap.ID, o.screenshotPath)
	if err != nil {
		return fail(err)
	}
	item.ScreenshotID = shot.ID
	item.ScreenshotState = shot.State
	if !shot.Complete {
		item.Warnings = append(item.Warnings, fmt.Sprintf("screenshot state is %s", shot.State))
	}

	log.Info("item created", "status", item.Status, "price_point_id", item.PricePointID)
	o.printf("[$%s] done (%s)\n", price, item.IAPID)
	return item
}

func (o *Orchestrator) printf(format string, args ...any) {
	o.progressMu.Lock()
	defer o.progressMu.Unlock()
	_, _ = fmt.Fprintf(o.progress, format, args...)
}

func displayName(p domain.Price) string {
	return "$" + p.String() + " package"
}

func joinPrices(prices []domain.Price) string {
	parts := make([]string, 0, len(prices))
	for _, p := range prices {
		parts = append(parts, "$"+p.String())
	}
	return strings.Join(parts, ", ")
}
