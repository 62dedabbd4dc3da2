package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/RaydowCharole/AppStoreIapScript/internal/asc"
	"github.com/RaydowCharole/AppStoreIapScript/internal/batch"
	"github.com/RaydowCharole/AppStoreIapScript/internal/config"
	"github.com/RaydowCharole/AppStoreIapScript/internal/metrics"
	"github.com/RaydowCharole/AppStoreIapScript/internal/notify"
	"github.com/RaydowCharole/AppStoreIapScript/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

// runBatch is the default action: create every configured price.
func (a *app) runBatch(cmd *cobra.Command, _ []string) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	out := cmd.OutOrStdout()

	if a.v.GetBool("dry-run") {
		o := batch.New(nil, nil,
			batch.WithProductIDPrefix(cfg.ProductIDPrefix),
			batch.WithLocale(cfg.Locale),
		)
		plan := o.Plan(cfg.Prices)
		if a.jsonOutput() {
			return outputJSON(out, plan)
		}
		return printPlan(out, plan)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Setup(ctx, cfg.Tracing, Version, log)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	client, err := newAPIClient(cfg, log, tp)
	if err != nil {
		return err
	}
	uploader := asc.NewUploader(client,
		asc.WithUploadHTTPClient(&http.Client{Timeout: cfg.API.UploadTimeout}),
		asc.WithUploaderLogger(log),
	)

	// JSON output keeps stdout machine-readable, so progress moves to stderr.
	progress := out
	if a.jsonOutput() {
		progress = cmd.ErrOrStderr()
	}

	o := batch.New(client, uploader,
		batch.WithLogger(log),
		batch.WithProgress(progress),
		batch.WithProductIDPrefix(cfg.ProductIDPrefix),
		batch.WithLocale(cfg.Locale),
		batch.WithScreenshotPath(cfg.ScreenshotPath),
		batch.WithConcurrency(cfg.Concurrency),
		batch.WithTracerProvider(tp),
	)
	res := o.Run(ctx, cfg.AppID, cfg.Prices)

	if err := newNotifier(cfg, log).SendBatchSummary(ctx, res); err != nil {
		log.Warn("sending batch summary failed", "error", err)
	}
	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			log.Warn("metrics export failed", "path", cfg.Metrics.Textfile, "error", err)
		}
	}

	if a.jsonOutput() {
		return outputJSON(out, res)
	}
	return printSummary(out, res)
}

func newNotifier(cfg *config.Config, log *slog.Logger) notify.Notifier {
	if cfg.Notifications.Discord.Enabled {
		return notify.NewDiscordNotifier(cfg.Notifications.Discord.WebhookURL)
	}
	return notify.NewNoOpNotifier(log)
}

// readOnlyClient builds a client for the inspection commands, which need
// neither tracing nor the upload path.
func (a *app) readOnlyClient() (*asc.Client, *config.Config, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log := newLogger(cfg)
	client, err := newAPIClient(cfg, log, noop.NewTracerProvider())
	if err != nil {
		return nil, nil, err
	}
	return client, cfg, nil
}

func writeln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}
