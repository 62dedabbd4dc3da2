// Package cmd implements the appstore-iap CLI commands.
package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"

	"github.com/RaydowCharole/AppStoreIapScript/internal/asc"
	"github.com/RaydowCharole/AppStoreIapScript/internal/config"
	"github.com/RaydowCharole/AppStoreIapScript/pkg/logger"
)

const envPrefix = "APPSTORE_IAP"

// app holds the settings shared by every command. Flags, APPSTORE_IAP_*
// environment variables and defaults are resolved through v.
type app struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "appstore-iap",
		Short: "Batch-create consumable in-app purchases in App Store Connect",
		Long: "appstore-iap creates one consumable in-app purchase per configured price.\n" +
			"Each item is localized, priced, made available in every territory and\n" +
			"given a review screenshot. Submitting for review stays a manual step.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         a.runBatch,
	}

	pf := root.PersistentFlags()
	pf.String("config", config.DefaultFile, "batch config file (JSON or YAML)")
	pf.String("log-level", "", "override logging.level (debug, info, warn, error)")
	pf.String("output", "table", "output format (table, json)")
	root.Flags().Bool("dry-run", false, "print the planned items without calling the API")

	cobra.CheckErr(a.v.BindPFlag("config", pf.Lookup("config")))
	cobra.CheckErr(a.v.BindPFlag("log-level", pf.Lookup("log-level")))
	cobra.CheckErr(a.v.BindPFlag("output", pf.Lookup("output")))
	cobra.CheckErr(a.v.BindPFlag("dry-run", root.Flags().Lookup("dry-run")))

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(tokenCmd(a))
	root.AddCommand(territoriesCmd(a))
	root.AddCommand(pricePointsCmd(a))
	root.AddCommand(versionCmd())

	return root
}

// Root returns the root cobra command for documentation generation.
func Root() *cobra.Command {
	return newRootCmd()
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func (a *app) jsonOutput() bool {
	return a.v.GetString("output") == "json"
}

// loadConfig reads the batch config and applies CLI overrides.
func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.v.GetString("config"))
	if err != nil {
		return nil, err
	}
	if lvl := a.v.GetString("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	l := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(l)
	return l
}

func loadCredentials(cfg *config.Config) (*asc.Credentials, error) {
	creds, err := asc.LoadCredentials(cfg.KeyPath, cfg.KeyID, cfg.IssuerID)
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}
	return creds, nil
}

func priceMatch(cfg *config.Config) asc.PriceMatch {
	if cfg.PriceMatch == config.PriceMatchNumeric {
		return asc.MatchNumeric
	}
	return asc.MatchExact
}

// newAPIClient wires credentials, rate limiting and tracing into a client.
func newAPIClient(cfg *config.Config, log *slog.Logger, tp trace.TracerProvider) (*asc.Client, error) {
	creds, err := loadCredentials(cfg)
	if err != nil {
		return nil, err
	}

	limiter := asc.NewRateLimiter(
		cfg.API.RateLimit.PerSecond,
		cfg.API.RateLimit.Burst,
		cfg.API.RateLimit.HourlyLimit,
	)

	return asc.NewClient(asc.NewSigner(creds),
		asc.WithBaseURL(cfg.API.BaseURL),
		asc.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		asc.WithRateLimiter(limiter),
		asc.WithLogger(log),
		asc.WithTracerProvider(tp),
		asc.WithPriceMatch(priceMatch(cfg)),
	), nil
}
