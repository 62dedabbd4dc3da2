// Package main runs a fake App Store Connect API for local development.
// Point api.base_url at it to exercise a full batch without touching a real
// account.
package main

import (
	"crypto/ecdsa"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/RaydowCharole/AppStoreIapScript/internal/mockasc"
)

// failureFlags collects repeated -fail METHOD:PATH_PREFIX:STATUS values.
type failureFlags []mockasc.Option

func (f *failureFlags) String() string {
	return fmt.Sprintf("%d failures", len(*f))
}

func (f *failureFlags) Set(v string) error {
	opt, err := parseFailure(v)
	if err != nil {
		return err
	}
	*f = append(*f, opt)
	return nil
}

func main() {
	port := flag.Int("port", 8089, "port to listen on")
	keyFile := flag.String("key", "", "App Store Connect .p8 key whose public half verifies tokens (unverified when empty)")
	keyID := flag.String("key-id", "", "key id the -key file is registered under")
	issuer := flag.String("issuer", "", "required token issuer (any when empty)")
	chunkSize := flag.Int64("chunk-size", 1<<20, "bytes per screenshot upload operation")
	hourlyLimit := flag.Int("hourly-limit", 3600, "requests allowed per hour")
	var failures failureFlags
	flag.Var(&failures, "fail", "inject a failure, e.g. POST:/v1/inAppPurchaseAvailabilities:500 (repeatable)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	opts := []mockasc.Option{
		mockasc.WithLogger(logger),
		mockasc.WithIssuer(*issuer),
		mockasc.WithChunkSize(*chunkSize),
		mockasc.WithHourlyLimit(*hourlyLimit),
	}
	opts = append(opts, failures...)

	if *keyFile != "" {
		pub, err := loadPublicKey(*keyFile)
		if err != nil {
			logger.Error("failed to load key", "path", *keyFile, "error", err)
			os.Exit(1)
		}
		opts = append(opts, mockasc.WithVerifyKey(*keyID, pub))
		logger.Info("verifying token signatures", "key_id", *keyID)
	}

	addr := fmt.Sprintf(":%d", *port)
	logger.Info("starting mock App Store Connect server", "addr", addr)

	if err := mockasc.New(opts...).Start(addr); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// loadPublicKey reads a PEM private key (the .p8 file) or public key.
func loadPublicKey(path string) (*ecdsa.PublicKey, error) {
	data, err := os.ReadFile(path) //nolint:gosec // key path from trusted CLI flag
	if err != nil {
		return nil, fmt.Errorf("reading key: %w", err)
	}
	if priv, err := jwt.ParseECPrivateKeyFromPEM(data); err == nil {
		return &priv.PublicKey, nil
	}
	pub, err := jwt.ParseECPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parsing key: %w", err)
	}
	return pub, nil
}

func parseFailure(v string) (mockasc.Option, error) {
	parts := strings.Split(v, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("failure %q: want METHOD:PATH_PREFIX:STATUS", v)
	}
	status, err := strconv.Atoi(parts[2])
	if err != nil || status < 400 || status > 599 {
		return nil, fmt.Errorf("failure %q: status must be 400-599", v)
	}
	return mockasc.WithFailure(strings.ToUpper(parts[0]), parts[1], status), nil
}
