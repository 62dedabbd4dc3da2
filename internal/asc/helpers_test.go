package asc_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaydowCharole/AppStoreIapScript/internal/asc"
)

// quietLogger returns a logger that discards output for tests.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func generateKey(t *testing.T, curve elliptic.Curve) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(curve, rand.Reader)
	require.NoError(t, err)
	return key
}

// writePKCS8Key writes key as a .p8 file the way App Store Connect delivers it.
func writePKCS8Key(t *testing.T, key *ecdsa.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "AuthKey_TESTKEY123.p8")
	data := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func testCredentials(t *testing.T) *asc.Credentials {
	t.Helper()
	return &asc.Credentials{
		KeyID:      "TESTKEY123",
		IssuerID:   "69a6de70-03db-47e3-e053-5b8c7c11a4d1",
		PrivateKey: generateKey(t, elliptic.P256()),
	}
}

// staticTokens is a TokenProvider returning a fixed token.
type staticTokens string

func (s staticTokens) Token(_ context.Context) (string, error) {
	return string(s), nil
}

type failingTokens struct{ err error }

func (f failingTokens) Token(_ context.Context) (string, error) {
	return "", f.err
}

// newTestClient points a client at srv with a fixed token.
func newTestClient(srv *httptest.Server, opts ...asc.Option) *asc.Client {
	base := []asc.Option{
		asc.WithBaseURL(srv.URL),
		asc.WithHTTPClient(srv.Client()),
		asc.WithLogger(quietLogger()),
	}
	return asc.NewClient(staticTokens("test-token"), append(base, opts...)...)
}

// decodeBody decodes a JSON request body into a generic map.
func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var m map[string]any
	assert.NoError(t, json.NewDecoder(r.Body).Decode(&m))
	return m
}

// dig walks nested maps and slices by key or index.
func dig(v any, keys ...any) any {
	for _, k := range keys {
		switch key := k.(type) {
		case string:
			m, ok := v.(map[string]any)
			if !ok {
				return nil
			}
			v = m[key]
		case int:
			s, ok := v.([]any)
			if !ok || key >= len(s) {
				return nil
			}
			v = s[key]
		}
	}
	return v
}
