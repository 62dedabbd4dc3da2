package cmd

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaydowCharole/AppStoreIapScript/internal/batch"
	"github.com/RaydowCharole/AppStoreIapScript/internal/mockasc"
	"github.com/RaydowCharole/AppStoreIapScript/pkg/logger"
	domain "github.com/RaydowCharole/AppStoreIapScript/pkg/types"
)

const (
	testKeyID  = "CLIKEY1234"
	testIssuer = "69a6de70-03db-47e3-e053-5b8c7c11a4d1"
)

// fixture is a config directory with a key and a screenshot.
type fixture struct {
	dir string
	key *ecdsa.PrivateKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "AuthKey_"+testKeyID+".p8"),
		pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}),
		0o600,
	))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "review.png"), []byte("png-bytes"), 0o600))

	return &fixture{dir: dir, key: key}
}

// writeConfig writes iap_config.json with extra raw JSON members appended.
func (f *fixture) writeConfig(t *testing.T, extra string) string {
	t.Helper()
	body := fmt.Sprintf(`{
  "key_id": %q,
  "issuer_id": %q,
  "product_id_prefix": "com.example.coins.",
  "app_id": "1234567890",
  "prices": [0.99, 4.99],
  "logging": {"level": "error"}%s
}`, testKeyID, testIssuer, extra)
	path := filepath.Join(f.dir, "iap_config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestDryRun(t *testing.T) {
	f := newFixture(t)
	cfgPath := f.writeConfig(t, "")

	out, _, err := execute(t, "--config", cfgPath, "--dry-run")
	require.NoError(t, err)

	assert.Contains(t, out, "Dry run: 2 in-app purchases would be created")
	assert.Contains(t, out, "com.example.coins.0.99")
	assert.Contains(t, out, "$4.99 package")
	assert.Contains(t, out, "en-US")
}

func TestDryRun_JSONFromEnv(t *testing.T) {
	f := newFixture(t)
	cfgPath := f.writeConfig(t, "")
	t.Setenv("APPSTORE_IAP_OUTPUT", "json")
	t.Setenv("APPSTORE_IAP_DRY_RUN", "true")

	out, _, err := execute(t, "--config", cfgPath)
	require.NoError(t, err)

	var plan []batch.PlannedItem
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	require.Len(t, plan, 2)
	assert.Equal(t, "com.example.coins.4.99", plan[1].ProductID)
	assert.Equal(t, "4.99", plan[1].Name)
}

func TestRun_ConfigError(t *testing.T) {
	_, _, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config error")
}

func TestRun_RejectsArguments(t *testing.T) {
	_, _, err := execute(t, "extra")
	require.Error(t, err)
}

func TestRun_AgainstMockServer(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(mockasc.New(
		mockasc.WithLogger(logger.Discard()),
		mockasc.WithVerifyKey(testKeyID, &f.key.PublicKey),
		mockasc.WithIssuer(testIssuer),
	))
	t.Cleanup(srv.Close)

	textfile := filepath.Join(f.dir, "appstore_iap.prom")
	cfgPath := f.writeConfig(t, fmt.Sprintf(`,
  "api": {"base_url": %q},
  "metrics": {"textfile": %q}`, srv.URL, textfile))

	out, _, err := execute(t, "--config", cfgPath)
	require.NoError(t, err)

	assert.Contains(t, out, "Creating 2 in-app purchases: $0.99, $4.99")
	assert.Contains(t, out, "2 succeeded (0 degraded), 0 failed, 2 total")
	assert.Contains(t, out, "pp-USA-4.99")
	assert.Contains(t, out, "UPLOAD_COMPLETE")
	assert.Contains(t, out, reviewReminder)

	prom, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "asc_iap_batch_items_total")
}

func TestRun_JSONOutput(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(mockasc.New(mockasc.WithLogger(logger.Discard())))
	t.Cleanup(srv.Close)
	cfgPath := f.writeConfig(t, fmt.Sprintf(`,
  "api": {"base_url": %q}`, srv.URL))

	out, stderr, err := execute(t, "--config", cfgPath, "--output", "json")
	require.NoError(t, err)

	var res domain.BatchResult
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	require.Len(t, res.Items, 2)
	assert.Equal(t, domain.StatusSuccess, res.Items[0].Status)
	assert.Equal(t, "0.99", res.Items[0].Price.String())
	assert.Contains(t, stderr, "[$0.99] creating in-app purchase")
}

func TestToken(t *testing.T) {
	f := newFixture(t)
	cfgPath := f.writeConfig(t, "")

	out, _, err := execute(t, "--config", cfgPath, "token")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "."), 3)

	out, _, err = execute(t, "--config", cfgPath, "token", "--verbose")
	require.NoError(t, err)
	assert.Contains(t, out, "Header length:")
	assert.Contains(t, out, "Payload length:")
	assert.Contains(t, out, "Signature length:  86")
}

func TestToken_MissingKey(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(filepath.Join(f.dir, "AuthKey_"+testKeyID+".p8")))
	cfgPath := f.writeConfig(t, "")

	_, _, err := execute(t, "--config", cfgPath, "token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading private key")
}

func TestTerritoriesAndPricePoints(t *testing.T) {
	f := newFixture(t)
	s := mockasc.New(mockasc.WithLogger(logger.Discard()))
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	cfgPath := f.writeConfig(t, fmt.Sprintf(`,
  "api": {"base_url": %q}`, srv.URL))

	out, stderr, err := execute(t, "--config", cfgPath, "territories")
	require.NoError(t, err)
	assert.Equal(t, strings.Join(mockasc.DefaultTerritories, "\n")+"\n", out)
	assert.Contains(t, stderr, "10 territories")

	_, _, err = execute(t, "--config", cfgPath)
	require.NoError(t, err)
	r, ok := s.InAppPurchase("com.example.coins.0.99")
	require.True(t, ok)

	out, _, err = execute(t, "--config", cfgPath, "price-points", r.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "CUSTOMER PRICE")
	assert.Regexp(t, `pp-USA-0\.99\s+USA\s+0\.99\s+0\.84\s+\$0\.99`, out)
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "appstore-iap dev\n", out)
}

func TestPrintSummary(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	res := &domain.BatchResult{
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Items: []domain.ItemResult{
			{
				Price: domain.MustPrice("0.99"), ProductID: "p.0.99", Status: domain.StatusDegraded,
				IAPID: "1", PricePointID: "pp-1", ScreenshotState: "UPLOAD_COMPLETE",
				Warnings: []string{"global availability not set: API request failed: 500"},
			},
			{
				Price: domain.MustPrice("5"), ProductID: "p.5", Status: domain.StatusFailed,
				Error: "creating in-app purchase p.5: API request failed: 409",
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, printSummary(&buf, res))
	out := buf.String()

	assert.Contains(t, out, "Finished in 1.5s: 1 succeeded (1 degraded), 1 failed, 2 total")
	assert.Contains(t, out, "global availability not set")
	assert.Contains(t, out, "creating in-app purchase p.5: API request failed: 409")
	assert.Regexp(t, `\$5\s+p\.5\s+failed\s+-\s+-\s+-`, out)
	assert.True(t, strings.HasSuffix(out, reviewReminder+"\n"))
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
