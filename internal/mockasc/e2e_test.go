package mockasc_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaydowCharole/AppStoreIapScript/internal/asc"
	"github.com/RaydowCharole/AppStoreIapScript/internal/batch"
	"github.com/RaydowCharole/AppStoreIapScript/internal/mockasc"
	domain "github.com/RaydowCharole/AppStoreIapScript/pkg/types"
)

// runBatch drives the real client, uploader and orchestrator against a fake
// App Store Connect.
func runBatch(
	t *testing.T,
	s *mockasc.Server,
	key *asc.Credentials,
	prices []string,
	opts ...asc.Option,
) (*domain.BatchResult, string) {
	t.Helper()

	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)

	screenshot := filepath.Join(t.TempDir(), "review.png")
	require.NoError(t, os.WriteFile(screenshot, bytes.Repeat([]byte{0x89, 'P', 'N', 'G'}, 300), 0o600))

	base := []asc.Option{
		asc.WithBaseURL(srv.URL),
		asc.WithHTTPClient(srv.Client()),
		asc.WithLogger(quietLogger()),
	}
	client := asc.NewClient(asc.NewSigner(key), append(base, opts...)...)
	uploader := asc.NewUploader(client, asc.WithUploadHTTPClient(srv.Client()))

	var progress bytes.Buffer
	o := batch.New(client, uploader,
		batch.WithLogger(quietLogger()),
		batch.WithProgress(&progress),
		batch.WithProductIDPrefix("com.example.coins."),
		batch.WithScreenshotPath(screenshot),
	)

	ps := make([]domain.Price, 0, len(prices))
	for _, p := range prices {
		ps = append(ps, domain.MustPrice(p))
	}
	return o.Run(context.Background(), "1234567890", ps), progress.String()
}

func credentials(t *testing.T) *asc.Credentials {
	t.Helper()
	return &asc.Credentials{KeyID: testKeyID, IssuerID: testIssuer, PrivateKey: generateKey(t)}
}

func TestEndToEnd_CreatesEveryItem(t *testing.T) {
	t.Parallel()

	creds := credentials(t)
	s := mockasc.New(
		mockasc.WithLogger(quietLogger()),
		mockasc.WithVerifyKey(creds.KeyID, &creds.PrivateKey.PublicKey),
		mockasc.WithIssuer(creds.IssuerID),
		mockasc.WithChunkSize(512),
	)

	res, progress := runBatch(t, s, creds, []string{"0.99", "4.99"})

	require.Len(t, res.Items, 2)
	for _, item := range res.Items {
		assert.Equal(t, domain.StatusSuccess, item.Status, item.Error)
		assert.Equal(t, "UPLOAD_COMPLETE", item.ScreenshotState)
		assert.Empty(t, item.Warnings)
	}
	assert.Contains(t, progress, "Creating 2 in-app purchases: $0.99, $4.99")

	r, ok := s.InAppPurchase("com.example.coins.4.99")
	require.True(t, ok)
	assert.Equal(t, "4.99", r.Name)
	assert.Equal(t, "CONSUMABLE", r.Type)
	assert.Equal(t, "pp-USA-4.99", r.PricePointID)
	assert.Nil(t, r.PriceStartDate)
	assert.Equal(t, mockasc.DefaultTerritories, r.Territories)
	require.Len(t, r.Localizations, 1)
	assert.Equal(t, "en-US", r.Localizations[0].Locale)
	assert.Equal(t, "$4.99 package", r.Localizations[0].Name)
	assert.Equal(t, "$4.99 package", r.Localizations[0].Description)

	shot, ok := s.Screenshot(r.ScreenshotID)
	require.True(t, ok)
	assert.Equal(t, int64(1200), shot.FileSize)
	assert.Equal(t, 3, shot.Parts)
	assert.Equal(t, "review.png", shot.FileName)
}

func TestEndToEnd_PartialFailure(t *testing.T) {
	t.Parallel()

	creds := credentials(t)
	s := mockasc.New(
		mockasc.WithLogger(quietLogger()),
		mockasc.WithVerifyKey(creds.KeyID, &creds.PrivateKey.PublicKey),
		mockasc.WithFailure(http.MethodPost, "/v1/inAppPurchaseAvailabilities", http.StatusInternalServerError),
	)

	// "5" has no exact price point; "0.99" exists twice, so the second is a
	// duplicate product id.
	res, _ := runBatch(t, s, creds, []string{"0.99", "5", "0.99"})
	require.Len(t, res.Items, 3)

	first := res.Items[0]
	assert.Equal(t, domain.StatusDegraded, first.Status)
	assert.Equal(t, "pp-USA-0.99", first.PricePointID)
	require.Len(t, first.Warnings, 1)
	assert.Contains(t, first.Warnings[0], "global availability not set")

	second := res.Items[1]
	assert.Equal(t, domain.StatusDegraded, second.Status)
	assert.Empty(t, second.PricePointID)
	assert.Contains(t, second.Warnings, "no price point matches 5; price not set")

	third := res.Items[2]
	assert.Equal(t, domain.StatusFailed, third.Status)
	assert.Contains(t, third.Error, "409")

	summary := res.Summary()
	assert.Equal(t, 2, summary.Success)
	assert.Equal(t, 2, summary.Degraded)
	assert.Equal(t, 1, summary.Failed)
	assert.Len(t, s.InAppPurchases(), 2)
}

func TestEndToEnd_NumericPriceMatch(t *testing.T) {
	t.Parallel()

	creds := credentials(t)
	s := mockasc.New(
		mockasc.WithLogger(quietLogger()),
		mockasc.WithPricePoints("0.99", "5.00"),
	)

	res, _ := runBatch(t, s, creds, []string{"5"}, asc.WithPriceMatch(asc.MatchNumeric))
	require.Len(t, res.Items, 1)
	assert.Equal(t, domain.StatusSuccess, res.Items[0].Status, res.Items[0].Error)
	assert.Equal(t, "pp-USA-5.00", res.Items[0].PricePointID)

	r, ok := s.InAppPurchase("com.example.coins.5")
	require.True(t, ok)
	assert.Equal(t, "pp-USA-5.00", r.PricePointID)
}
