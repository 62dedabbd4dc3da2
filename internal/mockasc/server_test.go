package mockasc_test

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/md5" //nolint:gosec // matches the server's checksum
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaydowCharole/AppStoreIapScript/internal/asc"
	"github.com/RaydowCharole/AppStoreIapScript/internal/metrics"
	"github.com/RaydowCharole/AppStoreIapScript/internal/mockasc"
)

const (
	testKeyID  = "MOCKKEY123"
	testIssuer = "57246542-96fe-1a63-e053-0824d011072a"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func generateKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func signToken(t *testing.T, kid string, key *ecdsa.PrivateKey, now time.Time) string {
	t.Helper()
	tok, err := asc.Sign(kid, testIssuer, key, now)
	require.NoError(t, err)
	return tok.Value
}

// newServer returns a server that verifies tokens against a fresh key, plus
// a valid token for it.
func newServer(t *testing.T, opts ...mockasc.Option) (*mockasc.Server, string) {
	t.Helper()
	key := generateKey(t)
	base := []mockasc.Option{
		mockasc.WithLogger(quietLogger()),
		mockasc.WithVerifyKey(testKeyID, &key.PublicKey),
		mockasc.WithIssuer(testIssuer),
	}
	return mockasc.New(append(base, opts...)...), signToken(t, testKeyID, key, time.Now())
}

func call(t *testing.T, h http.Handler, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	errs, ok := decode(t, rec)["errors"].([]any)
	require.True(t, ok, "body has no errors array: %s", rec.Body.String())
	require.NotEmpty(t, errs)
	return errs[0].(map[string]any)["code"].(string)
}

func createIAPBody(appID, name, productID string) map[string]any {
	return map[string]any{"data": map[string]any{
		"type": "inAppPurchases",
		"attributes": map[string]any{
			"name":              name,
			"productId":         productID,
			"inAppPurchaseType": "CONSUMABLE",
		},
		"relationships": map[string]any{
			"app": map[string]any{"data": map[string]any{"type": "apps", "id": appID}},
		},
	}}
}

func createIAP(t *testing.T, s *mockasc.Server, token, productID string) string {
	t.Helper()
	rec := call(t, s, http.MethodPost, "/v2/inAppPurchases", token, createIAPBody("1234567890", "0.99", productID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(t, rec)["data"].(map[string]any)["id"].(string)
}

func TestAuth(t *testing.T) {
	t.Parallel()

	key := generateKey(t)
	other := generateKey(t)
	now := time.Now()

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{name: "valid token", token: signToken(t, testKeyID, key, now), status: http.StatusOK},
		{name: "missing token", token: "", status: http.StatusUnauthorized},
		{name: "garbage", token: "not-a-jwt", status: http.StatusUnauthorized},
		{name: "unknown kid", token: signToken(t, "OTHERKEY", key, now), status: http.StatusUnauthorized},
		{name: "wrong key", token: signToken(t, testKeyID, other, now), status: http.StatusUnauthorized},
		{name: "expired", token: signToken(t, testKeyID, key, now.Add(-time.Hour)), status: http.StatusUnauthorized},
	}

	s := mockasc.New(
		mockasc.WithLogger(quietLogger()),
		mockasc.WithVerifyKey(testKeyID, &key.PublicKey),
		mockasc.WithIssuer(testIssuer),
	)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := call(t, s, http.MethodGet, "/v1/territories", tt.token, nil)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status == http.StatusUnauthorized {
				assert.Equal(t, "NOT_AUTHORIZED", errorCode(t, rec))
			}
		})
	}
}

func TestAuth_UnverifiedStillChecksClaims(t *testing.T) {
	t.Parallel()

	s := mockasc.New(mockasc.WithLogger(quietLogger()))
	key := generateKey(t)

	rec := call(t, s, http.MethodGet, "/v1/territories", signToken(t, testKeyID, key, time.Now()), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, s, http.MethodGet, "/v1/territories", signToken(t, testKeyID, key, time.Now().Add(-time.Hour)), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestQuota(t *testing.T) {
	t.Parallel()

	s, token := newServer(t, mockasc.WithHourlyLimit(2))

	rec := call(t, s, http.MethodGet, "/v1/territories", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-hour-lim:2;user-hour-rem:1;", rec.Header().Get(asc.RateLimitHeader))

	rec = call(t, s, http.MethodGet, "/v1/territories", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, s, http.MethodGet, "/v1/territories", token, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errorCode(t, rec))
	assert.Equal(t, "user-hour-lim:2;user-hour-rem:0;", rec.Header().Get(asc.RateLimitHeader))

	qs, ok := asc.ParseRateLimitHeader(rec.Header().Get(asc.RateLimitHeader))
	require.True(t, ok)
	assert.Equal(t, int64(0), qs.Remaining)
	assert.Equal(t, 3, s.Requests())
}

func TestCreateIAP(t *testing.T) {
	t.Parallel()

	s, token := newServer(t)
	id := createIAP(t, s, token, "com.example.coins.0.99")
	assert.Equal(t, "6450000001", id)

	rec := call(t, s, http.MethodPost, "/v2/inAppPurchases", token,
		createIAPBody("1234567890", "0.99", "com.example.coins.0.99"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ENTITY_ERROR.ATTRIBUTE.INVALID.DUPLICATE", errorCode(t, rec))

	rec = call(t, s, http.MethodGet, "/v2/inAppPurchases/"+id, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	attrs := decode(t, rec)["data"].(map[string]any)["attributes"].(map[string]any)
	assert.Equal(t, "com.example.coins.0.99", attrs["productId"])
	assert.Equal(t, "CONSUMABLE", attrs["inAppPurchaseType"])

	rec = call(t, s, http.MethodGet, "/v2/inAppPurchases/999", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	r, ok := s.InAppPurchase("com.example.coins.0.99")
	require.True(t, ok)
	assert.Equal(t, "1234567890", r.AppID)
}

func TestCreateIAP_RejectsUnknownFields(t *testing.T) {
	t.Parallel()

	s, token := newServer(t)
	body := createIAPBody("1", "0.99", "p")
	body["data"].(map[string]any)["attributes"].(map[string]any)["familySharable"] = true

	rec := call(t, s, http.MethodPost, "/v2/inAppPurchases", token, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, s.InAppPurchases())
}

func TestWithFailure(t *testing.T) {
	t.Parallel()

	s, token := newServer(t, mockasc.WithFailure(http.MethodPost, "/v1/inAppPurchaseAvailabilities", http.StatusInternalServerError))

	rec := call(t, s, http.MethodPost, "/v1/inAppPurchaseAvailabilities", token, map[string]any{})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INJECTED_FAILURE", errorCode(t, rec))

	rec = call(t, s, http.MethodGet, "/v1/territories", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPricePoints(t *testing.T) {
	t.Parallel()

	s, token := newServer(t, mockasc.WithPricePoints("0.99", "4.99"))
	id := createIAP(t, s, token, "p")

	rec := call(t, s, http.MethodGet,
		"/v2/inAppPurchases/"+id+"/pricePoints?include=territory&filter%5Bterritory%5D=CAN&limit=8000", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	doc := decode(t, rec)
	data := doc["data"].([]any)
	require.Len(t, data, 2)

	first := data[0].(map[string]any)
	assert.Equal(t, "pp-CAN-0.99", first["id"])
	assert.Equal(t, "0.99", first["attributes"].(map[string]any)["customerPrice"])
	assert.Equal(t, "0.84", first["attributes"].(map[string]any)["proceeds"])
	territory := first["relationships"].(map[string]any)["territory"].(map[string]any)["data"].(map[string]any)
	assert.Equal(t, "CAN", territory["id"])

	included := doc["included"].([]any)
	require.Len(t, included, 1)
	assert.Equal(t, "CAD", included[0].(map[string]any)["attributes"].(map[string]any)["currency"])
}

func TestTerritories_Limit(t *testing.T) {
	t.Parallel()

	s, token := newServer(t)

	rec := call(t, s, http.MethodGet, "/v1/territories?limit=3", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode(t, rec)
	assert.Len(t, doc["data"], 3)
	assert.Contains(t, doc["links"].(map[string]any)["next"], "cursor=3")

	rec = call(t, s, http.MethodGet, "/v1/territories?limit=200", token, nil)
	doc = decode(t, rec)
	assert.Len(t, doc["data"], len(mockasc.DefaultTerritories))
	assert.NotContains(t, doc["links"].(map[string]any), "next")
}

func TestPriceSchedule(t *testing.T) {
	t.Parallel()

	schedule := func(iapID, placeholder, pointID string) map[string]any {
		return map[string]any{
			"data": map[string]any{
				"type":       "inAppPurchasePriceSchedules",
				"attributes": map[string]any{},
				"relationships": map[string]any{
					"inAppPurchase": map[string]any{"data": map[string]any{"type": "inAppPurchases", "id": iapID}},
					"manualPrices": map[string]any{"data": []any{
						map[string]any{"type": "inAppPurchasePrices", "id": "${newprice-0}"},
					}},
					"baseTerritory": map[string]any{"data": map[string]any{"type": "territories", "id": "USA"}},
				},
			},
			"included": []any{map[string]any{
				"type":       "inAppPurchasePrices",
				"id":         placeholder,
				"attributes": map[string]any{"startDate": nil},
				"relationships": map[string]any{
					"inAppPurchasePricePoint": map[string]any{
						"data": map[string]any{"type": "inAppPurchasePricePoints", "id": pointID},
					},
				},
			}},
		}
	}

	tests := []struct {
		name   string
		body   func(iapID string) map[string]any
		status int
	}{
		{
			name:   "valid",
			body:   func(id string) map[string]any { return schedule(id, "${newprice-0}", "pp-USA-0.99") },
			status: http.StatusCreated,
		},
		{
			name:   "placeholder mismatch",
			body:   func(id string) map[string]any { return schedule(id, "price-1", "pp-USA-0.99") },
			status: http.StatusConflict,
		},
		{
			name:   "unknown price point",
			body:   func(id string) map[string]any { return schedule(id, "${newprice-0}", "pp-USA-0.98") },
			status: http.StatusConflict,
		},
		{
			name:   "unknown in-app purchase",
			body:   func(string) map[string]any { return schedule("42", "${newprice-0}", "pp-USA-0.99") },
			status: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, token := newServer(t)
			id := createIAP(t, s, token, "p")

			rec := call(t, s, http.MethodPost, "/v1/inAppPurchasePriceSchedules", token, tt.body(id))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())

			r, ok := s.InAppPurchase("p")
			require.True(t, ok)
			if tt.status == http.StatusCreated {
				assert.Equal(t, "pp-USA-0.99", r.PricePointID)
				assert.Nil(t, r.PriceStartDate)
			} else {
				assert.Empty(t, r.PricePointID)
			}
		})
	}
}

func TestScreenshotUpload(t *testing.T) {
	t.Parallel()

	content := []byte("fake-png-bytes")
	sum := md5.Sum(content) //nolint:gosec // matches the server's checksum
	goodChecksum := hex.EncodeToString(sum[:])

	tests := []struct {
		name     string
		checksum string
		skip     int
		want     string
	}{
		{name: "complete", checksum: goodChecksum, skip: -1, want: "UPLOAD_COMPLETE"},
		{name: "bad checksum", checksum: "00000000000000000000000000000000", skip: -1, want: "FAILED"},
		{name: "missing chunk", checksum: goodChecksum, skip: 1, want: "AWAITING_UPLOAD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, token := newServer(t, mockasc.WithChunkSize(5))
			iapID := createIAP(t, s, token, "p")

			rec := call(t, s, http.MethodPost, "/v1/inAppPurchaseAppStoreReviewScreenshots", token, map[string]any{
				"data": map[string]any{
					"type":       "inAppPurchaseAppStoreReviewScreenshots",
					"attributes": map[string]any{"fileName": "review.png", "fileSize": len(content)},
					"relationships": map[string]any{
						"inAppPurchaseV2": map[string]any{"data": map[string]any{"type": "inAppPurchases", "id": iapID}},
					},
				},
			})
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

			var reservation struct {
				Data struct {
					ID         string `json:"id"`
					Attributes struct {
						UploadOperations []asc.UploadOperation `json:"uploadOperations"`
					} `json:"attributes"`
				} `json:"data"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reservation))
			ops := reservation.Data.Attributes.UploadOperations
			require.Len(t, ops, 3)
			assert.Equal(t, int64(4), *ops[2].Length)
			assert.Equal(t, int64(10), ops[2].Offset)

			for i, op := range ops {
				if i == tt.skip {
					continue
				}
				u, err := url.Parse(op.URL)
				require.NoError(t, err)
				chunk := content[op.Offset : op.Offset+*op.Length]
				req := httptest.NewRequest(op.Method, u.RequestURI(), bytes.NewReader(chunk))
				up := httptest.NewRecorder()
				s.ServeHTTP(up, req)
				require.Equal(t, http.StatusOK, up.Code, up.Body.String())
			}

			shotID := reservation.Data.ID
			rec = call(t, s, http.MethodPatch, "/v1/inAppPurchaseAppStoreReviewScreenshots/"+shotID, token, map[string]any{
				"data": map[string]any{
					"type":       "inAppPurchaseAppStoreReviewScreenshots",
					"id":         shotID,
					"attributes": map[string]any{"uploaded": true, "sourceFileChecksum": tt.checksum},
				},
			})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var committed asc.Document[asc.ReviewScreenshotAttributes]
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &committed))
			require.NotNil(t, committed.Data.Attributes.AssetDeliveryState)
			assert.Equal(t, tt.want, committed.Data.Attributes.AssetDeliveryState.State)

			shot, ok := s.Screenshot(shotID)
			require.True(t, ok)
			assert.Equal(t, tt.want, shot.State)

			r, _ := s.InAppPurchase("p")
			if tt.want == "UPLOAD_COMPLETE" {
				assert.Equal(t, shotID, r.ScreenshotID)
			} else {
				assert.Empty(t, r.ScreenshotID)
			}
		})
	}
}

func TestUploadChunk_WrongLength(t *testing.T) {
	t.Parallel()

	s, token := newServer(t, mockasc.WithChunkSize(4))
	iapID := createIAP(t, s, token, "p")

	rec := call(t, s, http.MethodPost, "/v1/inAppPurchaseAppStoreReviewScreenshots", token, map[string]any{
		"data": map[string]any{
			"type":       "inAppPurchaseAppStoreReviewScreenshots",
			"attributes": map[string]any{"fileName": "review.png", "fileSize": 8},
			"relationships": map[string]any{
				"inAppPurchaseV2": map[string]any{"data": map[string]any{"type": "inAppPurchases", "id": iapID}},
			},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	shotID := decode(t, rec)["data"].(map[string]any)["id"].(string)

	up := httptest.NewRecorder()
	s.ServeHTTP(up, httptest.NewRequest(http.MethodPut, "/upload/"+shotID+"/0", bytes.NewReader([]byte("xy"))))
	assert.Equal(t, http.StatusBadRequest, up.Code)

	up = httptest.NewRecorder()
	s.ServeHTTP(up, httptest.NewRequest(http.MethodPut, "/upload/"+shotID+"/7", bytes.NewReader([]byte("abcd"))))
	assert.Equal(t, http.StatusNotFound, up.Code)
}

func TestUnknownRoute(t *testing.T) {
	t.Parallel()

	s, token := newServer(t)
	rec := call(t, s, http.MethodGet, "/v1/apps", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_HANDLED", errorCode(t, rec))
}

func TestOperationalEndpoints(t *testing.T) {
	t.Parallel()

	s, token := newServer(t)

	counter := metrics.MockRequestsTotal.WithLabelValues(http.MethodGet, "/v1/territories", "200")
	before := testutil.ToFloat64(counter)

	rec := call(t, s, http.MethodGet, "/v1/territories", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.GreaterOrEqual(t, testutil.ToFloat64(counter)-before, 1.0)

	rec = call(t, s, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = call(t, s, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "asc_iap_mock_requests_total")
}
