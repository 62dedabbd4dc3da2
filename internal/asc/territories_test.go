package asc_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaydowCharole/AppStoreIapScript/internal/asc"
)

const territoriesBody = `{"data":[
	{"type":"territories","id":"USA","attributes":{"currency":"USD"}},
	{"type":"territories","id":"GBR","attributes":{"currency":"GBP"}},
	{"type":"territories","id":"JPN","attributes":{"currency":"JPY"}}
],"links":{"self":"x"},"meta":{"paging":{"total":3,"limit":200}}}`

func TestClient_AllTerritories_Cached(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v1/territories", r.URL.Path)
		assert.Equal(t, "200", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(territoriesBody))
	}))
	defer srv.Close()

	c := newTestClient(srv)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids, err := c.AllTerritories(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, []string{"USA", "GBR", "JPN"}, ids)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_AllTerritories_ErrorNotCached(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(territoriesBody))
	}))
	defer srv.Close()

	c := newTestClient(srv)

	_, err := c.AllTerritories(context.Background())
	require.Error(t, err)

	ids, err := c.AllTerritories(context.Background())
	require.NoError(t, err)
	assert.Len(t, ids, 3)
}

func TestClient_SetGlobalAvailability(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		territories     string
		availStatus     int
		wantErrIs       error
		wantStatus      int
		wantAvailCalled bool
	}{
		{
			name:            "all territories",
			territories:     territoriesBody,
			availStatus:     http.StatusCreated,
			wantAvailCalled: true,
		},
		{
			name:        "empty territory list",
			territories: `{"data":[]}`,
			wantErrIs:   asc.ErrNoTerritories,
		},
		{
			name:            "availability rejected",
			territories:     territoriesBody,
			availStatus:     http.StatusUnprocessableEntity,
			wantStatus:      http.StatusUnprocessableEntity,
			wantAvailCalled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var availCalled atomic.Bool
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/v1/territories":
					_, _ = w.Write([]byte(tt.territories))
				case "/v1/inAppPurchaseAvailabilities":
					availCalled.Store(true)
					body := decodeBody(t, r)
					assert.Equal(t, "inAppPurchaseAvailabilities", dig(body, "data", "type"))
					assert.Equal(t, true, dig(body, "data", "attributes", "availableInNewTerritories"))
					assert.Equal(t, "iap-1", dig(body, "data", "relationships", "inAppPurchase", "data", "id"))
					refs, _ := dig(body, "data", "relationships", "availableTerritories", "data").([]any)
					assert.Len(t, refs, 3)
					assert.Equal(t, "territories", dig(refs, 1, "type"))
					assert.Equal(t, "GBR", dig(refs, 1, "id"))
					w.WriteHeader(tt.availStatus)
				default:
					t.Errorf("unexpected path %s", r.URL.Path)
				}
			}))
			defer srv.Close()

			err := newTestClient(srv).SetGlobalAvailability(context.Background(), "iap-1")

			assert.Equal(t, tt.wantAvailCalled, availCalled.Load())
			switch {
			case tt.wantErrIs != nil:
				require.ErrorIs(t, err, tt.wantErrIs)
			case tt.wantStatus != 0:
				require.Error(t, err)
				assert.Equal(t, tt.wantStatus, asc.StatusCode(err))
			default:
				require.NoError(t, err)
			}
		})
	}
}
