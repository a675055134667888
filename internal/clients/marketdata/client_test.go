package marketdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/niq79/trading-bot-sub001/internal/clientdata"
	"github.com/niq79/trading-bot-sub001/internal/database"
	"github.com/niq79/trading-bot-sub001/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *clientdata.Repository {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	return clientdata.NewRepository(db.Conn())
}

func barsPayload(closes ...float64) barsResponse {
	bars := make([]domain.Bar, len(closes))
	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		bars[i] = domain.Bar{Timestamp: base.AddDate(0, 0, i), Close: c}
	}
	return barsResponse{Bars: bars}
}

func TestGetBars_FetchesAndCaches(t *testing.T) {
	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		assert.Equal(t, "/v2/stocks/AAPL/bars", r.URL.Path)
		assert.Equal(t, "1Day", r.URL.Query().Get("timeframe"))
		assert.Equal(t, "30", r.URL.Query().Get("limit"))
		assert.Equal(t, "dk", r.Header.Get("APCA-API-KEY-ID"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(barsPayload(100, 101, 102))
	}))
	defer server.Close()

	client := NewClient(server.URL, "dk", "ds", time.Hour, newTestCache(t), zerolog.Nop())

	bars, err := client.GetBars(context.Background(), []string{"AAPL"}, 30)
	require.NoError(t, err)
	require.Len(t, bars["AAPL"], 3)
	assert.Equal(t, 102.0, bars["AAPL"][2].Close)

	// Second call is served from cache
	bars, err = client.GetBars(context.Background(), []string{"AAPL"}, 30)
	require.NoError(t, err)
	require.Len(t, bars["AAPL"], 3)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestGetBars_StaleFallbackOnAPIError(t *testing.T) {
	var failing atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(barsPayload(250, 251))
	}))
	defer server.Close()

	// Zero TTL: everything cached is immediately stale
	client := NewClient(server.URL, "dk", "ds", 0, newTestCache(t), zerolog.Nop())

	_, err := client.GetBars(context.Background(), []string{"MSFT"}, 10)
	require.NoError(t, err)

	failing.Store(true)
	bars, err := client.GetBars(context.Background(), []string{"MSFT"}, 10)
	require.NoError(t, err, "stale cache should cover the API outage")
	require.Len(t, bars["MSFT"], 2)
	assert.Equal(t, 251.0, bars["MSFT"][1].Close)
}

func TestGetBars_ErrorsWithoutCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "dk", "ds", time.Hour, newTestCache(t), zerolog.Nop())

	_, err := client.GetBars(context.Background(), []string{"GOOG"}, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOOG")
}

func TestGetBars_MultipleSymbols(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v2/stocks/AAPL/bars":
			json.NewEncoder(w).Encode(barsPayload(100))
		case "/v2/stocks/MSFT/bars":
			json.NewEncoder(w).Encode(barsPayload(400, 401))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "dk", "ds", time.Hour, nil, zerolog.Nop())

	bars, err := client.GetBars(context.Background(), []string{"AAPL", "MSFT"}, 5)
	require.NoError(t, err)
	assert.Len(t, bars["AAPL"], 1)
	assert.Len(t, bars["MSFT"], 2)
}
