// Package marketdata fetches and caches daily bars for ranking.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/niq79/trading-bot-sub001/internal/clientdata"
	"github.com/niq79/trading-bot-sub001/internal/domain"
	"github.com/rs/zerolog"
)

// Client for the bars data API. Shared across tenants: bars are the
// same regardless of whose account is asking.
type Client struct {
	baseURL   string
	keyID     string
	secret    string
	barsTTL   time.Duration
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
}

// NewClient creates a bars client.
// cacheRepo is optional - if nil, caching is disabled.
func NewClient(baseURL, keyID, secret string, barsTTL time.Duration, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	return &Client{
		baseURL:   baseURL,
		keyID:     keyID,
		secret:    secret,
		barsTTL:   barsTTL,
		client:    &http.Client{Timeout: 15 * time.Second},
		log:       log.With().Str("client", "marketdata").Logger(),
		cacheRepo: cacheRepo,
	}
}

// barsResponse mirrors the API's per-symbol bars payload
type barsResponse struct {
	Bars []domain.Bar `json:"bars"`
}

// GetBars returns up to limit daily bars per symbol, oldest first.
// Fresh cache is served without a network call. When the API fails,
// stale cached bars are returned with a warning (stale data > no data);
// a symbol with neither fails the whole call.
func (c *Client) GetBars(ctx context.Context, symbols []string, limit int) (map[string][]domain.Bar, error) {
	result := make(map[string][]domain.Bar, len(symbols))

	for _, symbol := range symbols {
		bars, err := c.getSymbolBars(ctx, symbol, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to get bars for %s: %w", symbol, err)
		}
		result[symbol] = bars
	}

	return result, nil
}

func (c *Client) getSymbolBars(ctx context.Context, symbol string, limit int) ([]domain.Bar, error) {
	cacheKey := fmt.Sprintf("%s:%d", symbol, limit)

	// Check persistent cache for fresh data
	if c.cacheRepo != nil {
		var cached []domain.Bar
		found, err := c.cacheRepo.GetIfFresh("bars", cacheKey, &cached)
		if err == nil && found {
			c.log.Debug().Str("symbol", symbol).Int("bars", len(cached)).Msg("Cache hit")
			return cached, nil
		}
	}

	bars, err := c.fetch(ctx, symbol, limit)
	if err != nil {
		// API failed - stale cached bars beat no bars
		if stale, ok := c.getStaleFromCache(cacheKey); ok {
			c.log.Warn().
				Err(err).
				Str("symbol", symbol).
				Int("bars", len(stale)).
				Msg("API failed, using stale cached bars")
			return stale, nil
		}
		return nil, err
	}

	// Cache persistently
	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store("bars", cacheKey, bars, c.barsTTL); err != nil {
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache bars")
		}
	}

	return bars, nil
}

func (c *Client) fetch(ctx context.Context, symbol string, limit int) ([]domain.Bar, error) {
	query := url.Values{}
	query.Set("timeframe", "1Day")
	query.Set("limit", strconv.Itoa(limit))
	requestURL := fmt.Sprintf("%s/v2/stocks/%s/bars?%s", c.baseURL, url.PathEscape(symbol), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", c.keyID)
	req.Header.Set("APCA-API-SECRET-KEY", c.secret)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var result barsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	c.log.Debug().Str("symbol", symbol).Int("bars", len(result.Bars)).Msg("Fetched bars")
	return result.Bars, nil
}

// getStaleFromCache retrieves cached bars even if expired
func (c *Client) getStaleFromCache(cacheKey string) ([]domain.Bar, bool) {
	if c.cacheRepo == nil {
		return nil, false
	}

	var cached []domain.Bar
	found, err := c.cacheRepo.Get("bars", cacheKey, &cached)
	if err != nil || !found {
		return nil, false
	}
	return cached, true
}
