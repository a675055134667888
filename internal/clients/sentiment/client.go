// Package sentiment fetches market sentiment readings used by signal rules.
package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/niq79/trading-bot-sub001/internal/clientdata"
	"github.com/niq79/trading-bot-sub001/internal/domain"
	"github.com/rs/zerolog"
)

// SignalFearGreed is the fear & greed index, 0 (extreme fear) to 100
// (extreme greed). The only signal this provider knows how to fetch.
const SignalFearGreed = "fear_greed"

// Client for the fear & greed index API
type Client struct {
	baseURL   string
	ttl       time.Duration
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
}

// NewClient creates a sentiment client.
// cacheRepo is optional - if nil, caching is disabled.
func NewClient(baseURL string, ttl time.Duration, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	return &Client{
		baseURL:   baseURL,
		ttl:       ttl,
		client:    &http.Client{Timeout: 10 * time.Second},
		log:       log.With().Str("client", "sentiment").Logger(),
		cacheRepo: cacheRepo,
	}
}

// fngResponse mirrors the index API payload. Values arrive as strings.
type fngResponse struct {
	Data []struct {
		Value     string `json:"value"`
		Timestamp string `json:"timestamp"`
	} `json:"data"`
}

// GetReading returns the latest reading of a signal.
// If the API fails, returns a stale cached reading if available
// (stale data > no data); the evaluator decides what is too old.
func (c *Client) GetReading(ctx context.Context, signal string) (*domain.SignalReading, error) {
	if signal != SignalFearGreed {
		return nil, fmt.Errorf("unknown signal %q", signal)
	}

	// Check persistent cache for fresh data
	if c.cacheRepo != nil {
		var cached domain.SignalReading
		found, err := c.cacheRepo.GetIfFresh("signal_readings", signal, &cached)
		if err == nil && found {
			c.log.Debug().Str("signal", signal).Float64("value", cached.Value).Msg("Cache hit")
			return &cached, nil
		}
	}

	reading, err := c.fetch(ctx, signal)
	if err != nil {
		if stale, ok := c.getStaleFromCache(signal); ok {
			c.log.Warn().
				Err(err).
				Str("signal", signal).
				Float64("value", stale.Value).
				Time("as_of", stale.AsOf).
				Msg("API failed, using stale cached reading")
			return stale, nil
		}
		return nil, err
	}

	// Cache persistently
	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store("signal_readings", signal, reading, c.ttl); err != nil {
			c.log.Warn().Err(err).Str("signal", signal).Msg("Failed to cache reading")
		}
	}

	return reading, nil
}

func (c *Client) fetch(ctx context.Context, signal string) (*domain.SignalReading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var result fngResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("empty response, no readings")
	}

	value, err := strconv.ParseFloat(result.Data[0].Value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid value %q: %w", result.Data[0].Value, err)
	}

	asOf := time.Now().UTC()
	if ts, err := strconv.ParseInt(result.Data[0].Timestamp, 10, 64); err == nil {
		asOf = time.Unix(ts, 0).UTC()
	}

	reading := &domain.SignalReading{
		Signal: signal,
		Value:  value,
		AsOf:   asOf,
	}

	c.log.Info().Str("signal", signal).Float64("value", value).Time("as_of", asOf).Msg("Fetched reading")
	return reading, nil
}

// getStaleFromCache retrieves a cached reading even if expired
func (c *Client) getStaleFromCache(signal string) (*domain.SignalReading, bool) {
	if c.cacheRepo == nil {
		return nil, false
	}

	var cached domain.SignalReading
	found, err := c.cacheRepo.Get("signal_readings", signal, &cached)
	if err != nil || !found {
		return nil, false
	}
	return &cached, true
}
