// Package broker provides the Alpaca-compatible trading API client.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/niq79/trading-bot-sub001/internal/domain"
	"github.com/rs/zerolog"
)

// Client for the broker's v2 REST API. One client per tenant; the
// base URL depends on whether the tenant trades against paper or live.
type Client struct {
	baseURL string
	keyID   string
	secret  string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a broker client bound to one set of credentials
func NewClient(baseURL, keyID, secret string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		keyID:   keyID,
		secret:  secret,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log.With().Str("client", "broker").Logger(),
	}
}

// NewFactory returns a BrokerFactory that picks the paper or live
// endpoint from the tenant's paper flag.
func NewFactory(liveURL, paperURL string, log zerolog.Logger) domain.BrokerFactory {
	return func(tenant domain.Tenant) domain.BrokerClient {
		baseURL := liveURL
		if tenant.Paper {
			baseURL = paperURL
		}
		return NewClient(baseURL, tenant.BrokerKeyID, tenant.BrokerSecret, log)
	}
}

// accountResponse mirrors the API's decimal-string account payload
type accountResponse struct {
	Equity      string `json:"equity"`
	BuyingPower string `json:"buying_power"`
	Currency    string `json:"currency"`
}

// GetAccount returns current equity and buying power
func (c *Client) GetAccount(ctx context.Context) (*domain.Account, error) {
	var resp accountResponse
	if err := c.get(ctx, "/v2/account", &resp); err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	equity, err := parseDecimal(resp.Equity)
	if err != nil {
		return nil, fmt.Errorf("invalid equity %q: %w", resp.Equity, err)
	}
	buyingPower, err := parseDecimal(resp.BuyingPower)
	if err != nil {
		return nil, fmt.Errorf("invalid buying power %q: %w", resp.BuyingPower, err)
	}

	return &domain.Account{
		Equity:      equity,
		BuyingPower: buyingPower,
		Currency:    resp.Currency,
	}, nil
}

// positionResponse mirrors the API's decimal-string position payload
type positionResponse struct {
	Symbol      string `json:"symbol"`
	Qty         string `json:"qty"`
	MarketValue string `json:"market_value"`
}

// GetPositions returns all open positions. The API reports short
// positions with negative qty and market_value, which is exactly the
// signed convention the rebalancer works in.
func (c *Client) GetPositions(ctx context.Context) ([]domain.CurrentPosition, error) {
	var resp []positionResponse
	if err := c.get(ctx, "/v2/positions", &resp); err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}

	positions := make([]domain.CurrentPosition, 0, len(resp))
	for _, p := range resp {
		qty, err := parseDecimal(p.Qty)
		if err != nil {
			return nil, fmt.Errorf("invalid qty %q for %s: %w", p.Qty, p.Symbol, err)
		}
		value, err := parseDecimal(p.MarketValue)
		if err != nil {
			return nil, fmt.Errorf("invalid market value %q for %s: %w", p.MarketValue, p.Symbol, err)
		}
		positions = append(positions, domain.CurrentPosition{
			Symbol:      p.Symbol,
			Qty:         qty,
			MarketValue: value,
		})
	}
	return positions, nil
}

// orderRequest is the notional market order payload
type orderRequest struct {
	Symbol      string `json:"symbol"`
	Notional    string `json:"notional"`
	Side        string `json:"side"`
	Type        string `json:"type"`
	TimeInForce string `json:"time_in_force"`
}

type orderResponse struct {
	ID string `json:"id"`
}

// SubmitOrder submits a notional market day order and returns the
// broker's order ID
func (c *Client) SubmitOrder(ctx context.Context, order domain.Order) (string, error) {
	if order.Notional <= 0 {
		return "", fmt.Errorf("order notional must be positive, got %.2f", order.Notional)
	}

	reqBody := orderRequest{
		Symbol:      order.Symbol,
		Notional:    strconv.FormatFloat(order.Notional, 'f', 2, 64),
		Side:        string(order.Side),
		Type:        "market",
		TimeInForce: "day",
	}

	var resp orderResponse
	if err := c.post(ctx, "/v2/orders", reqBody, &resp); err != nil {
		return "", fmt.Errorf("failed to submit %s order for %s: %w", order.Side, order.Symbol, err)
	}

	c.log.Info().
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Float64("notional", order.Notional).
		Str("order_id", resp.ID).
		Msg("Order submitted")

	return resp.ID, nil
}

type clockResponse struct {
	Timestamp time.Time `json:"timestamp"`
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}

// GetClock reports the market calendar state
func (c *Client) GetClock(ctx context.Context) (*domain.MarketClock, error) {
	var resp clockResponse
	if err := c.get(ctx, "/v2/clock", &resp); err != nil {
		return nil, fmt.Errorf("failed to get market clock: %w", err)
	}
	return &domain.MarketClock{
		Timestamp: resp.Timestamp,
		IsOpen:    resp.IsOpen,
		NextOpen:  resp.NextOpen,
		NextClose: resp.NextClose,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return c.do(req, dest)
}

func (c *Client) post(ctx context.Context, path string, body, dest interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest interface{}) error {
	req.Header.Set("APCA-API-KEY-ID", c.keyID)
	req.Header.Set("APCA-API-SECRET-KEY", c.secret)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// parseDecimal parses the API's decimal-string fields. Empty strings
// read as zero (the API omits some fields for fresh accounts).
func parseDecimal(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
