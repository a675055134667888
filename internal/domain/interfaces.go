package domain

import (
	"context"
	"time"
)

// BrokerClient defines broker-agnostic account and trading operations.
// This interface abstracts away broker-specific implementations and breaks
// the dependency between the orchestrator and the clients package.
// A client is bound to one tenant's credentials; the orchestrator obtains
// one per tenant through a BrokerFactory.
type BrokerClient interface {
	// GetAccount returns current equity and buying power
	GetAccount(ctx context.Context) (*Account, error)

	// GetPositions returns all open positions with signed quantities
	GetPositions(ctx context.Context) ([]CurrentPosition, error)

	// SubmitOrder submits a notional market order and returns the broker's order ID
	SubmitOrder(ctx context.Context, order Order) (string, error)

	// GetClock reports whether the market is currently open
	GetClock(ctx context.Context) (*MarketClock, error)
}

// BrokerFactory builds a broker client bound to one tenant's credentials
type BrokerFactory func(tenant Tenant) BrokerClient

// MarketClock is the broker's view of the trading calendar
type MarketClock struct {
	Timestamp time.Time `json:"timestamp"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
	IsOpen    bool      `json:"is_open"`
}

// MarketDataProvider returns historical bars for ranking.
// Bars are chronological, oldest first.
type MarketDataProvider interface {
	GetBars(ctx context.Context, symbols []string, limit int) (map[string][]Bar, error)
}

// SignalProvider returns the latest reading of a named external signal.
// Implementations may serve cached values; the evaluator decides staleness.
type SignalProvider interface {
	GetReading(ctx context.Context, signal string) (*SignalReading, error)
}
