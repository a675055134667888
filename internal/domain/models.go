// Package domain provides core domain models and types.
package domain

import "time"

// Side represents which book a ranked symbol belongs to
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// OrderSide represents the direction of an order
type OrderSide string

const (
	OrderBuy  OrderSide = "buy"
	OrderSell OrderSide = "sell"
)

// TargetSource records how a target weight was produced
type TargetSource string

const (
	// TargetFromRanking means the weight came from the ranked universe
	TargetFromRanking TargetSource = "ranking"
	// TargetFromSignal means the weight was injected by a signal trigger
	TargetFromSignal TargetSource = "signal"
)

// RunState represents the lifecycle stage of a strategy run
type RunState string

const (
	RunPending    RunState = "pending"
	RunFetching   RunState = "fetching"
	RunComputing  RunState = "computing"
	RunSubmitting RunState = "submitting"
	RunRecorded   RunState = "recorded"
	RunSkipped    RunState = "skipped"
	RunFailed     RunState = "failed"
)

// Metric identifies a ranking metric
type Metric string

const (
	MetricReturn   Metric = "return"
	MetricSMASlope Metric = "sma_slope"
	MetricEMASlope Metric = "ema_slope"
	MetricRSI      Metric = "rsi"
)

// Bar represents one OHLCV bar of market data
type Bar struct {
	Timestamp time.Time `json:"t"`
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    float64   `json:"v"`
}

// Tenant represents an isolated account with its own broker credentials
type Tenant struct {
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	BrokerKeyID  string    `json:"broker_key_id"`
	BrokerSecret string    `json:"-"`
	Paper        bool      `json:"paper"`
	Enabled      bool      `json:"enabled"`
}

// StrategyConfig holds one strategy's full configuration
type StrategyConfig struct {
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
	ID                 string       `json:"id"`
	TenantID           string       `json:"tenant_id"`
	Name               string       `json:"name"`
	Metric             Metric       `json:"metric"`
	Universe           []string     `json:"universe"`
	SignalRules        []SignalRule `json:"signal_rules"`
	LookbackBars       int          `json:"lookback_bars"`
	LongCount          int          `json:"long_count"`
	ShortCount         int          `json:"short_count"`
	MaxWeightPerSymbol float64      `json:"max_weight_per_symbol"`
	CashReservePct     float64      `json:"cash_reserve_pct"`
	RebalanceFraction  float64      `json:"rebalance_fraction"`
	DustFloor          float64      `json:"dust_floor"`
	DryRun             bool         `json:"dry_run"`
	Enabled            bool         `json:"enabled"`
}

// RankedSymbol is one entry of a ranked universe
type RankedSymbol struct {
	Symbol string  `json:"symbol"`
	Side   Side    `json:"side"`
	Score  float64 `json:"score"`
	Rank   int     `json:"rank"`
}

// CurrentPosition is a broker-reported position.
// Quantity and MarketValue are signed: negative means short.
type CurrentPosition struct {
	Symbol      string  `json:"symbol"`
	Qty         float64 `json:"qty"`
	MarketValue float64 `json:"market_value"`
}

// Target is a desired portfolio weight for one symbol.
// Weight and Value are signed: negative means short exposure.
type Target struct {
	Symbol string       `json:"symbol"`
	Source TargetSource `json:"source"`
	Weight float64      `json:"weight"`
	Value  float64      `json:"value"`
}

// Order is one planned rebalancing order. Notional is always positive;
// direction lives in Side.
type Order struct {
	Symbol   string    `json:"symbol"`
	Side     OrderSide `json:"side"`
	Reason   string    `json:"reason"`
	Notional float64   `json:"notional"`
}

// Account is broker account state relevant to target computation
type Account struct {
	Currency    string  `json:"currency"`
	Equity      float64 `json:"equity"`
	BuyingPower float64 `json:"buying_power"`
}

// RunResult records everything one strategy run produced.
// Err is a fatal pipeline error; OrderErrors are per-order submission
// failures that did not stop the rest of the submission loop.
type RunResult struct {
	StartedAt         time.Time      `json:"started_at"`
	FinishedAt        time.Time      `json:"finished_at"`
	RunID             string         `json:"run_id"`
	TenantID          string         `json:"tenant_id"`
	StrategyID        string         `json:"strategy_id"`
	State             RunState       `json:"state"`
	Err               string         `json:"error,omitempty"`
	GateReason        string         `json:"gate_reason,omitempty"`
	Ranked            []RankedSymbol `json:"ranked"`
	Targets           []Target       `json:"targets"`
	Orders            []Order        `json:"orders"`
	SubmittedOrderIDs []string       `json:"submitted_order_ids"`
	OrderErrors       []string       `json:"order_errors,omitempty"`
	Equity            float64        `json:"equity"`
	DryRun            bool           `json:"dry_run"`
	Partial           bool           `json:"partial"`
}

// TenantSummary aggregates one tenant's outcomes within a sweep
type TenantSummary struct {
	TenantID      string   `json:"tenant_id"`
	StrategiesRun int      `json:"strategies_run"`
	OrdersPlaced  int      `json:"orders_placed"`
	Errors        []string `json:"errors"`
}

// SweepReport is the aggregated outcome of one orchestrator sweep.
// Partial means the sweep's deadline expired before every tenant was
// processed; what was recorded up to that point is still reported.
type SweepReport struct {
	Results          []TenantSummary `json:"results"`
	Runs             []RunResult     `json:"runs,omitempty"`
	TenantsProcessed int             `json:"tenants_processed"`
	TotalOrders      int             `json:"total_orders"`
	Partial          bool            `json:"partial"`
}
