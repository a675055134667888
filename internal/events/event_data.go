package events

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// RunStateChangedData contains data for RunStateChanged events
type RunStateChangedData struct {
	RunID      string `json:"run_id"`
	TenantID   string `json:"tenant_id"`
	StrategyID string `json:"strategy_id"`
	State      string `json:"state"`
	Partial    bool   `json:"partial,omitempty"`
	Error      string `json:"error,omitempty"`
}

// EventType returns the event type for RunStateChangedData
func (d *RunStateChangedData) EventType() EventType {
	return RunStateChanged
}

// OrdersPlannedData contains data for OrdersPlanned events
type OrdersPlannedData struct {
	RunID      string  `json:"run_id"`
	StrategyID string  `json:"strategy_id"`
	Orders     int     `json:"orders"`
	BuyCount   int     `json:"buy_count"`
	SellCount  int     `json:"sell_count"`
	Notional   float64 `json:"notional"`
}

// EventType returns the event type for OrdersPlannedData
func (d *OrdersPlannedData) EventType() EventType {
	return OrdersPlanned
}

// OrdersSubmittedData contains data for OrdersSubmitted events
type OrdersSubmittedData struct {
	RunID     string `json:"run_id"`
	TenantID  string `json:"tenant_id"`
	Submitted int    `json:"submitted"`
	Failed    int    `json:"failed"`
}

// EventType returns the event type for OrdersSubmittedData
func (d *OrdersSubmittedData) EventType() EventType {
	return OrdersSubmitted
}

// SignalGateFiredData contains data for SignalGateFired events
type SignalGateFiredData struct {
	RunID      string `json:"run_id"`
	StrategyID string `json:"strategy_id"`
	Reason     string `json:"reason"`
}

// EventType returns the event type for SignalGateFiredData
func (d *SignalGateFiredData) EventType() EventType {
	return SignalGateFired
}

// SweepCompletedData contains data for SweepCompleted events
type SweepCompletedData struct {
	Tenants   int `json:"tenants"`
	Runs      int `json:"runs"`
	Failed    int `json:"failed"`
	DurationS int `json:"duration_s"`
}

// EventType returns the event type for SweepCompletedData
func (d *SweepCompletedData) EventType() EventType {
	return SweepCompleted
}

// BackupCompletedData contains data for BackupCompleted events
type BackupCompletedData struct {
	Key       string `json:"key"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// EventType returns the event type for BackupCompletedData
func (d *BackupCompletedData) EventType() EventType {
	return BackupCompleted
}
