package events

// Event enumerates high-level topics inside the trading engine.
type Event string

const (
	EventPriceTick      Event = "price_tick"
	EventAnalysisUpdate Event = "analysis_update"
	EventTradeExecuted  Event = "trade_executed"
	EventPositionUpdate Event = "position_update"
	EventStatusUpdate   Event = "status_update"
	EventEngineError    Event = "engine_error"
)

// StatusUpdate is the payload published on EventStatusUpdate.
type StatusUpdate struct {
	Running bool   `json:"running"`
	Message string `json:"message"`
}

// PriceTick is the payload published on EventPriceTick.
type PriceTick struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}
