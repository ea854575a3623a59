package models

import "time"

// Position event type constants
const (
	EventPositionOpened = "POSITION_OPENED"
	EventPositionSold   = "POSITION_SOLD"
)

// PositionEvent is published to Kafka when a position changes state
type PositionEvent struct {
	EventType  string    `json:"event_type"`
	PositionID string    `json:"position_id"`
	Position   *Position `json:"position,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// EventTradeDetected is the event type emitted by the brokerage sync
const EventTradeDetected = "TRADE_DETECTED"

// TradeEvent is a Kafka message describing a detected brokerage fill
type TradeEvent struct {
	EventType string         `json:"event_type"`
	Source    string         `json:"source"`
	Timestamp string         `json:"timestamp"`
	Data      TradeEventData `json:"data"`
}

// TradeEventData carries the fill details as strings, the way the
// upstream publisher formats them
type TradeEventData struct {
	OrderID       string  `json:"order_id"`
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Quantity      string  `json:"quantity"`
	AveragePrice  string  `json:"average_price"`
	TotalNotional string  `json:"total_notional"`
	Fees          string  `json:"fees,omitempty"`
	ExecutedAt    *string `json:"executed_at,omitempty"`
}
