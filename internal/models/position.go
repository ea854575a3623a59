package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// StrategyType selects the exit rule applied to a position
type StrategyType string

// Strategy type constants
const (
	StrategyBasic StrategyType = "BASIC" // close below the 20-day moving average
	StrategyAdd   StrategyType = "ADD"   // close below the lower of the two prior lows
)

// ParseStrategyType accepts BASIC/ADD in any case
func ParseStrategyType(s string) (StrategyType, error) {
	switch StrategyType(strings.ToUpper(strings.TrimSpace(s))) {
	case StrategyBasic:
		return StrategyBasic, nil
	case StrategyAdd:
		return StrategyAdd, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// Valid reports whether s is one of the known strategy types
func (s StrategyType) Valid() bool {
	return s == StrategyBasic || s == StrategyAdd
}

// Position represents one recorded buy lot
type Position struct {
	ID           string          `json:"id" db:"id"`
	Ticker       string          `json:"ticker" db:"ticker"`
	EntryDate    time.Time       `json:"entry_date" db:"entry_date"`
	TotalAmount  decimal.Decimal `json:"total_amount" db:"total_amount"`
	Shares       decimal.Decimal `json:"shares" db:"shares"`
	StrategyType StrategyType    `json:"strategy_type" db:"strategy_type"`
	IsSold       bool            `json:"is_sold" db:"is_sold"`
	Notes        string          `json:"notes,omitempty" db:"notes"`
	SoldAt       *time.Time      `json:"sold_at,omitempty" db:"sold_at"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// AverageCost returns total amount paid per share
func (p *Position) AverageCost() decimal.Decimal {
	if p.Shares.IsZero() {
		return decimal.Zero
	}
	return p.TotalAmount.Div(p.Shares)
}

// Recommendation is the outcome of an exit-rule evaluation
type Recommendation string

// Recommendation constants
const (
	RecommendationHold Recommendation = "HOLD"
	RecommendationSell Recommendation = "SELL"
)

// SignalResult is the valuation and exit signal computed for one position
type SignalResult struct {
	PriceDate        time.Time       `json:"price_date"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	ExitPrice        decimal.Decimal `json:"exit_price"`
	UnrealizedPnl    decimal.Decimal `json:"unrealized_pnl"`
	UnrealizedPnlPct decimal.Decimal `json:"unrealized_pnl_pct"`
	Recommendation   Recommendation  `json:"recommendation"`
	Reason           string          `json:"reason"`
}

// View status constants
const (
	ViewStatusOK          = "OK"
	ViewStatusUnavailable = "UNAVAILABLE"
)

// PositionView is one row of the inventory view. Signal is nil when the
// status is UNAVAILABLE, in which case ErrorCode and Error say why.
type PositionView struct {
	Position    Position        `json:"position"`
	AverageCost decimal.Decimal `json:"average_cost"`
	DaysHeld    int             `json:"days_held"`
	Status      string          `json:"status"`
	Signal      *SignalResult   `json:"signal,omitempty"`
	ErrorCode   string          `json:"error_code,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// InventorySummary aggregates an inventory view
type InventorySummary struct {
	OpenPositions      int             `json:"open_positions"`
	SellSignals        int             `json:"sell_signals"`
	HoldSignals        int             `json:"hold_signals"`
	Unavailable        int             `json:"unavailable"`
	TotalCost          decimal.Decimal `json:"total_cost"`
	TotalUnrealizedPnl decimal.Decimal `json:"total_unrealized_pnl"`
}

// ExitView is one recently sold position. The sell price is not recorded,
// so only cost and holding period are reported.
type ExitView struct {
	Position    Position        `json:"position"`
	AverageCost decimal.Decimal `json:"average_cost"`
	DaysHeld    int             `json:"days_held"`
}

// ExitSummary aggregates the recent exits view
type ExitSummary struct {
	Days      int             `json:"days"`
	Exits     int             `json:"exits"`
	TotalCost decimal.Decimal `json:"total_cost"`
}
