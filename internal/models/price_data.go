package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceBar represents one trading day of price data for a ticker.
// Close and Low are always populated; the remaining fields are
// best-effort and depend on the backend that produced the bar.
type PriceBar struct {
	Symbol string          `json:"symbol,omitempty" db:"symbol"`
	Date   time.Time       `json:"date" db:"date"`
	Open   decimal.Decimal `json:"open" db:"open"`
	High   decimal.Decimal `json:"high" db:"high"`
	Low    decimal.Decimal `json:"low" db:"low"`
	Close  decimal.Decimal `json:"close" db:"close"`
	Volume int64           `json:"volume" db:"volume"`
}

// TradingDay truncates t to a UTC calendar date, keeping t's own
// year/month/day.
func TradingDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
