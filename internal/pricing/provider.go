// Package pricing provides daily price history backends and the
// decorators that chain, guard and cache them.
package pricing

import (
	"context"
	"slices"
	"time"

	"github.com/trogers1052/position-exit-signals/internal/models"
)

// Provider returns up to lookback daily bars for a ticker, oldest first.
// A ticker the backend has never heard of yields models.ErrUnknownTicker.
type Provider interface {
	GetDailyHistory(ctx context.Context, ticker string, lookback int) ([]models.PriceBar, error)
}

// Source names a Provider for logs and metrics
type Source struct {
	Name     string
	Provider Provider
}

// Normalize sorts bars ascending, keeps the last bar seen for each date,
// drops bars dated after asOf and trims to the most recent lookback.
// A non-positive lookback keeps everything.
func Normalize(bars []models.PriceBar, asOf time.Time, lookback int) []models.PriceBar {
	cutoff := models.TradingDay(asOf)

	byDate := make(map[time.Time]models.PriceBar, len(bars))
	for _, b := range bars {
		b.Date = models.TradingDay(b.Date)
		if b.Date.After(cutoff) {
			continue
		}
		byDate[b.Date] = b
	}

	out := make([]models.PriceBar, 0, len(byDate))
	for _, b := range byDate {
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b models.PriceBar) int {
		return a.Date.Compare(b.Date)
	})

	if lookback > 0 && len(out) > lookback {
		out = out[len(out)-lookback:]
	}
	return out
}
