package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/trogers1052/position-exit-signals/internal/metrics"
	"github.com/trogers1052/position-exit-signals/internal/models"
)

// Fallback tries each source in order. The first result holding at least
// lookback bars wins; otherwise the longest partial result is returned.
type Fallback struct {
	sources []Source
	metrics *metrics.Metrics
}

// NewFallback chains sources; m may be nil
func NewFallback(m *metrics.Metrics, sources ...Source) *Fallback {
	return &Fallback{sources: sources, metrics: m}
}

// GetDailyHistory implements Provider
func (f *Fallback) GetDailyHistory(ctx context.Context, ticker string, lookback int) ([]models.PriceBar, error) {
	var best []models.PriceBar
	var lastErr error

	for _, src := range f.sources {
		start := time.Now()
		bars, err := src.Provider.GetDailyHistory(ctx, ticker, lookback)
		f.metrics.ObserveFetch(src.Name, err, time.Since(start))

		if err != nil {
			log.Debug().Err(err).Str("source", src.Name).Str("ticker", ticker).Msg("Price source failed")
			if !errors.Is(err, models.ErrUnknownTicker) {
				lastErr = err
			}
			continue
		}
		if len(bars) >= lookback {
			return bars, nil
		}
		if len(bars) > len(best) {
			best = bars
		}
	}

	if len(best) > 0 {
		return best, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: %s", models.ErrUnknownTicker, ticker)
}
