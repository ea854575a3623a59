// Package ingest copies daily bars for open positions from remote price
// sources into the local price table.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/trogers1052/position-exit-signals/internal/models"
)

// TickerLister returns the tickers worth refreshing
type TickerLister interface {
	OpenTickers(ctx context.Context) ([]string, error)
}

// Source fetches daily history
type Source interface {
	GetDailyHistory(ctx context.Context, ticker string, lookback int) ([]models.PriceBar, error)
}

// Sink stores daily bars
type Sink interface {
	CreatePriceDataBatch(ctx context.Context, bars []models.PriceBar) error
	DeletePriceDataOlderThan(ctx context.Context, date time.Time) (int64, error)
}

// Invalidator drops cached history for a ticker
type Invalidator interface {
	Invalidate(ctx context.Context, ticker string) error
}

// Job refreshes the local price table
type Job struct {
	Tickers   TickerLister
	Source    Source
	Sink      Sink
	Cache     Invalidator // optional
	Lookback  int
	Retention time.Duration // zero keeps everything
	Now       func() time.Time
}

// Report summarizes one run
type Report struct {
	Tickers int
	Bars    int
	Failed  map[string]string
	Pruned  int64
}

// Run refreshes every open ticker. A ticker that fails is recorded in the
// report and does not stop the others.
func (j *Job) Run(ctx context.Context) (*Report, error) {
	tickers, err := j.Tickers.OpenTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list open tickers: %w", err)
	}

	report := &Report{Tickers: len(tickers), Failed: make(map[string]string)}
	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		n, err := j.refresh(ctx, ticker)
		if err != nil {
			report.Failed[ticker] = err.Error()
			log.Warn().Err(err).Str("ticker", ticker).Msg("Price ingest failed")
			continue
		}
		report.Bars += n
		log.Info().Str("ticker", ticker).Int("bars", n).Msg("Ingested prices")
	}

	if j.Retention > 0 {
		now := time.Now
		if j.Now != nil {
			now = j.Now
		}
		pruned, err := j.Sink.DeletePriceDataOlderThan(ctx, now().Add(-j.Retention))
		if err != nil {
			return report, fmt.Errorf("failed to prune price data: %w", err)
		}
		report.Pruned = pruned
	}

	return report, nil
}

func (j *Job) refresh(ctx context.Context, ticker string) (int, error) {
	bars, err := j.Source.GetDailyHistory(ctx, ticker, j.Lookback)
	if err != nil {
		return 0, err
	}
	for i := range bars {
		bars[i].Symbol = ticker
	}

	if err := j.Sink.CreatePriceDataBatch(ctx, bars); err != nil {
		return 0, err
	}

	if j.Cache != nil {
		if err := j.Cache.Invalidate(ctx, ticker); err != nil {
			log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to invalidate price cache")
		}
	}
	return len(bars), nil
}
