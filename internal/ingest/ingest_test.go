package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/position-exit-signals/internal/models"
)

type mockTickers struct {
	tickers []string
	err     error
}

func (m *mockTickers) OpenTickers(ctx context.Context) ([]string, error) {
	return m.tickers, m.err
}

type mockSource struct {
	bars      map[string][]models.PriceBar
	errs      map[string]error
	lookbacks []int
}

func (m *mockSource) GetDailyHistory(ctx context.Context, ticker string, lookback int) ([]models.PriceBar, error) {
	m.lookbacks = append(m.lookbacks, lookback)
	if err := m.errs[ticker]; err != nil {
		return nil, err
	}
	return m.bars[ticker], nil
}

type mockSink struct {
	batches     [][]models.PriceBar
	batchErr    error
	prunedFrom  time.Time
	pruneResult int64
}

func (m *mockSink) CreatePriceDataBatch(ctx context.Context, bars []models.PriceBar) error {
	if m.batchErr != nil {
		return m.batchErr
	}
	m.batches = append(m.batches, bars)
	return nil
}

func (m *mockSink) DeletePriceDataOlderThan(ctx context.Context, date time.Time) (int64, error) {
	m.prunedFrom = date
	return m.pruneResult, nil
}

type mockCache struct {
	invalidated []string
}

func (m *mockCache) Invalidate(ctx context.Context, ticker string) error {
	m.invalidated = append(m.invalidated, ticker)
	return nil
}

func bars(n int) []models.PriceBar {
	out := make([]models.PriceBar, n)
	for i := range out {
		c := decimal.NewFromInt(int64(600 + i))
		out[i] = models.PriceBar{Date: time.Date(2026, 3, 2+i, 0, 0, 0, 0, time.UTC), Low: c, Close: c}
	}
	return out
}

func TestJob_Run(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)

	t.Run("refreshes every ticker and prunes", func(t *testing.T) {
		source := &mockSource{bars: map[string][]models.PriceBar{"2330": bars(3), "0050": bars(2)}}
		sink := &mockSink{pruneResult: 7}
		cache := &mockCache{}
		job := &Job{
			Tickers:   &mockTickers{tickers: []string{"2330", "0050"}},
			Source:    source,
			Sink:      sink,
			Cache:     cache,
			Lookback:  60,
			Retention: 400 * 24 * time.Hour,
			Now:       func() time.Time { return now },
		}

		report, err := job.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, report.Tickers)
		assert.Equal(t, 5, report.Bars)
		assert.Empty(t, report.Failed)
		assert.Equal(t, int64(7), report.Pruned)

		require.Len(t, sink.batches, 2)
		assert.Equal(t, "2330", sink.batches[0][0].Symbol, "bars are stamped with the ticker")
		assert.Equal(t, []int{60, 60}, source.lookbacks)
		assert.Equal(t, []string{"2330", "0050"}, cache.invalidated)
		assert.True(t, sink.prunedFrom.Equal(now.Add(-400*24*time.Hour)))
	})

	t.Run("one failing ticker does not stop the rest", func(t *testing.T) {
		source := &mockSource{
			bars: map[string][]models.PriceBar{"0050": bars(2)},
			errs: map[string]error{"9999": fmt.Errorf("%w: 9999", models.ErrUnknownTicker)},
		}
		sink := &mockSink{}
		job := &Job{
			Tickers:  &mockTickers{tickers: []string{"9999", "0050"}},
			Source:   source,
			Sink:     sink,
			Lookback: 20,
		}

		report, err := job.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, report.Bars)
		assert.Contains(t, report.Failed, "9999")
		assert.Len(t, sink.batches, 1)
		assert.True(t, sink.prunedFrom.IsZero(), "no retention configured")
	})

	t.Run("store failure is per ticker", func(t *testing.T) {
		job := &Job{
			Tickers:  &mockTickers{tickers: []string{"2330"}},
			Source:   &mockSource{bars: map[string][]models.PriceBar{"2330": bars(1)}},
			Sink:     &mockSink{batchErr: errors.New("disk full")},
			Lookback: 20,
		}

		report, err := job.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, "disk full", report.Failed["2330"])
	})

	t.Run("listing failure aborts", func(t *testing.T) {
		job := &Job{
			Tickers: &mockTickers{err: errors.New("connection refused")},
			Source:  &mockSource{},
			Sink:    &mockSink{},
		}

		_, err := job.Run(ctx)
		assert.Error(t, err)
	})
}
