package signal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/position-exit-signals/internal/models"
)

var baseDate = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

// closeBars builds one bar per close on consecutive days, low equal to close
func closeBars(closes ...float64) []models.PriceBar {
	bars := make([]models.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = models.PriceBar{
			Date:  baseDate.AddDate(0, 0, i),
			Close: decimal.NewFromFloat(c),
			Low:   decimal.NewFromFloat(c),
		}
	}
	return bars
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func asOfLast(bars []models.PriceBar) time.Time {
	return bars[len(bars)-1].Date.Add(15 * time.Hour)
}

func basicPosition() *models.Position {
	return &models.Position{
		ID:           "pos-1",
		Ticker:       "2330",
		Shares:       decimal.NewFromInt(1000),
		TotalAmount:  decimal.NewFromInt(600000),
		StrategyType: models.StrategyBasic,
	}
}

func addPosition() *models.Position {
	p := basicPosition()
	p.StrategyType = models.StrategyAdd
	return p
}

func TestCompute_Basic(t *testing.T) {
	t.Run("holds above the 20-day average", func(t *testing.T) {
		closes := append(append(repeat(580, 9), repeat(579, 10)...), 590)
		bars := closeBars(closes...)

		res, err := Compute(basicPosition(), bars, asOfLast(bars))
		require.NoError(t, err)

		assert.True(t, res.ExitPrice.Equal(decimal.NewFromInt(580)), "exit price %s", res.ExitPrice)
		assert.True(t, res.CurrentPrice.Equal(decimal.NewFromInt(590)))
		assert.Equal(t, models.RecommendationHold, res.Recommendation)
		assert.True(t, res.UnrealizedPnl.Equal(decimal.NewFromInt(-10000)), "pnl %s", res.UnrealizedPnl)
		assert.True(t, res.UnrealizedPnlPct.Equal(decimal.RequireFromString("-1.67")), "pct %s", res.UnrealizedPnlPct)
		assert.Equal(t, bars[19].Date, res.PriceDate)
	})

	t.Run("sells below the 20-day average", func(t *testing.T) {
		closes := append(append(repeat(580, 9), repeat(581, 10)...), 570)
		bars := closeBars(closes...)

		res, err := Compute(basicPosition(), bars, asOfLast(bars))
		require.NoError(t, err)

		assert.True(t, res.ExitPrice.Equal(decimal.NewFromInt(580)))
		assert.Equal(t, models.RecommendationSell, res.Recommendation)
		assert.Contains(t, res.Reason, "below MA20")
	})

	t.Run("ignores bars older than the window", func(t *testing.T) {
		closes := append(append(repeat(580, 9), repeat(579, 10)...), 590)
		withOld := append([]float64{10000}, closes...)
		bars := closeBars(withOld...)

		res, err := Compute(basicPosition(), bars, asOfLast(bars))
		require.NoError(t, err)
		assert.True(t, res.ExitPrice.Equal(decimal.NewFromInt(580)))
	})

	t.Run("equal to the average holds", func(t *testing.T) {
		bars := closeBars(repeat(580, 20)...)

		res, err := Compute(basicPosition(), bars, asOfLast(bars))
		require.NoError(t, err)
		assert.Equal(t, models.RecommendationHold, res.Recommendation)
	})

	t.Run("fails with fewer than 20 bars", func(t *testing.T) {
		bars := closeBars(repeat(580, 15)...)

		_, err := Compute(basicPosition(), bars, asOfLast(bars))
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrInsufficientHistory)
	})
}

func TestCompute_Add(t *testing.T) {
	prior := []float64{50, 102, 98}

	t.Run("sells below the lower prior low", func(t *testing.T) {
		bars := closeBars(append(prior, 97)...)

		res, err := Compute(addPosition(), bars, asOfLast(bars))
		require.NoError(t, err)
		assert.True(t, res.ExitPrice.Equal(decimal.NewFromInt(98)), "exit price %s", res.ExitPrice)
		assert.Equal(t, models.RecommendationSell, res.Recommendation)
	})

	t.Run("holds above the lower prior low", func(t *testing.T) {
		bars := closeBars(append(prior, 99)...)

		res, err := Compute(addPosition(), bars, asOfLast(bars))
		require.NoError(t, err)
		assert.True(t, res.ExitPrice.Equal(decimal.NewFromInt(98)))
		assert.Equal(t, models.RecommendationHold, res.Recommendation)
	})

	t.Run("uses lows not closes", func(t *testing.T) {
		bars := closeBars(100, 100, 100)
		bars[0].Low = decimal.NewFromInt(95)
		bars[1].Low = decimal.NewFromInt(96)

		res, err := Compute(addPosition(), bars, asOfLast(bars))
		require.NoError(t, err)
		assert.True(t, res.ExitPrice.Equal(decimal.NewFromInt(95)))
	})

	t.Run("equal to the prior low holds", func(t *testing.T) {
		bars := closeBars(append(prior, 98)...)

		res, err := Compute(addPosition(), bars, asOfLast(bars))
		require.NoError(t, err)
		assert.Equal(t, models.RecommendationHold, res.Recommendation)
	})

	t.Run("fails with fewer than two prior bars", func(t *testing.T) {
		bars := closeBars(102, 97)

		_, err := Compute(addPosition(), bars, asOfLast(bars))
		assert.ErrorIs(t, err, models.ErrInsufficientHistory)
	})
}

func TestCompute_History(t *testing.T) {
	t.Run("drops bars after the valuation date", func(t *testing.T) {
		bars := closeBars(102, 98, 99, 10)
		asOf := bars[2].Date

		res, err := Compute(addPosition(), bars, asOf)
		require.NoError(t, err)
		assert.True(t, res.CurrentPrice.Equal(decimal.NewFromInt(99)))
		assert.Equal(t, models.RecommendationHold, res.Recommendation)
	})

	t.Run("empty history is an unknown ticker", func(t *testing.T) {
		_, err := Compute(addPosition(), nil, baseDate)
		assert.ErrorIs(t, err, models.ErrUnknownTicker)
	})

	t.Run("history entirely in the future is an unknown ticker", func(t *testing.T) {
		bars := closeBars(1, 2, 3)
		_, err := Compute(addPosition(), bars, baseDate.AddDate(0, 0, -1))
		assert.ErrorIs(t, err, models.ErrUnknownTicker)
	})

	t.Run("rejects out of order bars", func(t *testing.T) {
		bars := closeBars(1, 2, 3)
		bars[0], bars[1] = bars[1], bars[0]

		_, err := Compute(addPosition(), bars, asOfLast(bars))
		assert.ErrorIs(t, err, models.ErrInvalidHistory)
	})

	t.Run("rejects duplicate dates", func(t *testing.T) {
		bars := closeBars(1, 2, 3)
		bars[2].Date = bars[1].Date

		_, err := Compute(addPosition(), bars, bars[1].Date)
		assert.ErrorIs(t, err, models.ErrInvalidHistory)
	})
}

func TestCompute_UnrealizedPnl(t *testing.T) {
	p := &models.Position{
		Ticker:       "AAPL",
		Shares:       decimal.RequireFromString("2.5"),
		TotalAmount:  decimal.RequireFromString("100.10"),
		StrategyType: models.StrategyAdd,
	}
	bars := closeBars(40, 41, 41.3)

	res, err := Compute(p, bars, asOfLast(bars))
	require.NoError(t, err)
	assert.True(t, res.UnrealizedPnl.Equal(decimal.RequireFromString("3.15")), "pnl %s", res.UnrealizedPnl)
}

func TestCompute_UnknownStrategy(t *testing.T) {
	p := basicPosition()
	p.StrategyType = "PYRAMID"
	bars := closeBars(repeat(1, 20)...)

	_, err := Compute(p, bars, asOfLast(bars))
	assert.ErrorIs(t, err, models.ErrUnknownStrategy)
}

func TestRequiredBars(t *testing.T) {
	assert.Equal(t, 20, RequiredBars(models.StrategyBasic))
	assert.Equal(t, 3, RequiredBars(models.StrategyAdd))
	assert.Equal(t, 0, RequiredBars("OTHER"))
}
