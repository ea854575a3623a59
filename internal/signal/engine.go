// Package signal computes exit prices and HOLD/SELL recommendations for
// open positions. Everything here is a pure function of its inputs.
package signal

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/position-exit-signals/internal/models"
)

// Window sizes for the exit rules
const (
	MovingAveragePeriod = 20
	LowLookbackDays     = 2
)

var hundred = decimal.NewFromInt(100)

// RequiredBars returns how many trailing bars, including the current one,
// the exit rule for s needs.
func RequiredBars(s models.StrategyType) int {
	switch s {
	case models.StrategyBasic:
		return MovingAveragePeriod
	case models.StrategyAdd:
		return LowLookbackDays + 1
	default:
		return 0
	}
}

// Compute values a position against its price history as of asOf.
// Bars dated after asOf are ignored; the rest must be strictly ascending
// by date.
func Compute(p *models.Position, bars []models.PriceBar, asOf time.Time) (*models.SignalResult, error) {
	window, err := trailing(bars, asOf)
	if err != nil {
		return nil, err
	}

	current := window[len(window)-1]

	var exit decimal.Decimal
	var rule string
	switch p.StrategyType {
	case models.StrategyBasic:
		exit, err = movingAverage(window, MovingAveragePeriod)
		rule = fmt.Sprintf("MA%d", MovingAveragePeriod)
	case models.StrategyAdd:
		exit, err = priorLow(window, LowLookbackDays)
		rule = "two-day low"
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownStrategy, p.StrategyType)
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", p.Ticker, p.StrategyType, err)
	}

	result := &models.SignalResult{
		PriceDate:      current.Date,
		CurrentPrice:   current.Close,
		ExitPrice:      exit,
		UnrealizedPnl:  current.Close.Mul(p.Shares).Sub(p.TotalAmount),
		Recommendation: models.RecommendationHold,
	}
	if p.TotalAmount.IsPositive() {
		result.UnrealizedPnlPct = result.UnrealizedPnl.Div(p.TotalAmount).Mul(hundred).Round(2)
	}

	// Equality holds; only a strict break of the threshold is an exit.
	if current.Close.LessThan(exit) {
		result.Recommendation = models.RecommendationSell
		result.Reason = fmt.Sprintf("close %s below %s %s", current.Close.String(), rule, exit.StringFixed(2))
	} else {
		result.Reason = fmt.Sprintf("close %s holds %s %s", current.Close.String(), rule, exit.StringFixed(2))
	}

	return result, nil
}

// trailing drops bars after asOf and checks ordering of the rest
func trailing(bars []models.PriceBar, asOf time.Time) ([]models.PriceBar, error) {
	cutoff := models.TradingDay(asOf)

	end := len(bars)
	for end > 0 && models.TradingDay(bars[end-1].Date).After(cutoff) {
		end--
	}
	window := bars[:end]
	if len(window) == 0 {
		return nil, models.ErrUnknownTicker
	}

	for i := 1; i < len(window); i++ {
		prev := models.TradingDay(window[i-1].Date)
		cur := models.TradingDay(window[i].Date)
		if !cur.After(prev) {
			return nil, fmt.Errorf("%w: %s not after %s",
				models.ErrInvalidHistory, cur.Format("2006-01-02"), prev.Format("2006-01-02"))
		}
	}
	return window, nil
}

// movingAverage is the simple mean of the last n closes
func movingAverage(window []models.PriceBar, n int) (decimal.Decimal, error) {
	if len(window) < n {
		return decimal.Zero, fmt.Errorf("%w: need %d bars, have %d", models.ErrInsufficientHistory, n, len(window))
	}

	sum := decimal.Zero
	for _, b := range window[len(window)-n:] {
		sum = sum.Add(b.Close)
	}
	return sum.Div(decimal.NewFromInt(int64(n))), nil
}

// priorLow is the minimum low of the n bars before the current one
func priorLow(window []models.PriceBar, n int) (decimal.Decimal, error) {
	prior := window[:len(window)-1]
	if len(prior) < n {
		return decimal.Zero, fmt.Errorf("%w: need %d prior bars, have %d", models.ErrInsufficientHistory, n, len(prior))
	}

	prior = prior[len(prior)-n:]
	low := prior[0].Low
	for _, b := range prior[1:] {
		low = decimal.Min(low, b.Low)
	}
	return low, nil
}
