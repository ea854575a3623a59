package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"github.com/trogers1052/position-exit-signals/internal/models"
)

// barsClient is the slice of the Alpaca market data client we use
type barsClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// AlpacaProvider reads daily bars from Alpaca market data
type AlpacaProvider struct {
	client barsClient
	feed   string
	now    func() time.Time
}

// NewAlpacaProvider creates a provider with the given credentials.
// Empty credentials fall back to the APCA_API_* environment variables
// read by the Alpaca client itself.
func NewAlpacaProvider(apiKey, apiSecret, feed string) *AlpacaProvider {
	return &AlpacaProvider{
		client: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
		}),
		feed: feed,
		now:  time.Now,
	}
}

type barsResult struct {
	bars []marketdata.Bar
	err  error
}

// GetDailyHistory implements Provider
func (p *AlpacaProvider) GetDailyHistory(ctx context.Context, ticker string, lookback int) ([]models.PriceBar, error) {
	now := p.now()
	req := marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     now.AddDate(0, 0, -calendarDays(lookback)),
		End:       now,
	}
	if p.feed != "" {
		req.Feed = marketdata.Feed(p.feed)
	}

	// The client takes no context; abandon the call when ctx ends
	done := make(chan barsResult, 1)
	go func() {
		bars, err := p.client.GetBars(ticker, req)
		done <- barsResult{bars: bars, err: err}
	}()

	var res barsResult
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("alpaca bars for %s: %w", ticker, ctx.Err())
	case res = <-done:
	}
	if res.err != nil {
		return nil, fmt.Errorf("failed to get alpaca bars for %s: %w", ticker, res.err)
	}
	if len(res.bars) == 0 {
		return nil, fmt.Errorf("%w: alpaca returned no bars for %s", models.ErrUnknownTicker, ticker)
	}

	bars := make([]models.PriceBar, 0, len(res.bars))
	for _, b := range res.bars {
		bars = append(bars, models.PriceBar{
			Symbol: ticker,
			Date:   models.TradingDay(b.Timestamp.UTC()),
			Open:   decimal.NewFromFloat(b.Open),
			High:   decimal.NewFromFloat(b.High),
			Low:    decimal.NewFromFloat(b.Low),
			Close:  decimal.NewFromFloat(b.Close),
			Volume: int64(b.Volume),
		})
	}
	return Normalize(bars, now, lookback), nil
}

// calendarDays sizes the request window to cover lookback sessions
// across weekends and holidays.
func calendarDays(lookback int) int {
	return lookback*7/5 + 10
}
