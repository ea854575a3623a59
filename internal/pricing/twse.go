package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/trogers1052/position-exit-signals/internal/models"
)

// DefaultTWSEBaseURL is the exchange's monthly per-stock report
const DefaultTWSEBaseURL = "https://www.twse.com.tw/exchangeReport/STOCK_DAY"

// rocYearOffset converts Minguo calendar years to Gregorian
const rocYearOffset = 1911

var taipei = time.FixedZone("CST", 8*60*60)

// TWSEProvider walks the exchange's monthly STOCK_DAY reports backwards
// until enough bars are collected.
type TWSEProvider struct {
	baseURL string
	client  *http.Client
	pacer   *rate.Limiter
	now     func() time.Time
}

// TWSEOption customizes a TWSEProvider
type TWSEOption func(*TWSEProvider)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) TWSEOption {
	return func(p *TWSEProvider) { p.client = c }
}

// WithMonthPause sets the minimum gap between monthly report requests.
// Zero disables pacing.
func WithMonthPause(d time.Duration) TWSEOption {
	return func(p *TWSEProvider) {
		if d <= 0 {
			p.pacer = rate.NewLimiter(rate.Inf, 1)
			return
		}
		p.pacer = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithClock overrides the clock used to pick the starting month
func WithClock(now func() time.Time) TWSEOption {
	return func(p *TWSEProvider) { p.now = now }
}

// NewTWSEProvider creates a provider against baseURL
func NewTWSEProvider(baseURL string, opts ...TWSEOption) *TWSEProvider {
	if baseURL == "" {
		baseURL = DefaultTWSEBaseURL
	}
	p := &TWSEProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		pacer:   rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type stockDayResponse struct {
	Stat   string     `json:"stat"`
	Fields []string   `json:"fields"`
	Data   [][]string `json:"data"`
}

// GetDailyHistory implements Provider
func (p *TWSEProvider) GetDailyHistory(ctx context.Context, ticker string, lookback int) ([]models.PriceBar, error) {
	now := p.now().In(taipei)
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	var collected []models.PriceBar
	emptyStreak := 0
	for i := 0; i < maxMonths(lookback); i++ {
		bars, err := p.fetchMonth(ctx, ticker, month)
		if err != nil {
			return nil, err
		}

		if len(bars) == 0 {
			emptyStreak++
			// The current month is empty on its first trading days;
			// two empty months in a row end the walk.
			if emptyStreak >= 2 {
				break
			}
		} else {
			emptyStreak = 0
			collected = append(bars, collected...)
		}

		if len(collected) >= lookback {
			break
		}
		month = month.AddDate(0, -1, 0)
	}

	if len(collected) == 0 {
		return nil, fmt.Errorf("%w: twse has no reports for %s", models.ErrUnknownTicker, ticker)
	}
	return Normalize(collected, now, lookback), nil
}

func (p *TWSEProvider) fetchMonth(ctx context.Context, ticker string, month time.Time) ([]models.PriceBar, error) {
	if err := p.pacer.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed waiting for twse pacing: %w", err)
	}

	params := url.Values{
		"response": {"json"},
		"date":     {month.Format("20060102")},
		"stockNo":  {ticker},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build twse request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch twse report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("twse returned status %d for %s %s", resp.StatusCode, ticker, month.Format("2006-01"))
	}

	var body stockDayResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode twse report: %w", err)
	}

	// Any stat other than OK means no rows for this month/ticker
	if body.Stat != "OK" {
		log.Debug().Str("ticker", ticker).Str("month", month.Format("2006-01")).Str("stat", body.Stat).Msg("Empty TWSE report")
		return nil, nil
	}

	bars := make([]models.PriceBar, 0, len(body.Data))
	for _, row := range body.Data {
		bar, ok := parseStockDayRow(ticker, row)
		if !ok {
			continue
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// parseStockDayRow reads one report row:
// [date, volume, turnover, open, high, low, close, change, transactions].
// Rows without a usable date, low or close are skipped.
func parseStockDayRow(ticker string, row []string) (models.PriceBar, bool) {
	if len(row) < 7 {
		return models.PriceBar{}, false
	}

	date, err := parseROCDate(row[0])
	if err != nil {
		return models.PriceBar{}, false
	}

	low, ok := parseReportNumber(row[5])
	if !ok {
		return models.PriceBar{}, false
	}
	closePrice, ok := parseReportNumber(row[6])
	if !ok {
		return models.PriceBar{}, false
	}
	open, _ := parseReportNumber(row[3])
	high, _ := parseReportNumber(row[4])

	var volume int64
	if v, err := strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(row[1]), ",", ""), 10, 64); err == nil {
		volume = v
	}

	return models.PriceBar{
		Symbol: ticker,
		Date:   date,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: volume,
	}, true
}

// parseROCDate converts "114/01/27" to 2025-01-27
func parseROCDate(s string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("malformed roc date %q", s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed roc year %q: %w", s, err)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("malformed roc month %q", s)
	}
	day, err := strconv.Atoi(parts[2])
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("malformed roc day %q", s)
	}
	return time.Date(year+rocYearOffset, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
}

// parseReportNumber handles thousands separators and the "--" placeholder
func parseReportNumber(s string) (decimal.Decimal, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || s == "--" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// maxMonths bounds the walk back; a month holds roughly 19-22 sessions
func maxMonths(lookback int) int {
	return lookback/15 + 3
}
