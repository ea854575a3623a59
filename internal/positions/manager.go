// Package positions manages the position lifecycle: recording buys,
// building the inventory view with exit signals, and marking sales.
package positions

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/trogers1052/position-exit-signals/internal/metrics"
	"github.com/trogers1052/position-exit-signals/internal/models"
	"github.com/trogers1052/position-exit-signals/internal/signal"
)

// Store is the durable table of positions
type Store interface {
	AppendPosition(ctx context.Context, p *models.Position) error
	GetAllPositions(ctx context.Context) ([]*models.Position, error)
	GetPositionByID(ctx context.Context, id string) (*models.Position, error)
	// MarkPositionSold flips is_sold only if it is still false, returning
	// models.ErrAlreadySold when no open row matched.
	MarkPositionSold(ctx context.Context, id string, soldAt time.Time) error
}

// PriceHistoryProvider returns ascending daily bars for a ticker
type PriceHistoryProvider interface {
	GetDailyHistory(ctx context.Context, ticker string, lookback int) ([]models.PriceBar, error)
}

// EventPublisher announces position state changes
type EventPublisher interface {
	PublishPositionOpened(ctx context.Context, p *models.Position) error
	PublishPositionSold(ctx context.Context, p *models.Position) error
}

// Options tunes a Manager. Zero values pick the defaults.
type Options struct {
	Concurrency  int
	FetchTimeout time.Duration
	StoreTimeout time.Duration
	Publisher    EventPublisher
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

// Manager orchestrates the store, the price provider and the signal engine
type Manager struct {
	store     Store
	prices    PriceHistoryProvider
	publisher EventPublisher
	metrics   *metrics.Metrics

	concurrency  int
	fetchTimeout time.Duration
	storeTimeout time.Duration
	now          func() time.Time
}

// NewManager creates a new Manager
func NewManager(store Store, prices PriceHistoryProvider, opts Options) *Manager {
	m := &Manager{
		store:        store,
		prices:       prices,
		publisher:    opts.Publisher,
		metrics:      opts.Metrics,
		concurrency:  opts.Concurrency,
		fetchTimeout: opts.FetchTimeout,
		storeTimeout: opts.StoreTimeout,
		now:          opts.Now,
	}
	if m.concurrency <= 0 {
		m.concurrency = 4
	}
	if m.fetchTimeout <= 0 {
		m.fetchTimeout = 15 * time.Second
	}
	if m.storeTimeout <= 0 {
		m.storeTimeout = 10 * time.Second
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// ListOpenPositions returns every open position in store order, each with
// its signal or an unavailable marker.
func (m *Manager) ListOpenPositions(ctx context.Context) ([]models.PositionView, error) {
	all, err := m.readAll(ctx)
	if err != nil {
		return nil, err
	}

	var open []*models.Position
	lookback := make(map[string]int)
	var tickers []string
	for _, p := range all {
		if p.IsSold {
			continue
		}
		open = append(open, p)
		if _, seen := lookback[p.Ticker]; !seen {
			tickers = append(tickers, p.Ticker)
		}
		lookback[p.Ticker] = max(lookback[p.Ticker], signal.RequiredBars(p.StrategyType))
	}

	histories := m.fetchHistories(ctx, tickers, lookback)

	asOf := m.now()
	views := make([]models.PositionView, 0, len(open))
	for _, p := range open {
		view := models.PositionView{
			Position:    *p,
			AverageCost: p.AverageCost(),
			DaysHeld:    daysBetween(p.EntryDate, asOf),
			Status:      models.ViewStatusOK,
		}

		h := histories[p.Ticker]
		err := h.err
		if err == nil {
			view.Signal, err = signal.Compute(p, h.bars, asOf)
		}
		if err != nil {
			view.Signal = nil
			view.Status = models.ViewStatusUnavailable
			view.ErrorCode = ErrorCode(err)
			view.Error = err.Error()
			m.metrics.ObserveSignalFailure(view.ErrorCode)
			log.Warn().Err(err).Str("position_id", p.ID).Str("ticker", p.Ticker).
				Str("code", view.ErrorCode).Msg("Signal unavailable")
		} else {
			m.metrics.ObserveSignal(string(p.StrategyType), string(view.Signal.Recommendation))
		}
		views = append(views, view)
	}

	return views, nil
}

type history struct {
	bars []models.PriceBar
	err  error
}

// fetchHistories fetches each ticker once, concurrently. Failures are kept
// per ticker and never cancel the other fetches.
func (m *Manager) fetchHistories(ctx context.Context, tickers []string, lookback map[string]int) map[string]history {
	results := make([]history, len(tickers))

	g := new(errgroup.Group)
	g.SetLimit(m.concurrency)
	for i, ticker := range tickers {
		i, ticker := i, ticker
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
			defer cancel()

			n := lookback[ticker]
			if n <= 0 {
				n = signal.MovingAveragePeriod
			}
			bars, err := m.prices.GetDailyHistory(fctx, ticker, n)
			if err != nil && !errors.Is(err, models.ErrUnknownTicker) {
				err = models.Transient("fetch "+ticker, err)
			}
			results[i] = history{bars: bars, err: err}
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]history, len(tickers))
	for i, ticker := range tickers {
		out[ticker] = results[i]
	}
	return out
}

// BuyRequest carries the fields of a new position as entered by the user
type BuyRequest struct {
	Ticker       string
	Shares       decimal.Decimal
	TotalAmount  decimal.Decimal
	EntryDate    time.Time
	StrategyType string
	Notes        string
}

var tickerPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]*$`)

// maxTickerLen matches the width of positions.ticker
const maxTickerLen = 16

// NormalizeTicker uppercases a ticker and strips Taiwan exchange suffixes
func NormalizeTicker(s string) string {
	t := strings.ToUpper(strings.TrimSpace(s))
	for _, suffix := range []string{".TWO", ".TW"} {
		if strings.HasSuffix(t, suffix) {
			return strings.TrimSuffix(t, suffix)
		}
	}
	return t
}

// RecordBuy validates and appends a new open position
func (m *Manager) RecordBuy(ctx context.Context, req BuyRequest) (*models.Position, error) {
	p, err := m.validate(req)
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()
	err = m.store.AppendPosition(sctx, p)
	m.metrics.ObserveStoreOp("append", err)
	if err != nil {
		return nil, models.Transient("append position", err)
	}

	log.Info().Str("position_id", p.ID).Str("ticker", p.Ticker).
		Str("strategy", string(p.StrategyType)).Str("shares", p.Shares.String()).
		Msg("Recorded buy")

	if m.publisher != nil {
		if err := m.publisher.PublishPositionOpened(ctx, p); err != nil {
			log.Error().Err(err).Str("position_id", p.ID).Msg("Failed to publish position opened")
		}
	}
	return p, nil
}

func (m *Manager) validate(req BuyRequest) (*models.Position, error) {
	ticker := NormalizeTicker(req.Ticker)
	if ticker == "" {
		return nil, &ValidationError{Field: "ticker", Reason: "required"}
	}
	if len(ticker) > maxTickerLen {
		return nil, &ValidationError{Field: "ticker", Reason: fmt.Sprintf("longer than %d characters", maxTickerLen)}
	}
	if !tickerPattern.MatchString(ticker) {
		return nil, &ValidationError{Field: "ticker", Reason: fmt.Sprintf("%q is not a valid symbol", req.Ticker)}
	}
	if !req.Shares.IsPositive() {
		return nil, &ValidationError{Field: "shares", Reason: "must be greater than 0"}
	}
	if !req.TotalAmount.IsPositive() {
		return nil, &ValidationError{Field: "total_amount", Reason: "must be greater than 0"}
	}
	if req.EntryDate.IsZero() {
		return nil, &ValidationError{Field: "entry_date", Reason: "required"}
	}
	entry := models.TradingDay(req.EntryDate)
	if entry.After(models.TradingDay(m.now())) {
		return nil, &ValidationError{Field: "entry_date", Reason: "must not be in the future"}
	}
	strategy, err := models.ParseStrategyType(req.StrategyType)
	if err != nil {
		return nil, &ValidationError{Field: "strategy_type", Reason: err.Error()}
	}

	return &models.Position{
		ID:           uuid.NewString(),
		Ticker:       ticker,
		EntryDate:    entry,
		TotalAmount:  req.TotalAmount,
		Shares:       req.Shares,
		StrategyType: strategy,
		Notes:        strings.TrimSpace(req.Notes),
	}, nil
}

// MarkSold moves an open position to SOLD. Re-marking fails with
// models.ErrAlreadySold so stale callers notice.
func (m *Manager) MarkSold(ctx context.Context, id string) error {
	// Ids are UUIDs; anything else cannot name a stored position
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("%w: %q", models.ErrNotFound, id)
	}
	id = parsed.String()

	sctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()

	p, err := m.store.GetPositionByID(sctx, id)
	m.metrics.ObserveStoreOp("get", err)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		return models.Transient("get position", err)
	}
	if p.IsSold {
		return fmt.Errorf("%w: %s", models.ErrAlreadySold, id)
	}

	soldAt := m.now()
	err = m.store.MarkPositionSold(sctx, id, soldAt)
	m.metrics.ObserveStoreOp("mark_sold", err)
	if err != nil {
		if errors.Is(err, models.ErrAlreadySold) || errors.Is(err, models.ErrNotFound) {
			return err
		}
		return models.Transient("mark position sold", err)
	}

	p.IsSold = true
	p.SoldAt = &soldAt
	log.Info().Str("position_id", id).Str("ticker", p.Ticker).Msg("Marked position sold")

	if m.publisher != nil {
		if err := m.publisher.PublishPositionSold(ctx, p); err != nil {
			log.Error().Err(err).Str("position_id", id).Msg("Failed to publish position sold")
		}
	}
	return nil
}

// Bounds for the recent exits window, in days
const (
	DefaultExitWindowDays = 3
	MaxExitWindowDays     = 365
)

// ListRecentExits returns positions sold within the last days calendar
// days, counting today, newest sale first.
func (m *Manager) ListRecentExits(ctx context.Context, days int) ([]models.ExitView, error) {
	if days <= 0 || days > MaxExitWindowDays {
		return nil, &ValidationError{Field: "days", Reason: fmt.Sprintf("must be between 1 and %d", MaxExitWindowDays)}
	}

	all, err := m.readAll(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := models.TradingDay(m.now()).AddDate(0, 0, -days)
	var exits []models.ExitView
	for _, p := range all {
		if !p.IsSold || p.SoldAt == nil {
			continue
		}
		if models.TradingDay(*p.SoldAt).Before(cutoff) {
			continue
		}
		exits = append(exits, models.ExitView{
			Position:    *p,
			AverageCost: p.AverageCost(),
			DaysHeld:    daysBetween(p.EntryDate, *p.SoldAt),
		})
	}

	slices.SortStableFunc(exits, func(a, b models.ExitView) int {
		return b.Position.SoldAt.Compare(*a.Position.SoldAt)
	})
	return exits, nil
}

// OpenTickers returns the distinct tickers of open positions in store order
func (m *Manager) OpenTickers(ctx context.Context) ([]string, error) {
	all, err := m.readAll(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var tickers []string
	for _, p := range all {
		if p.IsSold || seen[p.Ticker] {
			continue
		}
		seen[p.Ticker] = true
		tickers = append(tickers, p.Ticker)
	}
	return tickers, nil
}

func (m *Manager) readAll(ctx context.Context) ([]*models.Position, error) {
	sctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()

	all, err := m.store.GetAllPositions(sctx)
	m.metrics.ObserveStoreOp("read_all", err)
	if err != nil {
		return nil, models.Transient("read positions", err)
	}
	return all, nil
}

func daysBetween(from, to time.Time) int {
	if from.IsZero() {
		return 0
	}
	d := models.TradingDay(to).Sub(models.TradingDay(from))
	return int(d.Hours() / 24)
}
