package database

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/trogers1052/position-exit-signals/internal/models"
)

// CreatePriceDataBatch upserts daily bars in a single transaction
func (db *DB) CreatePriceDataBatch(ctx context.Context, bars []models.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_data_daily (symbol, date, open, high, low, close, volume, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, b := range bars {
		_, err := stmt.ExecContext(ctx, b.Symbol, models.TradingDay(b.Date), b.Open, b.High, b.Low, b.Close, b.Volume, now)
		if err != nil {
			return fmt.Errorf("failed to insert price data for %s: %w", b.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetDailyHistory returns the most recent lookback bars for a symbol,
// oldest first. It satisfies the price history provider contract so the
// ingested table can serve as a local backend.
func (db *DB) GetDailyHistory(ctx context.Context, symbol string, lookback int) ([]models.PriceBar, error) {
	query := `
		SELECT symbol, date, open, high, low, close, volume
		FROM price_data_daily
		WHERE symbol = $1 AND date <= $2
		ORDER BY date DESC
		LIMIT $3
	`
	var bars []models.PriceBar
	if err := db.conn.SelectContext(ctx, &bars, query, symbol, models.TradingDay(time.Now()), lookback); err != nil {
		return nil, fmt.Errorf("failed to get price data: %w", err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no stored prices for %s", models.ErrUnknownTicker, symbol)
	}

	slices.Reverse(bars)
	return bars, nil
}

// DeletePriceDataOlderThan removes price data older than a specified date
func (db *DB) DeletePriceDataOlderThan(ctx context.Context, date time.Time) (int64, error) {
	query := `DELETE FROM price_data_daily WHERE date < $1`
	result, err := db.conn.ExecContext(ctx, query, models.TradingDay(date))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old price data: %w", err)
	}
	return result.RowsAffected()
}
