package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/trogers1052/position-exit-signals/internal/models"
)

const positionColumns = `id, ticker, entry_date, total_amount, shares, strategy_type, is_sold, notes, sold_at, created_at`

// AppendPosition inserts a new position row
func (db *DB) AppendPosition(ctx context.Context, p *models.Position) error {
	query := `
		INSERT INTO positions (
			id, ticker, entry_date, total_amount, shares, strategy_type, is_sold, notes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	now := time.Now().UTC()

	_, err := db.conn.ExecContext(ctx, query,
		p.ID, p.Ticker, p.EntryDate, p.TotalAmount, p.Shares, p.StrategyType, p.IsSold, p.Notes, now,
	)
	if err != nil {
		return fmt.Errorf("failed to append position: %w", err)
	}
	p.CreatedAt = now
	return nil
}

// GetAllPositions retrieves every position, sold or not, in insertion order
func (db *DB) GetAllPositions(ctx context.Context) ([]*models.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions ORDER BY created_at ASC, id ASC`

	var positions []*models.Position
	if err := db.conn.SelectContext(ctx, &positions, query); err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}
	return positions, nil
}

// GetPositionByID retrieves a position by ID
func (db *DB) GetPositionByID(ctx context.Context, id string) (*models.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE id = $1`

	var p models.Position
	err := db.conn.GetContext(ctx, &p, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return &p, nil
}

// MarkPositionSold flips is_sold for an open position. The update only
// matches rows still open, so a concurrent mark loses with ErrAlreadySold.
func (db *DB) MarkPositionSold(ctx context.Context, id string, soldAt time.Time) error {
	query := `UPDATE positions SET is_sold = TRUE, sold_at = $2 WHERE id = $1 AND is_sold = FALSE`

	result, err := db.conn.ExecContext(ctx, query, id, soldAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to mark position sold: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark position sold: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	var isSold bool
	err = db.conn.QueryRowContext(ctx, `SELECT is_sold FROM positions WHERE id = $1`, id).Scan(&isSold)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to check position state: %w", err)
	}
	return fmt.Errorf("%w: %s", models.ErrAlreadySold, id)
}
