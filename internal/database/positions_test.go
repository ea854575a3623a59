package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/position-exit-signals/internal/models"
)

var positionRowColumns = []string{
	"id", "ticker", "entry_date", "total_amount", "shares",
	"strategy_type", "is_sold", "notes", "sold_at", "created_at",
}

func TestAppendPosition(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()

	p := &models.Position{
		ID:           "11111111-1111-1111-1111-111111111111",
		Ticker:       "2330",
		EntryDate:    time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		TotalAmount:  decimal.NewFromInt(600000),
		Shares:       decimal.NewFromInt(1000),
		StrategyType: models.StrategyBasic,
		Notes:        "first lot",
	}

	t.Run("inserts row and stamps created_at", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO positions").
			WithArgs(p.ID, "2330", p.EntryDate, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), false, "first lot", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := db.AppendPosition(ctx, p)
		require.NoError(t, err)
		assert.False(t, p.CreatedAt.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps driver error", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO positions").WillReturnError(errors.New("connection reset"))

		err := db.AppendPosition(ctx, p)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to append position")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetAllPositions(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()

	entry := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	soldAt := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)
	created := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	t.Run("scans rows in order", func(t *testing.T) {
		rows := sqlmock.NewRows(positionRowColumns).
			AddRow("p1", "2330", entry, "600000", "1000", "BASIC", false, "", nil, created).
			AddRow("p2", "0050", entry, "150000.50", "1000", "ADD", true, "trim", soldAt, created.Add(time.Minute))
		mock.ExpectQuery("SELECT (.+) FROM positions ORDER BY created_at").WillReturnRows(rows)

		positions, err := db.GetAllPositions(ctx)
		require.NoError(t, err)
		require.Len(t, positions, 2)

		assert.Equal(t, "p1", positions[0].ID)
		assert.Equal(t, models.StrategyBasic, positions[0].StrategyType)
		assert.True(t, positions[0].TotalAmount.Equal(decimal.NewFromInt(600000)))
		assert.Nil(t, positions[0].SoldAt)

		assert.Equal(t, "p2", positions[1].ID)
		assert.Equal(t, models.StrategyAdd, positions[1].StrategyType)
		assert.True(t, positions[1].IsSold)
		require.NotNil(t, positions[1].SoldAt)
		assert.True(t, positions[1].SoldAt.Equal(soldAt))
		assert.True(t, positions[1].TotalAmount.Equal(decimal.RequireFromString("150000.50")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty table", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM positions").WillReturnRows(sqlmock.NewRows(positionRowColumns))

		positions, err := db.GetAllPositions(ctx)
		require.NoError(t, err)
		assert.Empty(t, positions)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetPositionByID(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows(positionRowColumns).
			AddRow("p1", "2330", time.Now(), "600000", "1000", "BASIC", false, "", nil, time.Now())
		mock.ExpectQuery("SELECT (.+) FROM positions WHERE id").WithArgs("p1").WillReturnRows(rows)

		p, err := db.GetPositionByID(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, "2330", p.Ticker)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing maps to ErrNotFound", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM positions WHERE id").WithArgs("nope").
			WillReturnRows(sqlmock.NewRows(positionRowColumns))

		_, err := db.GetPositionByID(ctx, "nope")
		assert.ErrorIs(t, err, models.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMarkPositionSold(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()
	soldAt := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	t.Run("open position", func(t *testing.T) {
		mock.ExpectExec("UPDATE positions SET is_sold").
			WithArgs("p1", soldAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, db.MarkPositionSold(ctx, "p1", soldAt))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already sold", func(t *testing.T) {
		mock.ExpectExec("UPDATE positions SET is_sold").
			WithArgs("p1", soldAt).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT is_sold FROM positions").WithArgs("p1").
			WillReturnRows(sqlmock.NewRows([]string{"is_sold"}).AddRow(true))

		err := db.MarkPositionSold(ctx, "p1", soldAt)
		assert.ErrorIs(t, err, models.ErrAlreadySold)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown id", func(t *testing.T) {
		mock.ExpectExec("UPDATE positions SET is_sold").
			WithArgs("ghost", soldAt).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT is_sold FROM positions").WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"is_sold"}))

		err := db.MarkPositionSold(ctx, "ghost", soldAt)
		assert.ErrorIs(t, err, models.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("update failure is not a domain error", func(t *testing.T) {
		mock.ExpectExec("UPDATE positions SET is_sold").WillReturnError(errors.New("deadlock detected"))

		err := db.MarkPositionSold(ctx, "p1", soldAt)
		require.Error(t, err)
		assert.NotErrorIs(t, err, models.ErrNotFound)
		assert.NotErrorIs(t, err, models.ErrAlreadySold)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPositionsIntegration(t *testing.T) {
	tdb := SetupTestDB(t)
	defer tdb.Cleanup(t)
	ctx := context.Background()

	newPosition := func(id, ticker string) *models.Position {
		return &models.Position{
			ID:           id,
			Ticker:       ticker,
			EntryDate:    time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
			TotalAmount:  decimal.RequireFromString("600000.25"),
			Shares:       decimal.NewFromInt(1000),
			StrategyType: models.StrategyBasic,
		}
	}

	t.Run("append then read back in order", func(t *testing.T) {
		tdb.TruncateAll(t)

		first := newPosition("11111111-1111-1111-1111-111111111111", "2330")
		second := newPosition("22222222-2222-2222-2222-222222222222", "0050")
		require.NoError(t, tdb.AppendPosition(ctx, first))
		require.NoError(t, tdb.AppendPosition(ctx, second))

		positions, err := tdb.GetAllPositions(ctx)
		require.NoError(t, err)
		require.Len(t, positions, 2)
		assert.Equal(t, first.ID, positions[0].ID)
		assert.Equal(t, second.ID, positions[1].ID)
		assert.True(t, positions[0].TotalAmount.Equal(first.TotalAmount))
	})

	t.Run("mark sold twice", func(t *testing.T) {
		tdb.TruncateAll(t)

		p := newPosition("33333333-3333-3333-3333-333333333333", "2330")
		require.NoError(t, tdb.AppendPosition(ctx, p))

		require.NoError(t, tdb.MarkPositionSold(ctx, p.ID, time.Now()))
		err := tdb.MarkPositionSold(ctx, p.ID, time.Now())
		assert.ErrorIs(t, err, models.ErrAlreadySold)

		got, err := tdb.GetPositionByID(ctx, p.ID)
		require.NoError(t, err)
		assert.True(t, got.IsSold)
		assert.NotNil(t, got.SoldAt)
	})

	t.Run("mark sold unknown id", func(t *testing.T) {
		tdb.TruncateAll(t)

		err := tdb.MarkPositionSold(ctx, "44444444-4444-4444-4444-444444444444", time.Now())
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("check constraint rejects bad strategy", func(t *testing.T) {
		tdb.TruncateAll(t)

		p := newPosition("55555555-5555-5555-5555-555555555555", "2330")
		p.StrategyType = "SWING"
		assert.Error(t, tdb.AppendPosition(ctx, p))
	})
}
