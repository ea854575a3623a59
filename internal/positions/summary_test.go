package positions

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/trogers1052/position-exit-signals/internal/models"
)

func TestSummarize(t *testing.T) {
	views := []models.PositionView{
		{
			Position: models.Position{TotalAmount: decimal.NewFromInt(600000)},
			Signal: &models.SignalResult{
				UnrealizedPnl:  decimal.NewFromInt(-10000),
				Recommendation: models.RecommendationSell,
			},
		},
		{
			Position: models.Position{TotalAmount: decimal.NewFromInt(1000)},
			Signal: &models.SignalResult{
				UnrealizedPnl:  decimal.NewFromInt(250),
				Recommendation: models.RecommendationHold,
			},
		},
		{
			Position: models.Position{TotalAmount: decimal.NewFromInt(500)},
			Status:   models.ViewStatusUnavailable,
		},
	}

	s := Summarize(views)
	assert.Equal(t, 3, s.OpenPositions)
	assert.Equal(t, 1, s.SellSignals)
	assert.Equal(t, 1, s.HoldSignals)
	assert.Equal(t, 1, s.Unavailable)
	assert.True(t, s.TotalCost.Equal(decimal.NewFromInt(601500)))
	assert.True(t, s.TotalUnrealizedPnl.Equal(decimal.NewFromInt(-9750)))
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.OpenPositions)
	assert.True(t, s.TotalUnrealizedPnl.IsZero())
}

func TestSummarizeExits(t *testing.T) {
	exits := []models.ExitView{
		{Position: models.Position{ID: "a", TotalAmount: decimal.NewFromInt(600000)}},
		{Position: models.Position{ID: "b", TotalAmount: decimal.NewFromInt(1500)}},
	}

	s := SummarizeExits(exits, 7)
	assert.Equal(t, 7, s.Days)
	assert.Equal(t, 2, s.Exits)
	assert.True(t, decimal.NewFromInt(601500).Equal(s.TotalCost))

	empty := SummarizeExits(nil, 3)
	assert.Zero(t, empty.Exits)
	assert.True(t, empty.TotalCost.IsZero())
}
