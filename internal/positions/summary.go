package positions

import (
	"github.com/shopspring/decimal"
	"github.com/trogers1052/position-exit-signals/internal/models"
)

// Summarize totals an inventory view. Unavailable rows count toward open
// positions and cost but not toward P&L.
func Summarize(views []models.PositionView) models.InventorySummary {
	s := models.InventorySummary{
		TotalCost:          decimal.Zero,
		TotalUnrealizedPnl: decimal.Zero,
	}
	for _, v := range views {
		s.OpenPositions++
		s.TotalCost = s.TotalCost.Add(v.Position.TotalAmount)

		if v.Signal == nil {
			s.Unavailable++
			continue
		}
		s.TotalUnrealizedPnl = s.TotalUnrealizedPnl.Add(v.Signal.UnrealizedPnl)
		switch v.Signal.Recommendation {
		case models.RecommendationSell:
			s.SellSignals++
		case models.RecommendationHold:
			s.HoldSignals++
		}
	}
	return s
}

// SummarizeExits counts and totals a recent exits view
func SummarizeExits(exits []models.ExitView, days int) models.ExitSummary {
	s := models.ExitSummary{Days: days, TotalCost: decimal.Zero}
	for _, e := range exits {
		s.Exits++
		s.TotalCost = s.TotalCost.Add(e.Position.TotalAmount)
	}
	return s
}
