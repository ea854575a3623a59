package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/trogers1052/position-exit-signals/internal/models"
)

func printInventory(w io.Writer, views []models.PositionView, summary models.InventorySummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "TICKER\tSTRATEGY\tSHARES\tAVG COST\tPRICE\tEXIT\tP&L\tP&L %\tDAYS\tSIGNAL\tID")
	for _, v := range views {
		p := v.Position
		if v.Signal == nil {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t-\t-\t-\t-\t%d\t%s\t%s\n",
				p.Ticker, p.StrategyType, p.Shares, v.AverageCost.StringFixed(2),
				v.DaysHeld, v.ErrorCode, p.ID)
			continue
		}
		s := v.Signal
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			p.Ticker, p.StrategyType, p.Shares, v.AverageCost.StringFixed(2),
			s.CurrentPrice.StringFixed(2), s.ExitPrice.StringFixed(2),
			s.UnrealizedPnl.StringFixed(0), s.UnrealizedPnlPct.StringFixed(2),
			v.DaysHeld, s.Recommendation, p.ID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\n%d open, %d SELL, %d HOLD, %d unavailable; cost %s, unrealized %s\n",
		summary.OpenPositions, summary.SellSignals, summary.HoldSignals, summary.Unavailable,
		summary.TotalCost.StringFixed(0), summary.TotalUnrealizedPnl.StringFixed(0))
	return err
}

func printExits(w io.Writer, exits []models.ExitView, summary models.ExitSummary) error {
	if len(exits) == 0 {
		_, err := fmt.Fprintf(w, "no exits in the last %d days\n", summary.Days)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOLD\tTICKER\tSTRATEGY\tSHARES\tAVG COST\tCOST\tDAYS HELD\tID")
	for _, e := range exits {
		p := e.Position
		sold := "-"
		if p.SoldAt != nil {
			sold = p.SoldAt.Format(time.DateOnly)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			sold, p.Ticker, p.StrategyType, p.Shares, e.AverageCost.StringFixed(2),
			p.TotalAmount.StringFixed(0), e.DaysHeld, p.ID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\n%d exits in the last %d days; cost %s\n",
		summary.Exits, summary.Days, summary.TotalCost.StringFixed(0))
	return err
}
