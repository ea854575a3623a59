package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/trogers1052/position-exit-signals/internal/api"
	"github.com/trogers1052/position-exit-signals/internal/database"
	"github.com/trogers1052/position-exit-signals/internal/ingest"
	"github.com/trogers1052/position-exit-signals/internal/kafka"
	"github.com/trogers1052/position-exit-signals/internal/models"
	"github.com/trogers1052/position-exit-signals/internal/positions"
	"github.com/trogers1052/position-exit-signals/internal/pricing"
)

// withApp runs fn with a wired app and a context cancelled on SIGINT/SIGTERM
func withApp(opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, opts.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("Shutdown incomplete")
		}
	}()
	return fn(ctx, a)
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var withConsumer bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app) error {
				if withConsumer {
					consumer, err := newTradeConsumer(a)
					if err != nil {
						return err
					}
					go func() {
						if err := consumer.Start(ctx); err != nil {
							log.Error().Err(err).Msg("Trade consumer stopped")
						}
					}()
				}

				srv := &http.Server{
					Addr:              a.cfg.Server.Addr(),
					Handler:           api.SetupRoutes(api.NewHandler(a.manager), a.metricsHandler()),
					ReadHeaderTimeout: 10 * time.Second,
				}

				errCh := make(chan error, 1)
				go func() {
					log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
					errCh <- srv.ListenAndServe()
				}()

				select {
				case err := <-errCh:
					if errors.Is(err, http.ErrServerClosed) {
						return nil
					}
					return err
				case <-ctx.Done():
				}

				log.Info().Msg("Shutting down HTTP server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
		},
	}
	cmd.Flags().BoolVar(&withConsumer, "with-consumer", false, "Also consume trade events from Kafka")
	return cmd
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.New(opts.cfg.Database.ConnectionString())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.RunMigrations(); err != nil {
				return err
			}
			log.Info().Msg("Migrations applied")
			return nil
		},
	}
}

func newInventoryCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "List open positions with exit signals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app) error {
				views, err := a.manager.ListOpenPositions(ctx)
				if err != nil {
					return err
				}
				summary := positions.Summarize(views)

				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(map[string]interface{}{"positions": views, "summary": summary})
				}
				return printInventory(cmd.OutOrStdout(), views, summary)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func newExitsCmd(opts *rootOptions) *cobra.Command {
	var (
		days   int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "exits",
		Short: "List positions sold in the last few days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app) error {
				exits, err := a.manager.ListRecentExits(ctx, days)
				if err != nil {
					return err
				}
				summary := positions.SummarizeExits(exits, days)

				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(map[string]interface{}{"exits": exits, "summary": summary})
				}
				return printExits(cmd.OutOrStdout(), exits, summary)
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", positions.DefaultExitWindowDays, "Window in days (3, 7, 14, 30, ...)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func newBuyCmd(opts *rootOptions) *cobra.Command {
	var (
		ticker   string
		shares   string
		amount   string
		date     string
		strategy string
		notes    string
	)

	cmd := &cobra.Command{
		Use:   "buy",
		Short: "Record a new position",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := positions.BuyRequest{Ticker: ticker, StrategyType: strategy, Notes: notes}

			var err error
			if req.Shares, err = decimal.NewFromString(shares); err != nil {
				return &positions.ValidationError{Field: "shares", Reason: "not a number"}
			}
			if req.TotalAmount, err = decimal.NewFromString(amount); err != nil {
				return &positions.ValidationError{Field: "total_amount", Reason: "not a number"}
			}
			req.EntryDate = time.Now()
			if date != "" {
				if req.EntryDate, err = time.Parse(time.DateOnly, date); err != nil {
					return &positions.ValidationError{Field: "entry_date", Reason: "expected YYYY-MM-DD"}
				}
			}

			return withApp(opts, func(ctx context.Context, a *app) error {
				p, err := a.manager.RecordBuy(ctx, req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "recorded %s %s x %s (%s) as %s\n",
					p.Ticker, p.Shares, p.AverageCost().StringFixed(2), p.StrategyType, p.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&ticker, "ticker", "", "Ticker symbol, e.g. 2330 or 2330.TW")
	cmd.Flags().StringVar(&shares, "shares", "", "Number of shares")
	cmd.Flags().StringVar(&amount, "amount", "", "Total amount paid")
	cmd.Flags().StringVar(&date, "date", "", "Entry date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&strategy, "strategy", string(models.StrategyBasic), "Exit strategy: BASIC or ADD")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form notes")
	cmd.MarkFlagRequired("ticker")
	cmd.MarkFlagRequired("shares")
	cmd.MarkFlagRequired("amount")
	return cmd
}

func newSellCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sell <position-id>",
		Short: "Mark a position as sold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app) error {
				if err := a.manager.MarkSold(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "marked %s sold\n", args[0])
				return nil
			})
		},
	}
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Copy daily prices for open tickers into the local price table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app) error {
				if len(a.remote) == 0 {
					return errors.New("ingest needs a remote price backend (twse or alpaca) in PRICING_BACKENDS")
				}

				job := &ingest.Job{
					Tickers:   a.manager,
					Source:    pricing.NewFallback(a.metrics, a.remote...),
					Sink:      a.db,
					Lookback:  a.cfg.Ingest.Lookback,
					Retention: time.Duration(a.cfg.Ingest.RetentionDays) * 24 * time.Hour,
				}
				if a.cache != nil {
					job.Cache = a.cache
				}

				report, err := job.Run(ctx)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "ingested %d bars for %d tickers, pruned %d\n",
					report.Bars, report.Tickers, report.Pruned)
				failed := make([]string, 0, len(report.Failed))
				for t := range report.Failed {
					failed = append(failed, t)
				}
				sort.Strings(failed)
				for _, t := range failed {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", t, report.Failed[t])
				}
				return nil
			})
		},
	}
}

func newConsumeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Turn brokerage trade events into positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app) error {
				consumer, err := newTradeConsumer(a)
				if err != nil {
					return err
				}
				return consumer.Start(ctx)
			})
		},
	}
}

func newTradeConsumer(a *app) (*kafka.Consumer, error) {
	if len(a.cfg.Kafka.Brokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is not set")
	}
	strategy, err := models.ParseStrategyType(a.cfg.Signals.DefaultStrategy)
	if err != nil {
		return nil, err
	}

	var deduper kafka.Deduper
	if a.redis != nil {
		deduper = kafka.NewRedisDeduper(a.redis, a.cfg.Redis.DedupTTL)
	} else {
		log.Warn().Msg("Redis unavailable; redelivered trades may create duplicate positions")
	}

	return kafka.NewConsumer(a.cfg.Kafka.Brokers, a.cfg.Kafka.TradesTopic, a.cfg.Kafka.GroupID,
		a.manager, deduper, strategy), nil
}
