package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/trogers1052/position-exit-signals/internal/models"
	"github.com/trogers1052/position-exit-signals/internal/positions"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
	Config() kafka.ReaderConfig
}

// BuyRecorder records a detected buy as a new open position
type BuyRecorder interface {
	RecordBuy(ctx context.Context, req positions.BuyRequest) (*models.Position, error)
}

// Deduper remembers which trades were already turned into positions
type Deduper interface {
	// FirstSeen marks key as seen and reports whether it was new
	FirstSeen(ctx context.Context, key string) (bool, error)
	// Forget unmarks key so a redelivery is processed again
	Forget(ctx context.Context, key string) error
}

// RedisDeduper implements Deduper with SETNX keys that expire after ttl
type RedisDeduper struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisDeduper creates a Redis-backed Deduper
func NewRedisDeduper(rdb redis.Cmdable, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{rdb: rdb, ttl: ttl}
}

func (d *RedisDeduper) key(k string) string {
	return "trades:seen:" + k
}

// FirstSeen implements Deduper
func (d *RedisDeduper) FirstSeen(ctx context.Context, key string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, d.key(key), 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark trade %s: %w", key, err)
	}
	return ok, nil
}

// Forget implements Deduper
func (d *RedisDeduper) Forget(ctx context.Context, key string) error {
	if err := d.rdb.Del(ctx, d.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to unmark trade %s: %w", key, err)
	}
	return nil
}

// Consumer turns TRADE_DETECTED buy events into open positions.
// Sells are logged only; closing a position stays an explicit user action.
type Consumer struct {
	reader   messageReader
	recorder BuyRecorder
	deduper  Deduper
	strategy models.StrategyType
}

// NewConsumer creates a new Kafka consumer for trade events. deduper may be nil.
func NewConsumer(brokers []string, topic, groupID string, recorder BuyRecorder, deduper Deduper, strategy models.StrategyType) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return &Consumer{
		reader:   reader,
		recorder: recorder,
		deduper:  deduper,
		strategy: strategy,
	}
}

// Start consumes messages until ctx is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	log.Info().Str("topic", c.reader.Config().Topic).Msg("Starting trade consumer")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("Trade consumer shutting down")
				return c.reader.Close()
			}
			log.Error().Err(err).Msg("Error reading message")
			continue
		}

		if err := c.processMessage(ctx, msg); err != nil {
			log.Error().Err(err).Int("partition", msg.Partition).Int64("offset", msg.Offset).
				Msg("Error processing trade message")
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event models.TradeEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal trade event: %w", err)
	}

	if event.EventType != models.EventTradeDetected {
		log.Debug().Str("event_type", event.EventType).Msg("Ignoring event type")
		return nil
	}

	switch strings.ToUpper(event.Data.Side) {
	case "BUY":
	case "SELL":
		log.Info().Str("symbol", event.Data.Symbol).Str("order_id", event.Data.OrderID).
			Msg("Sell detected; positions are closed manually")
		return nil
	default:
		return fmt.Errorf("invalid trade side: %s", event.Data.Side)
	}

	if event.Data.OrderID == "" {
		return fmt.Errorf("trade event from %s has no order id", event.Source)
	}

	req, err := c.buyRequest(event)
	if err != nil {
		return fmt.Errorf("failed to convert trade %s: %w", event.Data.OrderID, err)
	}

	key := event.Source + ":" + event.Data.OrderID
	if c.deduper != nil {
		first, err := c.deduper.FirstSeen(ctx, key)
		if err != nil {
			return err
		}
		if !first {
			log.Info().Str("trade", key).Msg("Trade already recorded, skipping")
			return nil
		}
	}

	p, err := c.recorder.RecordBuy(ctx, req)
	if err != nil {
		// Let a redelivery retry anything that was not the trade's own fault
		var verr *positions.ValidationError
		if c.deduper != nil && !errors.As(err, &verr) {
			if ferr := c.deduper.Forget(ctx, key); ferr != nil {
				log.Warn().Err(ferr).Str("trade", key).Msg("Failed to unmark trade")
			}
		}
		return fmt.Errorf("failed to record buy for trade %s: %w", key, err)
	}

	log.Info().Str("trade", key).Str("position_id", p.ID).Str("ticker", p.Ticker).
		Str("shares", p.Shares.String()).Str("total_amount", p.TotalAmount.String()).
		Msg("Recorded position from trade")
	return nil
}

// buyRequest maps a trade event to a BuyRequest. Fees are part of the
// position's cost.
func (c *Consumer) buyRequest(event models.TradeEvent) (positions.BuyRequest, error) {
	data := event.Data

	quantity, err := decimal.NewFromString(data.Quantity)
	if err != nil {
		return positions.BuyRequest{}, fmt.Errorf("invalid quantity %s: %w", data.Quantity, err)
	}

	total, err := decimal.NewFromString(data.TotalNotional)
	if err != nil {
		price, perr := decimal.NewFromString(data.AveragePrice)
		if perr != nil {
			return positions.BuyRequest{}, fmt.Errorf("invalid price %s: %w", data.AveragePrice, perr)
		}
		total = quantity.Mul(price)
	}

	if data.Fees != "" {
		if fees, err := decimal.NewFromString(data.Fees); err == nil {
			total = total.Add(fees)
		}
	}

	return positions.BuyRequest{
		Ticker:       data.Symbol,
		Shares:       quantity,
		TotalAmount:  total,
		EntryDate:    executedAt(event),
		StrategyType: string(c.strategy),
		Notes:        fmt.Sprintf("%s order %s", event.Source, data.OrderID),
	}, nil
}

// executedAt prefers the fill time, then the event time, then now
func executedAt(event models.TradeEvent) time.Time {
	candidates := []string{event.Timestamp}
	if event.Data.ExecutedAt != nil {
		candidates = append([]string{*event.Data.ExecutedAt}, candidates...)
	}
	for _, s := range candidates {
		if s == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
		if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
			return t
		}
	}
	return time.Now()
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
