package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/bytedance/sonic"

	obs "github.com/mohammed-shakir/opendata-map/internal/core/observability"
	"github.com/mohammed-shakir/opendata-map/internal/dataset"
)

// Target is the layer store as seen by the consumer.
type Target interface {
	Invalidate(ctx context.Context, name string) error
	Preload(ctx context.Context, names []string, parallel int) error
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	target Target
	dedupe *tsDedupe
}

func New(cfg Config, logger *slog.Logger, target Target) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Consumer{
		cfg:    cfg,
		logger: logger,
		target: target,
		dedupe: newTSDedupe(cfg.DedupeSize),
	}
}

// Start consumes refresh events until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	if c.target == nil {
		return errors.New("refresh: missing target")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}

	c.logger.Info("refresh consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil && ctx.Err() == nil {
			obs.IncRefreshEvent("consumer_error")
			c.logger.Error("consumer error", "err", err)
			select {
			case <-ctx.Done():
			case <-time.After(c.cfg.RetryWait):
			}
		}
		if ctx.Err() != nil {
			c.logger.Info("refresh consumer shutting down")
			return nil
		}
	}
}

// ProcessOne applies a single event. Malformed events, unknown datasets and
// stale events are logged and skipped; only a failed invalidation is returned
// so the message is redelivered.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	log := c.logger.With("topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)

	var ev Event
	if err := sonic.Unmarshal(msg.Value, &ev); err != nil {
		obs.IncRefreshEvent("decode_error")
		log.Warn("skipping undecodable refresh event", "err", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		obs.IncRefreshEvent("invalid")
		log.Warn("skipping invalid refresh event", "err", err)
		return nil
	}
	if c.dedupe.stale(ev.Dataset, ev.TS.UnixNano()) {
		obs.IncRefreshEvent("stale")
		log.Debug("skipping stale refresh event", "dataset", ev.Dataset, "ts", ev.TS)
		return nil
	}

	if err := c.target.Invalidate(ctx, ev.Dataset); err != nil {
		if errors.Is(err, dataset.ErrUnknown) {
			obs.IncRefreshEvent("unknown_dataset")
			log.Warn("skipping refresh for unknown dataset", "dataset", ev.Dataset)
			return nil
		}
		obs.IncRefreshEvent("error")
		return fmt.Errorf("invalidate %s: %w", ev.Dataset, err)
	}
	c.dedupe.applied(ev.Dataset, ev.TS.UnixNano())

	if ev.Op == OpRefresh {
		// failures are recorded in the store status and retried on demand
		_ = c.target.Preload(ctx, []string{ev.Dataset}, 1)
	}
	obs.IncRefreshEvent("applied")
	log.Info("dataset refreshed", "dataset", ev.Dataset, "op", ev.Op, "source", ev.Source)
	return nil
}
