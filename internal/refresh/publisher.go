package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/bytedance/sonic"
)

// Publisher sends refresh events, keyed by dataset so events for one dataset
// stay ordered within a partition.
type Publisher struct {
	logger   *slog.Logger
	topic    string
	source   string
	producer sarama.SyncProducer
	now      func() time.Time
}

// NewPublisher connects a synchronous producer to cfg.Brokers.
func NewPublisher(cfg Config, source string, logger *slog.Logger) (*Publisher, error) {
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_1_0_0
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3
	prod, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("create producer: %w", err)
	}
	return NewPublisherWith(prod, cfg.Topic, source, logger), nil
}

// NewPublisherWith wraps an existing producer.
func NewPublisherWith(prod sarama.SyncProducer, topic, source string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{logger: logger, topic: topic, source: source, producer: prod, now: time.Now}
}

// Publish sends one event for dataset. op is OpInvalidate or OpRefresh.
func (p *Publisher) Publish(ctx context.Context, op, dataset string) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	ev := Event{Version: 1, Op: op, Dataset: dataset, TS: p.now().UTC(), Source: p.source}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	b, err := sonic.Marshal(ev)
	if err != nil {
		return Event{}, fmt.Errorf("encode event: %w", err)
	}
	part, off, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(dataset),
		Value: sarama.ByteEncoder(b),
	})
	if err != nil {
		return Event{}, fmt.Errorf("send %s event for %s: %w", op, dataset, err)
	}
	p.logger.Info("refresh event published", "dataset", dataset, "op", op, "partition", part, "offset", off)
	return ev, nil
}

func (p *Publisher) Close() error {
	if p.producer == nil {
		return errors.New("refresh: publisher not initialised")
	}
	return p.producer.Close()
}
