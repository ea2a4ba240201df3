package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/opendata-map/internal/dataset"
)

type fakeTarget struct {
	mu          sync.Mutex
	invalidated []string
	preloaded   []string
	failNext    bool
}

func (f *fakeTarget) Invalidate(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name == "bike_lanes" {
		return fmt.Errorf("%w: %q", dataset.ErrUnknown, name)
	}
	if f.failNext {
		f.failNext = false
		return errors.New("redis down")
	}
	f.invalidated = append(f.invalidated, name)
	return nil
}

func (f *fakeTarget) Preload(_ context.Context, names []string, _ int) error {
	f.mu.Lock()
	f.preloaded = append(f.preloaded, names...)
	f.mu.Unlock()
	return nil
}

type sess struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *sess) Claims() map[string][]int32 { return nil }
func (s *sess) MemberID() string           { return "" }
func (s *sess) GenerationID() int32        { return 0 }
func (s *sess) MarkMessage(m *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	s.marked = append(s.marked, m.Offset)
	s.mu.Unlock()
}
func (s *sess) ResetOffset(_ string, _ int32, _ int64, _ string) {}
func (s *sess) MarkOffset(_ string, _ int32, _ int64, _ string)  {}
func (s *sess) Context() context.Context                         { return s.ctx }
func (s *sess) Errors() <-chan error                             { return nil }
func (s *sess) Commit()                                          {}

type claim struct {
	msgs chan *sarama.ConsumerMessage
}

func (c *claim) Topic() string                            { return "opendata-refresh" }
func (c *claim) Partition() int32                         { return 0 }
func (c *claim) InitialOffset() int64                     { return 0 }
func (c *claim) HighWaterMarkOffset() int64               { return 0 }
func (c *claim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func eventBytes(op, ds string, ts time.Time) []byte {
	b, _ := json.Marshal(Event{Version: 1, Op: op, Dataset: ds, TS: ts, Source: "test"})
	return b
}

func msg(off int64, v []byte) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Topic: "opendata-refresh", Offset: off, Value: v}
}

func newConsumerForTest(tg Target) *Consumer {
	cfg := Config{Brokers: []string{"x"}, Topic: "opendata-refresh", GroupID: "g"}
	return New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), tg)
}

func TestConsumeClaim_MarksAfterWorkInOrder(t *testing.T) {
	tg := &fakeTarget{}
	c := newConsumerForTest(tg)

	g := &groupHandler{process: c.ProcessOne}
	s := &sess{ctx: t.Context()}
	ch := make(chan *sarama.ConsumerMessage, 3)
	ch <- msg(10, eventBytes(OpInvalidate, "outages", base))
	ch <- msg(11, eventBytes(OpRefresh, "rat_sightings", base))
	ch <- msg(12, []byte("{not json"))
	close(ch)

	if err := g.ConsumeClaim(s, &claim{msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim: %v", err)
	}
	if fmt.Sprint(s.marked) != "[10 11 12]" {
		t.Fatalf("marked=%v", s.marked)
	}
	if fmt.Sprint(tg.invalidated) != "[outages rat_sightings]" {
		t.Fatalf("invalidated=%v", tg.invalidated)
	}
	if fmt.Sprint(tg.preloaded) != "[rat_sightings]" {
		t.Fatalf("only refresh ops reload, got %v", tg.preloaded)
	}
}

func TestProcessOne_FailureIsNotMarkedAndRetrySucceeds(t *testing.T) {
	tg := &fakeTarget{failNext: true}
	c := newConsumerForTest(tg)

	g := &groupHandler{process: c.ProcessOne}
	s := &sess{ctx: t.Context()}
	ch := make(chan *sarama.ConsumerMessage, 1)
	ch <- msg(5, eventBytes(OpInvalidate, "outages", base))
	close(ch)

	if err := g.ConsumeClaim(s, &claim{msgs: ch}); err == nil {
		t.Fatalf("expected error from failed invalidation")
	}
	if len(s.marked) != 0 {
		t.Fatalf("failed message must not be marked: %v", s.marked)
	}

	// redelivery of the same event must not be treated as stale
	if err := c.ProcessOne(t.Context(), msg(5, eventBytes(OpInvalidate, "outages", base))); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if len(tg.invalidated) != 1 {
		t.Fatalf("invalidated=%v", tg.invalidated)
	}
}

func TestProcessOne_SkipsStaleAndUnknown(t *testing.T) {
	tg := &fakeTarget{}
	c := newConsumerForTest(tg)
	ctx := t.Context()

	for _, m := range []*sarama.ConsumerMessage{
		msg(1, eventBytes(OpInvalidate, "outages", base.Add(time.Minute))),
		msg(2, eventBytes(OpInvalidate, "outages", base)),
		msg(3, eventBytes(OpInvalidate, "outages", base.Add(time.Minute))),
		msg(4, eventBytes(OpInvalidate, "bike_lanes", base)),
		msg(5, eventBytes("truncate", "outages", base.Add(time.Hour))),
		msg(6, eventBytes(OpInvalidate, "outages", base.Add(time.Hour))),
	} {
		if err := c.ProcessOne(ctx, m); err != nil {
			t.Fatalf("offset %d: %v", m.Offset, err)
		}
	}
	if fmt.Sprint(tg.invalidated) != "[outages outages]" {
		t.Fatalf("invalidated=%v", tg.invalidated)
	}
}

func TestEventValidate(t *testing.T) {
	good := Event{Version: 1, Op: OpRefresh, Dataset: "outages", TS: base}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}
	for name, ev := range map[string]Event{
		"version": {Version: 2, Op: OpRefresh, Dataset: "outages", TS: base},
		"op":      {Version: 1, Op: "upsert", Dataset: "outages", TS: base},
		"dataset": {Version: 1, Op: OpRefresh, Dataset: "  ", TS: base},
		"ts":      {Version: 1, Op: OpRefresh, Dataset: "outages"},
	} {
		if err := ev.Validate(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestStart_RequiresTarget(t *testing.T) {
	c := New(Config{}, nil, nil)
	if err := c.Start(t.Context()); err == nil {
		t.Fatalf("expected error without target")
	}
}
