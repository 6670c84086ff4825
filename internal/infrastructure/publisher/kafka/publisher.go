package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"tickerhub/internal/application/port"
)

// DefaultTopic receives one message per applied tick.
const DefaultTopic = "tickerhub.ticks"

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TickMessage is the JSON value of a published tick.
type TickMessage struct {
	Upstream  string   `json:"upstream"`
	Symbol    string   `json:"symbol"`
	Price     float64  `json:"price"`
	Volume    float64  `json:"volume"`
	Timestamp int64    `json:"timestamp"`
	Change24h *float64 `json:"change_24h,omitempty"`
}

// Publisher writes ticks to a topic keyed by symbol, so every tick of a
// symbol lands on the same partition in order.
type Publisher struct {
	writer messageWriter
	topic  string
}

func New(brokers []string, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &Publisher{writer: w, topic: topic}
}

func (p *Publisher) Topic() string { return p.topic }

func (p *Publisher) PublishTick(ctx context.Context, upstream string, t port.PriceTick) error {
	msg := TickMessage{
		Upstream:  upstream,
		Symbol:    t.Symbol,
		Price:     t.Price,
		Volume:    t.Volume,
		Timestamp: t.Timestamp,
	}
	if t.HasChange24h {
		c := t.Change24h
		msg.Change24h = &c
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("kafka encode %s: %w", t.Symbol, err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(t.Symbol), Value: b}); err != nil {
		return fmt.Errorf("kafka publish %s: %w", t.Symbol, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ port.TickPublisher = (*Publisher)(nil)
