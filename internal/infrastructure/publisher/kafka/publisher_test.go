package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickerhub/internal/domain"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublishTickKeyedBySymbol(t *testing.T) {
	w := &fakeWriter{}
	p := &Publisher{writer: w, topic: DefaultTopic}

	tick := domain.NewPriceTick("BINANCE:BTC-USD", 70000, 1700000000000, 0.5, nil).WithChange24h(2.5)
	require.NoError(t, p.PublishTick(context.Background(), "binance", tick))
	require.NoError(t, p.PublishTick(context.Background(), "finnhub", domain.NewPriceTick("AAPL", 189.5, 1, 10, nil)))

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "BINANCE:BTC-USD", string(w.msgs[0].Key))

	var got TickMessage
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "binance", got.Upstream)
	assert.Equal(t, 70000.0, got.Price)
	require.NotNil(t, got.Change24h)
	assert.Equal(t, 2.5, *got.Change24h)

	var aapl TickMessage
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &aapl))
	assert.Nil(t, aapl.Change24h)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishTickWrapsWriterError(t *testing.T) {
	boom := errors.New("broker unreachable")
	p := &Publisher{writer: &fakeWriter{err: boom}, topic: DefaultTopic}

	err := p.PublishTick(context.Background(), "finnhub", domain.NewPriceTick("AAPL", 1, 1, 0, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "AAPL")
}

func TestNewDefaultsTopic(t *testing.T) {
	p := New([]string{"localhost:9092"}, "")
	assert.Equal(t, DefaultTopic, p.Topic())
	require.NoError(t, p.Close())
}
