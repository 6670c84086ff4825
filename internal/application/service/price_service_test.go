package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"tickerhub/internal/application/port"
	"tickerhub/internal/domain"
)

type mockRepository struct {
	mu           sync.Mutex
	priceUpdates map[string]float64
	snapshots    []string
	fail         bool
}

func newMockRepository() *mockRepository {
	return &mockRepository{priceUpdates: make(map[string]float64)}
}

func (m *mockRepository) UpsertLatestPrice(ctx context.Context, upstream, symbol string, price float64, ts int64) error {
	if m.fail {
		return errors.New("storage down")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priceUpdates[upstream+"|"+symbol] = price
	return nil
}

func (m *mockRepository) InsertSnapshot(ctx context.Context, ts int64, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, payload)
	return nil
}

func (m *mockRepository) Close() error {
	return nil
}

func (m *mockRepository) price(key string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.priceUpdates[key]
	return p, ok
}

type mockPublisher struct {
	mu    sync.Mutex
	ticks []string
}

func (p *mockPublisher) PublishTick(ctx context.Context, upstream string, t port.PriceTick) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ticks = append(p.ticks, upstream+"|"+t.Symbol)
	return nil
}

func (p *mockPublisher) Close() error { return nil }

func (p *mockPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ticks)
}

func TestPriceServiceUpdatePrice(t *testing.T) {
	mock := newMockRepository()
	svc := NewPriceService(domain.NewBoard(), DefaultRouter(), WithMirror(mock, nil))

	ctx := context.Background()
	err := svc.UpdatePrice(ctx, "binance", "BINANCE:BTC-USD", 45000.0, 1234567890)

	if err != nil {
		t.Fatalf("UpdatePrice failed: %v", err)
	}

	key := "binance|BINANCE:BTC-USD"
	if price, exists := mock.price(key); !exists || price != 45000.0 {
		t.Errorf("expected price 45000.0, got %v", price)
	}
}

func TestPriceServiceAppliesAndMirrors(t *testing.T) {
	board := domain.NewBoard()
	repo := newMockRepository()
	pub := &mockPublisher{}

	var (
		mu     sync.Mutex
		counts = map[string]int{}
	)
	svc := NewPriceService(board, DefaultRouter(), WithMirror(repo, pub), WithTickObserver(func(upstream string) {
		mu.Lock()
		counts[upstream]++
		mu.Unlock()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()

	svc.ApplyTick(domain.NewPriceTick("BINANCE:BTC-USD", 70000, 1, 0.5, nil))
	svc.ApplyTick(domain.NewPriceTick("AAPL", 189.5, 2, 10, nil))

	if board.GetPrice("AAPL") != 189.5 {
		t.Fatalf("tick not applied to the board synchronously")
	}
	waitFor(t, func() bool {
		_, ok := repo.price("finnhub|AAPL")
		return ok && pub.count() == 2
	})
	if p, _ := repo.price("binance|BINANCE:BTC-USD"); p != 70000 {
		t.Errorf("binance price = %v", p)
	}

	mu.Lock()
	defer mu.Unlock()
	if counts["binance"] != 1 || counts["finnhub"] != 1 {
		t.Errorf("tick observer counts = %v", counts)
	}
}

func TestPriceServiceMirrorNeverBlocks(t *testing.T) {
	board := domain.NewBoard()
	repo := newMockRepository()
	repo.fail = true
	svc := NewPriceService(board, DefaultRouter(), WithMirror(repo, nil), WithMirrorQueue(1))

	// nobody drains the queue
	for i := 1; i <= 10; i++ {
		svc.ApplyTick(domain.NewPriceTick("AAPL", float64(i), int64(i), 0, nil))
	}
	if board.GetPrice("AAPL") != 10 {
		t.Fatalf("expected last price 10, got %v", board.GetPrice("AAPL"))
	}

	// failing storage is logged, not fatal
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = svc.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
}
