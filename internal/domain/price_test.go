package domain

import (
	"math"
	"testing"
	"time"
)

func TestPriceRecordDirection(t *testing.T) {
	var r PriceRecord

	r.apply(NewPriceTick("AAPL", 100, 1, 0, nil), 10, DefaultHistoryCapacity)
	if r.Direction != DirectionSame || r.Previous != nil {
		t.Fatalf("first tick: direction=%v previous=%v", r.Direction, r.Previous)
	}

	r.apply(NewPriceTick("AAPL", 101, 2, 0, nil), 11, DefaultHistoryCapacity)
	if r.Direction != DirectionUp {
		t.Errorf("expected up, got %v", r.Direction)
	}
	if r.Previous == nil || r.Previous.Price != 100 {
		t.Fatalf("expected previous price 100, got %+v", r.Previous)
	}

	r.apply(NewPriceTick("AAPL", 99, 3, 0, nil), 12, DefaultHistoryCapacity)
	if r.Direction != DirectionDown {
		t.Errorf("expected down, got %v", r.Direction)
	}
	if r.Previous.Price != 101 {
		t.Errorf("expected previous price 101, got %v", r.Previous.Price)
	}
}

func TestPriceRecordHistoryEviction(t *testing.T) {
	var r PriceRecord
	for i := 1; i <= 5; i++ {
		r.apply(NewPriceTick("X", float64(i), int64(i), 0, nil), int64(i), 3)
	}
	if len(r.History) != 3 {
		t.Fatalf("expected 3 points, got %d", len(r.History))
	}
	for i, want := range []float64{3, 4, 5} {
		if r.History[i].Price != want {
			t.Errorf("history[%d]=%v, want %v", i, r.History[i].Price, want)
		}
	}
}

func TestPriceRecordChangeFallback(t *testing.T) {
	var r PriceRecord
	r.apply(NewPriceTick("BINANCE:ETH-USD", 2000, 1, 0, nil).WithChange24h(3.5), 1, DefaultHistoryCapacity)
	if got := r.Change(); got != 3.5 {
		t.Fatalf("expected 24h fallback 3.5, got %v", got)
	}

	// a later tick without 24h data keeps the old value around but the local change wins
	r.apply(NewPriceTick("BINANCE:ETH-USD", 2100, 2, 0, nil), 2, DefaultHistoryCapacity)
	if got := r.Change(); math.Abs(got-5) > 1e-9 {
		t.Fatalf("expected tick-to-tick change 5, got %v", got)
	}
	if r.Change24h == nil || *r.Change24h != 3.5 {
		t.Errorf("change24h should be retained, got %v", r.Change24h)
	}
}

func TestNewPriceTickCopiesConditions(t *testing.T) {
	conds := []string{"1", "12"}
	tick := NewPriceTick("AAPL", 1, 1, 1, conds)
	conds[0] = "mutated"
	if tick.Conditions[0] != "1" {
		t.Fatalf("tick shares condition slice with caller")
	}
}

func TestSplitSymbol(t *testing.T) {
	cases := []struct {
		in, prefix, body string
	}{
		{"BINANCE:BTC-USD", "BINANCE", "BTC-USD"},
		{"AAPL", "", "AAPL"},
		{"OANDA:EUR_USD", "OANDA", "EUR_USD"},
		{"X:", "X", ""},
	}
	for _, c := range cases {
		p, b := SplitSymbol(c.in)
		if p != c.prefix || b != c.body {
			t.Errorf("SplitSymbol(%q) = %q,%q want %q,%q", c.in, p, b, c.prefix, c.body)
		}
		if c.body != "" && JoinSymbol(p, b) != c.in {
			t.Errorf("JoinSymbol roundtrip failed for %q", c.in)
		}
	}
}

func TestPriceRecordStaleAt(t *testing.T) {
	var r PriceRecord
	if !r.StaleAt(1000, time.Hour) {
		t.Fatalf("empty record should be stale")
	}
	r.apply(NewPriceTick("AAPL", 1, 1, 0, nil), 5000, DefaultHistoryCapacity)
	if r.StaleAt(5500, time.Second) {
		t.Errorf("record 500ms old reported stale")
	}
	if !r.StaleAt(7000, time.Second) {
		t.Errorf("record 2s old not reported stale")
	}
}
