package domain

import "time"

// DefaultHistoryCapacity bounds PriceRecord.History.
const DefaultHistoryCapacity = 100

// DefaultHistoryLimit is used by Board.GetHistory when the caller passes limit <= 0.
const DefaultHistoryLimit = 50

// Direction represents the price movement direction
type Direction int

const (
	DirectionSame Direction = 0
	DirectionUp   Direction = +1
	DirectionDown Direction = -1
)

func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "up"
	case DirectionDown:
		return "down"
	default:
		return "same"
	}
}

// PriceTick is one normalized price observation. Treat it as immutable:
// use NewPriceTick so the condition codes are not shared with the caller.
type PriceTick struct {
	Symbol     Symbol   `json:"symbol"`
	Price      float64  `json:"price"`
	Timestamp  int64    `json:"timestamp"` // upstream event time, unix ms
	Volume     float64  `json:"volume"`
	Conditions []string `json:"conditions,omitempty"`

	// Change24h is a percent change supplied by the upstream, valid when HasChange24h.
	Change24h    float64 `json:"change_24h,omitempty"`
	HasChange24h bool    `json:"-"`
}

// NewPriceTick builds a tick with its own copy of conditions.
func NewPriceTick(symbol Symbol, price float64, ts int64, volume float64, conditions []string) PriceTick {
	var conds []string
	if len(conditions) > 0 {
		conds = make([]string, len(conditions))
		copy(conds, conditions)
	}
	return PriceTick{
		Symbol:     symbol,
		Price:      price,
		Timestamp:  ts,
		Volume:     volume,
		Conditions: conds,
	}
}

// WithChange24h returns a copy of t carrying an upstream supplied 24h change.
func (t PriceTick) WithChange24h(pct float64) PriceTick {
	t.Change24h = pct
	t.HasChange24h = true
	return t
}

// HistoryPoint is one entry of a symbol's bounded price history.
type HistoryPoint struct {
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

// PriceRecord is the per-symbol state owned by Board.
type PriceRecord struct {
	Current    PriceTick
	Previous   *PriceTick
	History    []HistoryPoint
	Change24h  *float64
	LastUpdate int64 // ingestion wall clock, unix ms
	Direction  Direction

	has bool
}

// apply folds a new tick into the record. now is the ingestion time in unix ms.
func (r *PriceRecord) apply(t PriceTick, now int64, capacity int) {
	if r.has {
		prev := r.Current
		r.Previous = &prev
		switch {
		case t.Price > prev.Price:
			r.Direction = DirectionUp
		case t.Price < prev.Price:
			r.Direction = DirectionDown
		default:
			r.Direction = DirectionSame
		}
	}

	r.Current = t
	r.LastUpdate = now
	r.has = true
	if t.HasChange24h {
		c := t.Change24h
		r.Change24h = &c
	}

	r.History = append(r.History, HistoryPoint{Price: t.Price, Timestamp: t.Timestamp})
	if over := len(r.History) - capacity; over > 0 {
		// shift in place so the backing array does not keep growing
		n := copy(r.History, r.History[over:])
		r.History = r.History[:n]
	}
}

// Change returns the tick-to-tick percent change, falling back to the
// upstream 24h change, then 0.
func (r *PriceRecord) Change() float64 {
	if r.Previous != nil && r.Previous.Price != 0 {
		return (r.Current.Price - r.Previous.Price) / r.Previous.Price * 100
	}
	if r.Change24h != nil {
		return *r.Change24h
	}
	return 0
}

// StaleAt reports whether the record was last updated more than maxAge
// before now (unix ms). A record that never saw a tick is stale.
func (r *PriceRecord) StaleAt(now int64, maxAge time.Duration) bool {
	if r.LastUpdate == 0 {
		return true
	}
	return now-r.LastUpdate > maxAge.Milliseconds()
}

// clone returns a deep copy safe to hand to readers.
func (r *PriceRecord) clone() PriceRecord {
	out := PriceRecord{
		Current:    r.Current,
		LastUpdate: r.LastUpdate,
		Direction:  r.Direction,
		has:        r.has,
	}
	if len(r.Current.Conditions) > 0 {
		out.Current.Conditions = append([]string(nil), r.Current.Conditions...)
	}
	if r.Previous != nil {
		p := *r.Previous
		out.Previous = &p
	}
	if r.Change24h != nil {
		c := *r.Change24h
		out.Change24h = &c
	}
	out.History = make([]HistoryPoint, len(r.History))
	copy(out.History, r.History)
	return out
}
