package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"tickerhub/internal/application/port"
	"tickerhub/internal/domain"
)

const defaultMirrorQueue = 4096

// PriceService is the TickSink handed to feed connections. It applies every
// tick to the Board and mirrors it, best effort, to storage and the bus.
type PriceService struct {
	board  *domain.Board
	router *Router
	repo   port.Repository
	pub    port.TickPublisher
	onTick func(upstream string)
	queue  chan domain.PriceTick
}

type PriceServiceOption func(*PriceService)

// WithMirror enables the persistence mirror. Either argument may be nil.
func WithMirror(repo port.Repository, pub port.TickPublisher) PriceServiceOption {
	return func(s *PriceService) {
		s.repo = repo
		s.pub = pub
	}
}

// WithTickObserver is called once per applied tick with its upstream.
func WithTickObserver(fn func(upstream string)) PriceServiceOption {
	return func(s *PriceService) { s.onTick = fn }
}

func WithMirrorQueue(n int) PriceServiceOption {
	return func(s *PriceService) {
		if n > 0 {
			s.queue = make(chan domain.PriceTick, n)
		}
	}
}

func NewPriceService(board *domain.Board, router *Router, opts ...PriceServiceOption) *PriceService {
	s := &PriceService{
		board:  board,
		router: router,
		queue:  make(chan domain.PriceTick, defaultMirrorQueue),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ApplyTick never blocks on storage: when the mirror queue is full the tick
// is only applied to the Board.
func (s *PriceService) ApplyTick(t port.PriceTick) {
	s.board.ApplyTick(t)
	if s.onTick != nil {
		s.onTick(s.router.Route(t.Symbol))
	}
	if s.repo == nil && s.pub == nil {
		return
	}
	select {
	case s.queue <- t:
	default:
		log.Debug().Str("symbol", t.Symbol).Msg("mirror queue full, tick not persisted")
	}
}

// Run drains the mirror queue until ctx is done.
func (s *PriceService) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-s.queue:
			s.mirror(ctx, t)
		}
	}
}

func (s *PriceService) UpdatePrice(ctx context.Context, upstream, symbol string, price float64, ts int64) error {
	if s.repo == nil {
		return nil
	}
	return s.repo.UpsertLatestPrice(ctx, upstream, symbol, price, ts)
}

func (s *PriceService) mirror(ctx context.Context, t domain.PriceTick) {
	upstream := s.router.Route(t.Symbol)
	if s.repo != nil {
		if err := s.UpdatePrice(ctx, upstream, t.Symbol, t.Price, t.Timestamp); err != nil {
			log.Warn().Str("feed", upstream).Str("symbol", t.Symbol).Err(err).Msg("persist latest price")
		}
	}
	if s.pub != nil {
		if err := s.pub.PublishTick(ctx, upstream, t); err != nil {
			log.Warn().Str("feed", upstream).Str("symbol", t.Symbol).Err(err).Msg("publish tick")
		}
	}
}

var _ port.TickSink = (*PriceService)(nil)
