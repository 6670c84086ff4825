package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"tickerhub/internal/application/port"
	"tickerhub/internal/domain"
)

type ServiceDeps struct {
	Board *domain.Board
	// Symbols returns the symbols to render, usually the watchlist.
	Symbols       func() []string
	RefreshEvery  time.Duration
	PrintEveryMin int
	StaleAfter    time.Duration
	Sink          port.Sink
	Snapshots     SnapshotCapturer
}

// Service renders the live console line from Board change notifications and
// writes a periodic snapshot.
type Service struct {
	deps ServiceDeps
	fmt  *Formatter
}

func NewService(deps ServiceDeps) *Service {
	if deps.RefreshEvery <= 0 {
		deps.RefreshEvery = time.Second
	}
	if deps.PrintEveryMin <= 0 {
		deps.PrintEveryMin = 5
	}
	return &Service{
		deps: deps,
		fmt:  NewFormatter(deps.StaleAfter),
	}
}

func (s *Service) Run(ctx context.Context) error {
	if s.deps.Board == nil || s.deps.Sink == nil || s.deps.Symbols == nil {
		return errors.New("monitor: board, sink and symbols are required")
	}

	events, cancel := s.deps.Board.Watch(256)
	defer cancel()

	// snapshot ticker
	snapTicker := time.NewTicker(time.Duration(s.deps.PrintEveryMin) * time.Minute)
	defer snapTicker.Stop()

	// the live line is redrawn at most once per refresh period
	refresh := time.NewTicker(s.deps.RefreshEvery)
	defer refresh.Stop()
	dirty := false

	// initial live line
	_ = s.deps.Sink.WriteLive(s.fmt.Render(s.deps.Board, s.deps.Symbols(), RenderLive))

	for {
		select {
		case <-ctx.Done():
			_ = s.deps.Sink.NewLine()
			return ctx.Err()

		case now := <-snapTicker.C:
			s.snapshot(ctx, now)

		case _, ok := <-events:
			if !ok {
				return nil
			}
			dirty = true

		case <-refresh.C:
			if !dirty {
				continue
			}
			dirty = false
			_ = s.deps.Sink.WriteLive(s.fmt.Render(s.deps.Board, s.deps.Symbols(), RenderLive))
		}
	}
}

func (s *Service) snapshot(ctx context.Context, now time.Time) {
	symbols := s.deps.Symbols()
	line := s.fmt.Render(s.deps.Board, symbols, RenderSnapshot)
	_ = s.deps.Sink.WriteSnapshot(now, line)

	if s.deps.Snapshots == nil {
		return
	}
	if _, err := s.deps.Snapshots.Capture(ctx, now.UnixMilli(), symbols); err != nil {
		log.Warn().Err(err).Msg("snapshot not persisted")
	}
}
