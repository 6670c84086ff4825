package svc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	appcontainer "tickerhub/internal/application/container"
	"tickerhub/internal/application/port"
	"tickerhub/internal/application/service"
	"tickerhub/internal/application/usecase/monitor"
	"tickerhub/internal/domain"
	"tickerhub/internal/infrastructure/config"
	infracontainer "tickerhub/internal/infrastructure/container"
	"tickerhub/internal/infrastructure/exchange"
	"tickerhub/internal/infrastructure/exchange/coingecko"
	"tickerhub/internal/infrastructure/exchange/finnhub"
	"tickerhub/internal/infrastructure/metrics"
	"tickerhub/internal/infrastructure/websocket"
	"tickerhub/internal/interfaces/console"
	"tickerhub/internal/interfaces/httpapi"
)

// ServiceContext is the composition root: it owns every component and is
// the only place that knows how they fit together.
type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	Sink port.Sink

	infra   *infracontainer.Container
	app     *appcontainer.Container
	metrics *metrics.Metrics
	manager *websocket.Manager

	closerChain []func() error
}

func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		Sink:        console.NewSink(),
		metrics:     metrics.New(),
		closerChain: make([]func() error, 0),
	}

	if err := sc.initializeComponents(); err != nil {
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

func (sc *ServiceContext) initializeComponents() error {
	infra, err := infracontainer.New(sc.Config)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorageInitFailed, err)
	}
	sc.infra = infra
	sc.closerChain = append(sc.closerChain, infra.Close)

	cfg := sc.Config
	board := domain.NewBoard(domain.WithHistoryCapacity(cfg.History.Capacity))
	binanceSymbols := exchange.BinanceSymbols()
	router := service.NewRouter(cfg.Routing.Prefixes, cfg.Routing.DefaultUpstream,
		service.WithCanonicalizer(binanceSymbols.Prefix(), binanceSymbols.Canonicalize),
	)

	sc.app = appcontainer.New(appcontainer.Deps{
		Board:       board,
		Router:      router,
		Repo:        infra.Repository(),
		Publisher:   infra.Publisher(),
		Preferences: infra.Preferences(),
		Factory:     sc.buildFactory,
		Lookups:     sc.buildLookups(),
		PriceOptions: []service.PriceServiceOption{
			service.WithTickObserver(sc.metrics.ObserveTick),
		},
		SupervisorOptions: []service.SupervisorOption{
			service.WithRetryConfig(service.RetryConfig{
				MaxRetries:   cfg.Supervisor.MaxRetries,
				InitialDelay: time.Duration(cfg.Supervisor.InitialBackoffMs) * time.Millisecond,
				MaxDelay:     time.Duration(cfg.Supervisor.MaxBackoffMs) * time.Millisecond,
			}),
			service.WithStateObserver(sc.metrics.ObserveState),
		},
		WatchlistOptions: []service.WatchlistOption{
			service.WithDefaultSymbols(cfg.Symbols.List),
		},
	})

	// builds the manager through the factory hook
	if sc.app.Supervisor() == nil || len(sc.manager.Upstreams()) == 0 {
		return ErrNoFeedsEnabled
	}

	log.Info().
		Strs("feeds", sc.manager.Upstreams()).
		Strs("routes", router.Upstreams()).
		Msg("all components initialized")
	return nil
}

func (sc *ServiceContext) buildFactory(sink port.TickSink) port.ConnectionFactory {
	sc.manager = websocket.NewManager(sc.Config.Feeds, sink,
		websocket.WithDropHandler(sc.metrics.ObserveDrop),
		websocket.WithResubscribeDelay(sc.Config.ResubscribeDelay()),
	)
	return sc.manager
}

func (sc *ServiceContext) buildLookups() []port.MetadataLookup {
	md := sc.Config.Metadata
	if !md.Enabled {
		return nil
	}
	lookups := []port.MetadataLookup{
		coingecko.NewRESTClient(md.CoinGeckoURL, md.RequestsPerSec),
	}
	if key := sc.Config.Feeds["finnhub"].APIKey; key != "" {
		lookups = append(lookups, finnhub.NewRESTClient(md.FinnhubURL, key, md.RequestsPerSec))
	} else {
		log.Warn().Msg("finnhub api key missing, symbol search limited to coingecko")
	}
	return lookups
}

func (sc *ServiceContext) App() *appcontainer.Container {
	return sc.app
}

func (sc *ServiceContext) Metrics() *metrics.Metrics {
	return sc.metrics
}

// HTTPHandler serves the read/control API and /metrics.
func (sc *ServiceContext) HTTPHandler() http.Handler {
	return httpapi.NewHandler(httpapi.Deps{
		Board:        sc.app.Board(),
		Status:       sc.app.Supervisor(),
		Watchlist:    sc.app.WatchlistService(),
		Search:       sc.app.SearchService(),
		Metrics:      sc.metrics.Handler(),
		StaleAfter:   sc.Config.StaleAfter(),
		HistoryLimit: sc.Config.History.DefaultLimit,
	})
}

// BuildMonitorServiceDeps renders the watchlist, refreshed at the saved update interval.
func (sc *ServiceContext) BuildMonitorServiceDeps() monitor.ServiceDeps {
	watchlist := sc.app.WatchlistService()
	return monitor.ServiceDeps{
		Board:         sc.app.Board(),
		Symbols:       watchlist.Symbols,
		RefreshEvery:  time.Duration(watchlist.Settings().UpdateIntervalMs) * time.Millisecond,
		PrintEveryMin: sc.Config.App.PrintEveryMin,
		StaleAfter:    sc.Config.StaleAfter(),
		Sink:          sc.Sink,
		Snapshots:     sc.app.SnapshotService(),
	}
}

// Run loads the watchlist, connects every routed upstream and blocks in the
// console monitor until ctx is done. Feeds are disconnected before returning.
func (sc *ServiceContext) Run(ctx context.Context) error {
	watchlist := sc.app.WatchlistService()
	if err := watchlist.Load(ctx); err != nil {
		return fmt.Errorf("load watchlist: %w", err)
	}

	go func() {
		if err := sc.app.PriceService().Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("price mirror exited")
		}
	}()

	supervisor := sc.app.Supervisor()
	supervisor.ConnectAll(ctx, watchlist.Symbols())
	defer supervisor.DisconnectAll()

	if addr := sc.Config.App.HTTPAddr; addr != "" {
		srv := &http.Server{Addr: addr, Handler: sc.HTTPHandler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info().Str("addr", addr).Msg("http api listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("http api stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	err := monitor.NewService(sc.BuildMonitorServiceDeps()).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases resources in reverse order of creation.
func (sc *ServiceContext) Close() error {
	var firstErr error
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil {
			log.Error().Err(err).Msg("error closing resource")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	sc.closerChain = nil
	return firstErr
}
