package container

import (
	"tickerhub/internal/application/port"
	"tickerhub/internal/application/service"
	"tickerhub/internal/domain"
)

// FactoryBuilder creates the connection factory once the tick sink exists.
type FactoryBuilder func(sink port.TickSink) port.ConnectionFactory

// Deps are the collaborators the application layer is assembled from.
// Everything except Board and Router may be nil.
type Deps struct {
	Board       *domain.Board
	Router      *service.Router
	Repo        port.Repository
	Publisher   port.TickPublisher
	Preferences port.PreferenceStore
	Factory     FactoryBuilder
	Lookups     []port.MetadataLookup

	PriceOptions      []service.PriceServiceOption
	SupervisorOptions []service.SupervisorOption
	WatchlistOptions  []service.WatchlistOption
}

// Container builds application services lazily and hands out one instance each.
type Container struct {
	deps Deps

	priceService     *service.PriceService
	supervisor       *service.Supervisor
	snapshotService  *service.SnapshotService
	watchlistService *service.WatchlistService
	searchService    *service.SearchService
}

func New(deps Deps) *Container {
	if deps.Board == nil {
		deps.Board = domain.NewBoard()
	}
	if deps.Router == nil {
		deps.Router = service.DefaultRouter()
	}
	return &Container{deps: deps}
}

func (c *Container) Board() *domain.Board {
	return c.deps.Board
}

func (c *Container) Router() *service.Router {
	return c.deps.Router
}

func (c *Container) Repository() port.Repository {
	return c.deps.Repo
}

func (c *Container) PriceService() *service.PriceService {
	if c.priceService == nil {
		opts := c.deps.PriceOptions
		if c.deps.Repo != nil || c.deps.Publisher != nil {
			opts = append([]service.PriceServiceOption{service.WithMirror(c.deps.Repo, c.deps.Publisher)}, opts...)
		}
		c.priceService = service.NewPriceService(c.deps.Board, c.deps.Router, opts...)
	}
	return c.priceService
}

// Supervisor is nil when no connection factory was configured.
func (c *Container) Supervisor() *service.Supervisor {
	if c.supervisor == nil && c.deps.Factory != nil {
		factory := c.deps.Factory(c.PriceService())
		c.supervisor = service.NewSupervisor(c.deps.Router, factory, c.deps.SupervisorOptions...)
	}
	return c.supervisor
}

func (c *Container) SnapshotService() *service.SnapshotService {
	if c.snapshotService == nil {
		c.snapshotService = service.NewSnapshotService(c.deps.Repo, c.deps.Board)
	}
	return c.snapshotService
}

// WatchlistService subscribes through the Supervisor when one exists.
func (c *Container) WatchlistService() *service.WatchlistService {
	if c.watchlistService == nil {
		var subs service.SymbolSubscriber
		if sup := c.Supervisor(); sup != nil {
			subs = sup
		}
		opts := append([]service.WatchlistOption{service.WithSymbolCanonicalizer(c.deps.Router.Canonical)}, c.deps.WatchlistOptions...)
		c.watchlistService = service.NewWatchlistService(c.deps.Preferences, subs, opts...)
	}
	return c.watchlistService
}

func (c *Container) SearchService() *service.SearchService {
	if c.searchService == nil {
		c.searchService = service.NewSearchService(c.deps.Lookups...)
	}
	return c.searchService
}
