package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"tickerhub/internal/application/port"
	"tickerhub/internal/infrastructure/config"
	kafkapub "tickerhub/internal/infrastructure/publisher/kafka"
	"tickerhub/internal/infrastructure/storage"
	"tickerhub/internal/infrastructure/storage/composite"
	pgrepo "tickerhub/internal/infrastructure/storage/postgres"
	redisrepo "tickerhub/internal/infrastructure/storage/redis"
	sqliterepo "tickerhub/internal/infrastructure/storage/sqlite"
)

// Container owns every storage and messaging resource and closes them in
// reverse order of creation.
type Container struct {
	cfg         *config.Config
	memory      *storage.MemoryStore
	redisClient *redis.Client
	redisRepo   *redisrepo.Repo
	sqliteRepo  *sqliterepo.Repo
	pgRepo      *pgrepo.Repo
	publisher   *kafkapub.Publisher
	closeOnce   sync.Once
	closerChain []func() error
}

func New(cfg *config.Config) (*Container, error) {
	c := &Container{
		cfg:         cfg,
		memory:      storage.NewMemoryStore(),
		closerChain: make([]func() error, 0),
	}

	if cfg.Storage.Enabled {
		if err := c.initStorage(); err != nil {
			// release whatever was opened before the failure
			_ = c.Close()
			return nil, err
		}
	}

	return c, nil
}

func (c *Container) initStorage() error {
	if c.cfg.Storage.Redis.Enabled {
		if err := c.initRedis(); err != nil {
			return fmt.Errorf("redis init failed: %w", err)
		}
	}

	if c.cfg.Storage.SQLite.Enabled {
		if err := c.initSQLite(); err != nil {
			return fmt.Errorf("sqlite init failed: %w", err)
		}
	}

	if c.cfg.Storage.Postgres.Enabled {
		if err := c.initPostgres(); err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
	}

	if c.cfg.Storage.Kafka.Enabled {
		c.initKafka()
	}

	return nil
}

func (c *Container) initRedis() error {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.cfg.Storage.Redis.Addr,
		Password: c.cfg.Storage.Redis.Password,
		DB:       c.cfg.Storage.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	c.redisClient = rdb
	ttl := time.Duration(c.cfg.Storage.Redis.TTLSeconds) * time.Second
	c.redisRepo = redisrepo.New(rdb, c.cfg.Storage.Redis.Prefix, ttl, c.cfg.Storage.Redis.Channel)

	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return rdb.Close()
	})

	log.Info().
		Str("addr", c.cfg.Storage.Redis.Addr).
		Int("db", c.cfg.Storage.Redis.DB).
		Msg("redis initialized")

	return nil
}

func (c *Container) initSQLite() error {
	repo, err := sqliterepo.New(c.cfg.Storage.SQLite.Path)
	if err != nil {
		return err
	}

	c.sqliteRepo = repo
	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing sqlite connection")
		return repo.Close()
	})

	log.Info().
		Str("path", c.cfg.Storage.SQLite.Path).
		Msg("sqlite initialized")

	return nil
}

func (c *Container) initPostgres() error {
	repo, err := pgrepo.New(c.cfg.Storage.Postgres.DSN)
	if err != nil {
		return err
	}

	c.pgRepo = repo
	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing postgres connection")
		return repo.Close()
	})

	log.Info().Msg("postgres initialized")
	return nil
}

// initKafka never dials: kafka-go connects lazily on the first write.
func (c *Container) initKafka() {
	pub := kafkapub.New(c.cfg.Storage.Kafka.Brokers, c.cfg.Storage.Kafka.Topic)
	c.publisher = pub
	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing kafka writer")
		return pub.Close()
	})

	log.Info().
		Strs("brokers", c.cfg.Storage.Kafka.Brokers).
		Str("topic", pub.Topic()).
		Msg("kafka publisher initialized")
}

func (c *Container) Config() *config.Config {
	return c.cfg
}

func (c *Container) RedisClient() *redis.Client {
	return c.redisClient
}

func (c *Container) RedisRepo() *redisrepo.Repo {
	return c.redisRepo
}

func (c *Container) SQLiteRepo() *sqliterepo.Repo {
	return c.sqliteRepo
}

func (c *Container) PostgresRepo() *pgrepo.Repo {
	return c.pgRepo
}

func (c *Container) MemoryStore() *storage.MemoryStore {
	return c.memory
}

// Repository fans price and snapshot writes out to every opened backend.
// Nil when storage is disabled.
func (c *Container) Repository() port.Repository {
	var repos []port.Repository
	if c.redisRepo != nil {
		repos = append(repos, c.redisRepo)
	}
	if c.sqliteRepo != nil {
		repos = append(repos, c.sqliteRepo)
	}
	if c.pgRepo != nil {
		repos = append(repos, c.pgRepo)
	}
	if len(repos) == 0 {
		return nil
	}
	return composite.New(repos...)
}

// Publisher is nil unless kafka is enabled.
func (c *Container) Publisher() port.TickPublisher {
	if c.publisher == nil {
		return nil
	}
	return c.publisher
}

// Preferences returns the configured watchlist/settings store. It falls back
// to memory when the selected backend was not opened.
func (c *Container) Preferences() port.PreferenceStore {
	switch c.cfg.Storage.Preferences {
	case config.PreferencesSQLite:
		if c.sqliteRepo != nil {
			return c.sqliteRepo
		}
	case config.PreferencesRedis:
		if c.redisRepo != nil {
			return c.redisRepo
		}
	}
	return c.memory
}

// Close releases all resources in LIFO order.
func (c *Container) Close() error {
	var err error
	c.closeOnce.Do(func() {
		for i := len(c.closerChain) - 1; i >= 0; i-- {
			if e := c.closerChain[i](); e != nil {
				log.Error().Err(e).Msg("error closing resource")
				if err == nil {
					err = e
				}
			}
		}
		log.Info().Msg("container closed")
	})
	return err
}
