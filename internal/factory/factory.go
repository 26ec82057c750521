package factory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mcoot/coursebattle/internal/api/sse"
	"github.com/mcoot/coursebattle/internal/dependencies/clock"
	"github.com/mcoot/coursebattle/internal/dependencies/random"
	"github.com/mcoot/coursebattle/internal/services/auth"
	"github.com/mcoot/coursebattle/internal/services/room"
	"github.com/mcoot/coursebattle/internal/storage"
	"github.com/mcoot/coursebattle/internal/storage/memory"
	pgstorage "github.com/mcoot/coursebattle/internal/storage/postgres"
	redisstorage "github.com/mcoot/coursebattle/internal/storage/redis"
)

// Storage type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypeRedis    = "redis"
	StorageTypePostgres = "postgres"
)

// HubSweepInterval is how often idle SSE hubs are closed
const HubSweepInterval = time.Minute

// App contains all wired application components
type App struct {
	// Storage is the change-publishing store every service writes through
	Storage storage.Storage
	Feed    storage.Feed

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// Services
	AuthService *auth.Service
	RoomService *room.Service
	HubManager  *sse.HubManager

	logger  *slog.Logger
	closers []io.Closer
}

// Config holds configuration for the application factory
type Config struct {
	// AuthConfig holds configuration for the auth service (optional)
	// If zero value, defaults to auth.DefaultConfig()
	AuthConfig auth.Config
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory", "redis" or "postgres")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings. Required if StorageType is
	// "redis"; with "postgres" it moves the change feed onto Redis pub/sub.
	RedisConfig *redisstorage.Config
	// PostgresConfig holds database settings (required if StorageType is "postgres")
	PostgresConfig *pgstorage.Config
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	var (
		store   storage.Storage
		feed    storage.Feed
		closers []io.Closer
	)

	switch storageType {
	case StorageTypeMemory:
		store = memory.New()
		feed = memory.NewFeed(logger)

	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		redisStore, err := redisstorage.New(*cfg.RedisConfig)
		if err != nil {
			return nil, err
		}
		store = redisStore
		feed = redisstorage.NewFeed(redisStore.Client(), logger)
		closers = append(closers, redisStore)

	case StorageTypePostgres:
		if cfg.PostgresConfig == nil {
			return nil, errors.New("PostgresConfig required when StorageType is postgres")
		}
		pgStore, err := pgstorage.New(*cfg.PostgresConfig, logger)
		if err != nil {
			return nil, err
		}
		store = pgStore
		closers = append(closers, pgStore)

		if cfg.RedisConfig != nil {
			opts, err := goredis.ParseURL(cfg.RedisConfig.URL)
			if err != nil {
				_ = pgStore.Close()
				return nil, err
			}
			client := goredis.NewClient(opts)
			feed = redisstorage.NewFeed(client, logger)
			closers = append(closers, client)
		} else {
			feed = memory.NewFeed(logger)
		}

	default:
		return nil, errors.New("invalid StorageType: must be 'memory', 'redis' or 'postgres'")
	}

	// Use default auth config if not provided
	authCfg := cfg.AuthConfig
	if authCfg.SessionDuration == 0 {
		authCfg = auth.DefaultConfig()
	}

	app := newWithDependencies(store, feed, clock.New(), random.New(), authCfg, logger)
	app.closers = closers
	return app, nil
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(store storage.Storage, feed storage.Feed, clk clock.Clock, rnd random.Random, authCfg auth.Config, logger *slog.Logger) *App {
	published := storage.WithChangeFeed(store, feed, clk, logger)

	authService := auth.New(published, clk, logger, authCfg)
	roomService := room.New(published, feed, clk, rnd, logger)
	hubManager := sse.NewHubManager(feed, published, clk, logger)

	return &App{
		Storage:     published,
		Feed:        feed,
		Clock:       clk,
		Random:      rnd,
		AuthService: authService,
		RoomService: roomService,
		HubManager:  hubManager,
		logger:      logger,
	}
}

// RunBackground runs the session janitor and the SSE hub sweeper until ctx
// is done
func (a *App) RunBackground(ctx context.Context) {
	go a.AuthService.Run(ctx, 0)
	go a.HubManager.Run(ctx, HubSweepInterval)
}

// Close releases backend connections. It is safe to call more than once.
func (a *App) Close() error {
	a.HubManager.CloseAll()

	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
