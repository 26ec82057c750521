package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mcoot/coursebattle/internal/api"
	"github.com/mcoot/coursebattle/internal/factory"
	pgstorage "github.com/mcoot/coursebattle/internal/storage/postgres"
	redisstorage "github.com/mcoot/coursebattle/internal/storage/redis"
)

func main() {
	// A missing .env is fine
	_ = godotenv.Load()

	// Set up logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(os.Getenv("LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	// Build factory config from environment
	cfg := factory.Config{
		Logger:      logger,
		StorageType: os.Getenv("STORAGE_TYPE"),
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = redisURL
		cfg.RedisConfig = &redisCfg
	}

	switch cfg.StorageType {
	case factory.StorageTypeRedis:
		if cfg.RedisConfig == nil {
			logger.Error("REDIS_URL required when STORAGE_TYPE=redis")
			os.Exit(1)
		}
	case factory.StorageTypePostgres:
		databaseURL := os.Getenv("DATABASE_URL")
		if databaseURL == "" {
			logger.Error("DATABASE_URL required when STORAGE_TYPE=postgres")
			os.Exit(1)
		}
		pgCfg := pgstorage.DefaultConfig()
		pgCfg.URL = databaseURL
		cfg.PostgresConfig = &pgCfg
	}

	exitCode := 0
	defer func() { os.Exit(exitCode) }()

	// Create application factory
	app, err := factory.New(cfg)
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		exitCode = 1
		return
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("failed to close application", slog.String("error", err.Error()))
		}
	}()

	router := api.NewRouter(api.RouterConfig{
		Logger:         logger,
		AuthService:    app.AuthService,
		RoomService:    app.RoomService,
		HubManager:     app.HubManager,
		AllowedOrigins: splitList(os.Getenv("ALLOWED_ORIGINS")),
	})

	serverConfig := api.DefaultServerConfig()
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			logger.Error("invalid PORT", slog.String("port", port))
			exitCode = 1
			return
		}
		serverConfig.Port = p
	}
	server := api.NewServer(router, serverConfig, logger)

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app.RunBackground(ctx)

	logger.Info("server starting",
		slog.String("addr", server.Addr()),
		slog.String("storage", cfg.StorageType))

	if err := server.Run(ctx); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		exitCode = 1
		return
	}

	logger.Info("server stopped")
}

func logLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
