package main

import (
	"context"
	"expvar"
	"log"
	"runtime"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ikoral/burnbox/internal/chat"
	"github.com/ikoral/burnbox/internal/infrastructure/configs"
	"github.com/ikoral/burnbox/internal/infrastructure/events"
	"github.com/ikoral/burnbox/internal/infrastructure/kv"
	"github.com/ikoral/burnbox/internal/infrastructure/ratelimiter"
	"github.com/ikoral/burnbox/internal/infrastructure/tracing"
	"github.com/ikoral/burnbox/internal/presentation/api"
	"github.com/ikoral/burnbox/internal/presentation/handler/health"
	"github.com/ikoral/burnbox/internal/presentation/handler/messages"
	"github.com/ikoral/burnbox/internal/presentation/handler/rooms"
	"github.com/ikoral/burnbox/internal/presentation/handler/stream"
)

const serviceName = "burnbox-api"

func main() {
	tracerCfg := tracing.NewDefaultConfig(serviceName)

	sh, err := tracing.InitTracer(tracerCfg)
	if err != nil {
		log.Fatalf("Failed to initialize the tracer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer sh(ctx)

	logger := zap.Must(zap.NewProduction()).Sugar()
	defer logger.Sync()

	configPath := configs.DetermineConfigPath()
	cfg, err := configs.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	client := redis.NewClient(&redis.Options{
		Addr:            cfg.Redis.Addr,
		Username:        cfg.Redis.Username,
		Password:        cfg.Redis.Password,
		DB:              cfg.Redis.DB,
		MaxRetries:      cfg.Redis.MaxRetries,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Fatalf("Failed to reach redis at %s: %v", cfg.Redis.Addr, err)
	}
	logger.Infow("connected to redis", "addr", cfg.Redis.Addr)

	store := kv.NewRedisStore(client)
	defer store.Close()

	bus := events.NewRedisBus(client, store, cfg.History.MaxLength, cfg.History.MaxAge, logger)

	registry := chat.NewRegistry(store, cfg.Room.Lifetime)
	gate := chat.NewGate(store, registry)
	expiry := chat.NewSynchronizer(store, registry)
	messageStore := chat.NewMessages(store, expiry, bus)
	destroyer := chat.NewDestroyer(store, gate, bus)

	roomsHandler := rooms.NewHandler(registry, gate, destroyer, logger)
	messagesHandler := messages.NewHandler(gate, messageStore, logger)
	streamHandler := stream.NewHandler(gate, bus, logger)
	healthHandler := health.NewHandler()

	rl := ratelimiter.NewFixedWindowRateLimiter(cfg.RateLimiter.RequestsPerTimeFrame, cfg.RateLimiter.TimeFrame)
	defer rl.Close()

	app := api.NewApplication(*cfg, *roomsHandler, *messagesHandler, *streamHandler, *healthHandler, logger, rl)

	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	mux := app.Mount()
	logger.Fatal(app.Run(mux))
}
