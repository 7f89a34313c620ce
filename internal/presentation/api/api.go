package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/ikoral/burnbox/internal/infrastructure/configs"
	"github.com/ikoral/burnbox/internal/infrastructure/ratelimiter"
	healthHandler "github.com/ikoral/burnbox/internal/presentation/handler/health"
	messagesHandler "github.com/ikoral/burnbox/internal/presentation/handler/messages"
	roomsHandler "github.com/ikoral/burnbox/internal/presentation/handler/rooms"
	streamHandler "github.com/ikoral/burnbox/internal/presentation/handler/stream"
)

type Application struct {
	config          configs.Config
	roomsHandler    roomsHandler.Handler
	messagesHandler messagesHandler.Handler
	streamHandler   streamHandler.Handler
	healthHandler   healthHandler.Handler
	logger          *zap.SugaredLogger
	ratelimiter     ratelimiter.Limiter
}

func NewApplication(
	config configs.Config,
	roomsHandler roomsHandler.Handler,
	messagesHandler messagesHandler.Handler,
	streamHandler streamHandler.Handler,
	healthHandler healthHandler.Handler,
	logger *zap.SugaredLogger,
	ratelimiter ratelimiter.Limiter,
) *Application {
	return &Application{
		config:          config,
		roomsHandler:    roomsHandler,
		messagesHandler: messagesHandler,
		streamHandler:   streamHandler,
		healthHandler:   healthHandler,
		logger:          logger,
		ratelimiter:     ratelimiter,
	}
}

func (app *Application) Mount() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(app.rateLimiterMiddleware)
	r.Use(app.enableCors)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "burnbox.http")
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/room", func(r chi.Router) {
			r.Post("/create", app.roomsHandler.CreateRoomHandler)
			r.Post("/join", app.roomsHandler.JoinRoomHandler)
			r.Get("/ttl", app.roomsHandler.TTLHandler)
			r.Delete("/", app.roomsHandler.DestroyRoomHandler)

			r.Get("/{roomId}/ws", app.streamHandler.StreamHandler)
		})

		r.Post("/messages", app.messagesHandler.CreateMessageHandler)
		r.Get("/messages", app.messagesHandler.ListMessagesHandler)

		r.Get("/health", app.healthHandler.GetHealth)
		r.Get("/healthz", app.healthHandler.GetHealth)
		r.Get("/ready", app.healthHandler.GetHealth)
		r.Get("/live", app.healthHandler.GetHealth)
	})

	return r
}

func (app *Application) Run(mux http.Handler) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", app.config.HTTP.Host, app.config.HTTP.Port),
		Handler:      mux,
		WriteTimeout: app.config.HTTP.WriteTimeout,
		ReadTimeout:  app.config.HTTP.ReadTimeout,
		IdleTimeout:  time.Minute,
	}

	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Infow("signal caught", "signal", s.String())

		shutdown <- srv.Shutdown(ctx)
	}()

	app.logger.Infow("server has started", "addr", srv.Addr)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Infow("server has stopped", "addr", srv.Addr)

	return nil
}
