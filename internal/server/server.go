// Пакет server — HTTP-сервер AI Gateway с graceful shutdown.
// Без TLS — TLS termination на ingress.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	apierrors "github.com/bigkaa/goartstore/ai-gateway/internal/api/errors"
	"github.com/bigkaa/goartstore/ai-gateway/internal/api/handlers"
	"github.com/bigkaa/goartstore/ai-gateway/internal/api/middleware"
	"github.com/bigkaa/goartstore/ai-gateway/internal/config"
)

// corsMaxAge — время кэширования preflight-ответа браузером (секунды).
const corsMaxAge = 300

// Handlers — обработчики маршрутов сервера.
type Handlers struct {
	Gateway  *handlers.GatewayHandler
	Datasets *handlers.DatasetsHandler
	Health   *handlers.HealthHandler
}

// Server — HTTP-сервер AI Gateway.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с маршрутами и middleware.
// auth — middleware проверки Bearer-токена для /gateway/upload и /datasets.
func New(cfg *config.Config, logger *slog.Logger, h Handlers, auth func(http.Handler) http.Handler) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(cfg, logger, h, auth),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает chi-роутер.
// Health и /metrics не ограничиваются по частоте.
func NewRouter(cfg *config.Config, logger *slog.Logger, h Handlers, auth func(http.Handler) http.Handler) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())

	// Preflight обрабатывается до маршрутизации: OPTIONS-маршрутов нет
	if len(cfg.CORSAllowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           corsMaxAge,
		}))
	}

	router.NotFound(apierrors.NotFound)
	router.MethodNotAllowed(apierrors.MethodNotAllowed)

	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Get("/metrics", h.Health.GetMetrics)

	router.Group(func(r chi.Router) {
		if cfg.RateLimitRPM > 0 {
			r.Use(httprate.Limit(cfg.RateLimitRPM, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
			))
		}

		// Статический маршрут upload имеет приоритет над {capability}
		r.With(auth).Post("/gateway/upload", h.Gateway.Upload)
		r.Post("/gateway/{capability}", h.Gateway.Post)
		r.Get("/gateway/{capability}", h.Gateway.Get)

		r.With(auth).Get("/datasets", h.Datasets.List)
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	return s.Shutdown()
}

// Shutdown дожидается завершения активных запросов в пределах ShutdownTimeout.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
