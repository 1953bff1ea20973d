// Пакет server — HTTP-сервер File Gateway с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/file-gateway/internal/api/handlers"
	"github.com/bigkaa/goartstore/file-gateway/internal/api/middleware"
	"github.com/bigkaa/goartstore/file-gateway/internal/config"
)

// Handlers — набор обработчиков для маршрутизации.
type Handlers struct {
	Files    *handlers.FilesHandler
	Metadata *handlers.MetadataHandler
	Health   *handlers.HealthHandler
}

// Server — HTTP-сервер File Gateway.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
//
// Публичные маршруты (healthz, readyz, metrics) — без аутентификации.
// Все маршруты /api/v1 проходят через logging, metrics и auth middleware;
// операции записи дополнительно требуют scope file:write, операции
// чтения — file:read.
func New(cfg *config.Config, logger *slog.Logger, h Handlers, auth *middleware.Auth) *Server {
	router := chi.NewRouter()

	// Публичные endpoints
	router.Get("/healthz", h.Health.HealthLive)
	router.Get("/readyz", h.Health.HealthReady)
	router.Get("/metrics", h.Health.GetMetrics)

	// Защищённые endpoints
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequestLogger(logger))
		r.Use(middleware.MetricsMiddleware())
		r.Use(auth.Middleware())

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireScope(middleware.ScopeFileWrite))
			r.Post("/files", h.Files.Upload)
			r.Delete("/files/{file_id}", h.Files.Delete)
			r.Put("/metadata/{file_id}", h.Metadata.Update)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireScope(middleware.ScopeFileRead))
			r.Get("/files/{file_id}", h.Files.Download)
			r.Get("/metadata", h.Metadata.ListOwn)
			r.Get("/metadata/public", h.Metadata.ListPublic)
			r.Get("/metadata/search", h.Metadata.Search)
			r.Get("/metadata/{file_id}", h.Metadata.Get)
			r.Get("/stats", h.Metadata.Stats)
		})
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
		// WriteTimeout не задан: скачивание больших файлов
		// не должно обрываться по таймауту записи
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
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
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
