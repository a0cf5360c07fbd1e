// Пакет server — HTTP-серверы Moto Admin и Photo Worker с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на балансировщике.
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

	"github.com/danilomotos/moto-admin/internal/api/handlers"
	"github.com/danilomotos/moto-admin/internal/api/middleware"
)

// Server — HTTP-сервер.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// New создаёт HTTP-сервер на порту port.
func New(port int, handler http.Handler, shutdownTimeout time.Duration, logger *slog.Logger) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer:      srv,
		shutdownTimeout: shutdownTimeout,
		logger:          logger,
	}
}

// Handlers — обработчики Moto Admin.
type Handlers struct {
	Health  *handlers.HealthHandler
	Auth    *handlers.AuthHandler
	Motos   *handlers.MotosHandler
	Photos  *handlers.PhotosHandler
	Catalog *handlers.CatalogHandler

	// RequireAuth — middleware аутентификации администратора
	RequireAuth func(http.Handler) http.Handler
	// LoginLimiter — ограничение попыток входа (nil — без ограничения)
	LoginLimiter func(http.Handler) http.Handler
}

// NewRouter создаёт маршруты Moto Admin.
// Health, metrics, каталог, вход и выход доступны без аутентификации.
func NewRouter(h Handlers, logger *slog.Logger) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Get("/metrics", h.Health.GetMetrics)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/catalog", h.Catalog.ListCatalog)
		r.Get("/catalog/{id}", h.Catalog.GetCatalogItem)

		r.Group(func(r chi.Router) {
			if h.LoginLimiter != nil {
				r.Use(h.LoginLimiter)
			}
			r.Post("/auth/login", h.Auth.Login)
		})
		r.Post("/auth/logout", h.Auth.Logout)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireAuth)

			r.Get("/auth/session", h.Auth.Session)
			r.Get("/editor", h.Motos.GetEditor)

			r.Get("/motos", h.Motos.ListMotos)
			r.Get("/motos/{id}", h.Motos.GetMoto)
			r.Put("/motos/{id}", h.Motos.PutMoto)
			r.Patch("/motos/{id}/status", h.Motos.PatchMotoStatus)
			r.Delete("/motos/{id}", h.Motos.DeleteMoto)

			r.Get("/motos/{id}/photos", h.Photos.GetPhotos)
			r.Post("/motos/{id}/photos", h.Photos.UploadPhotos)
			r.Delete("/motos/{id}/photos", h.Photos.DeletePhotos)
			r.Put("/motos/{id}/photos/{name}", h.Photos.UploadSlot)
			r.Delete("/motos/{id}/photos/{name}", h.Photos.DeletePhoto)
		})
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
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

	// Ожидание сигнала завершения
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

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
