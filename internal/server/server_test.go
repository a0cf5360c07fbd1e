package server

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/danilomotos/moto-admin/internal/api/handlers"
	"github.com/danilomotos/moto-admin/internal/api/middleware"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// denyAll — middleware аутентификации, отклоняющий все запросы.
func denyAll(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
}

func newTestRouter() http.Handler {
	logger := testLogger()
	return NewRouter(Handlers{
		Health:       handlers.NewHealthHandler(nil, nil, nil),
		Auth:         handlers.NewAuthHandler(nil, nil, nil, logger),
		Motos:        handlers.NewMotosHandler(nil, logger),
		Photos:       handlers.NewPhotosHandler(nil, nil, 0, logger),
		Catalog:      handlers.NewCatalogHandler(nil, logger),
		RequireAuth:  denyAll,
		LoginLimiter: middleware.NewRateLimiter(1, 1).Middleware(),
	}, logger)
}

func TestRouter_PublicAndProtected(t *testing.T) {
	router := newTestRouter()

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"liveness", http.MethodGet, "/health/live", http.StatusOK},
		{"readiness без зависимостей", http.MethodGet, "/health/ready", http.StatusServiceUnavailable},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK},
		{"список записей", http.MethodGet, "/api/v1/motos", http.StatusUnauthorized},
		{"сохранение записи", http.MethodPut, "/api/v1/motos/cg-160", http.StatusUnauthorized},
		{"загрузка фотографий", http.MethodPost, "/api/v1/motos/cg-160/photos", http.StatusUnauthorized},
		{"удаление фотографии", http.MethodDelete, "/api/v1/motos/cg-160/photos/1.jpg", http.StatusUnauthorized},
		{"состояние редактора", http.MethodGet, "/api/v1/editor", http.StatusUnauthorized},
		{"сессия", http.MethodGet, "/api/v1/auth/session", http.StatusUnauthorized},
		{"неизвестный путь", http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("%s %s = %d, ожидается %d", tt.method, tt.path, rec.Code, tt.want)
			}
		})
	}
}

func TestRouter_LoginRateLimited(t *testing.T) {
	router := newTestRouter()

	// Первый запрос проходит лимит и отклоняется валидацией (пустое тело)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("первый вход = %d, ожидается 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("второй вход = %d, ожидается 429", rec.Code)
	}
}
