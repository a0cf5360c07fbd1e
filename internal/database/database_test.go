package database

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/danilomotos/moto-admin/internal/config"
)

// setupTestDB запускает PostgreSQL в Docker-контейнере через testcontainers.
func setupTestDB(t *testing.T) *config.Config {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("motos_test"),
		postgres.WithUsername("motos"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("MA_DB_HOST", host)
	t.Setenv("MA_DB_PORT", port.Port())
	t.Setenv("MA_DB_NAME", "motos_test")
	t.Setenv("MA_DB_USER", "motos")
	t.Setenv("MA_DB_PASSWORD", "test-password")
	t.Setenv("MA_DB_SSL_MODE", "disable")
	t.Setenv("MA_AUTH_URL", "http://localhost:9999")
	t.Setenv("MA_AUTH_ANON_KEY", "test")
	t.Setenv("MA_WORKER_URL", "http://localhost:8090")
	t.Setenv("MA_PUBLIC_ASSET_BASE", "http://localhost:8090/assets")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TestMigrate проверяет применение миграций и создание таблицы motos.
func TestMigrate(t *testing.T) {
	cfg := setupTestDB(t)
	logger := testLogger()

	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Migrate() вернул ошибку: %v", err)
	}
	// Повторное применение — без ошибки (ErrNoChange)
	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Повторный Migrate() вернул ошибку: %v", err)
	}

	ctx := context.Background()
	pool, err := Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	defer pool.Close()

	var exists bool
	err = pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = 'motos'
		)`).Scan(&exists)
	if err != nil {
		t.Fatalf("Ошибка проверки таблицы motos: %v", err)
	}
	if !exists {
		t.Error("Таблица motos не создана")
	}

	// Ограничение статуса
	_, err = pool.Exec(ctx, `INSERT INTO motos (id, status) VALUES ('x', 'alugada')`)
	if err == nil {
		t.Error("вставка недопустимого статуса должна завершиться ошибкой")
	}

	status, msg := NewReadinessChecker(pool).CheckReady()
	if status != "ok" {
		t.Errorf("CheckReady() status = %q, message = %q; ожидали ok", status, msg)
	}
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestReadinessChecker_Fake(t *testing.T) {
	if status, _ := NewReadinessChecker(fakePinger{}).CheckReady(); status != "ok" {
		t.Errorf("status = %q, ожидается ok", status)
	}
	if status, _ := NewReadinessChecker(fakePinger{err: errors.New("connection refused")}).CheckReady(); status != "fail" {
		t.Errorf("status = %q, ожидается fail", status)
	}
}
