// Точка входа Photo Worker — хранит фотографии записей в MinIO
// и обслуживает контракт /upload, /upload-batch, /list, /delete.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/danilomotos/moto-admin/internal/config"
	"github.com/danilomotos/moto-admin/internal/server"
	"github.com/danilomotos/moto-admin/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadWorker()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := config.SetupLogger(cfg.Logging)
	logger.Info("Photo Worker запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("bucket", cfg.MinioBucket),
	)
	if cfg.APIKey == "" {
		logger.Warn("PW_API_KEY не задан, запросы принимаются без API-ключа")
	}

	store, err := worker.NewMinioStore(cfg)
	if err != nil {
		logger.Error("Ошибка создания клиента MinIO", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = store.EnsureBucket(ctx)
	cancel()
	if err != nil {
		logger.Error("Ошибка подготовки bucket", slog.String("error", err.Error()))
		os.Exit(1)
	}

	handler := worker.NewHandler(store, cfg, logger)
	srv := server.New(cfg.Port, handler.Router(), cfg.ShutdownTimeout, logger)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Photo Worker остановлен")
}
