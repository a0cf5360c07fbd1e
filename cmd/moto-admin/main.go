// Точка входа Moto Admin — админка и публичный каталог Danilo Motos.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// создаёт клиентов Photo Worker и провайдера аутентификации, сервисный слой
// и API handlers, запускает topologymetrics и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/danilomotos/moto-admin/internal/admin"
	"github.com/danilomotos/moto-admin/internal/api/handlers"
	"github.com/danilomotos/moto-admin/internal/api/middleware"
	"github.com/danilomotos/moto-admin/internal/authclient"
	"github.com/danilomotos/moto-admin/internal/config"
	"github.com/danilomotos/moto-admin/internal/database"
	"github.com/danilomotos/moto-admin/internal/imageopt"
	"github.com/danilomotos/moto-admin/internal/repository"
	"github.com/danilomotos/moto-admin/internal/server"
	"github.com/danilomotos/moto-admin/internal/service"
	"github.com/danilomotos/moto-admin/internal/workerclient"
)

func main() {
	// 0. Локальный .env (если есть) — до чтения переменных окружения
	_ = godotenv.Load()

	// 1. Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg.Logging)
	logger.Info("Moto Admin запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if cfg.SessionSecret == "" {
		logger.Warn("MA_SESSION_SECRET не задан, сессии не сохраняются между рестартами")
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Клиент Photo Worker
	workerClient, err := workerclient.New(cfg.WorkerURL, cfg.WorkerAPIKey, cfg.WorkerTimeout, cfg.WorkerCACertPath, logger)
	if err != nil {
		logger.Error("Ошибка создания клиента Photo Worker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Клиент Photo Worker создан", slog.String("url", cfg.WorkerURL))

	// 6. Клиент провайдера аутентификации и менеджер сессий
	authClient := authclient.New(authclient.Config{
		BaseURL: cfg.AuthURL,
		AnonKey: cfg.AuthAnonKey,
		Timeout: cfg.AuthTimeout,
	}, logger)

	sessions, err := authclient.NewSessionManager(cfg.SessionSecret, cfg.SessionSecure)
	if err != nil {
		logger.Error("Ошибка создания менеджера сессий", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 7. Repository и сервисы
	motoRepo := repository.NewMotoRepository(pool)

	catalogSvc := service.NewCatalogService(motoRepo, cfg.PublicAssetBase, cfg.CatalogCacheTTL, logger)

	optimizer := imageopt.New(imageopt.Options{
		MaxWidth: cfg.ImageMaxWidth,
		Quality:  cfg.ImageQuality,
		MinBytes: cfg.ImageMinBytes,
	}, logger)

	// 8. Реестр контроллеров редактора: один на сессию.
	// Сохранение записи или изменение фотографий в любой сессии сбрасывает
	// кэши записей всех сессий и каталога.
	var registry *admin.Registry
	invalidate := func(string) {
		registry.InvalidateAll()
		catalogSvc.Invalidate()
	}

	photoSvc := service.NewPhotoService(workerClient, motoRepo, optimizer, service.PhotoServiceConfig{
		AssetBase:         cfg.PublicAssetBase,
		UploadConcurrency: cfg.UploadConcurrency,
		OnChange:          invalidate,
	}, logger)

	registry = admin.NewRegistry(admin.DefaultRegistrySize, authclient.SessionCookieMaxAge*time.Second, func() *admin.Controller {
		return admin.NewController(motoRepo, photoSvc, admin.Options{OnChange: invalidate}, logger)
	})

	// 9. Auth middleware (cookie-сессия или Bearer JWT)
	auth, err := middleware.NewAuth(sessions, authClient, cfg.AuthJWKSURL, cfg.AuthIssuer, cfg.AuthTimeout, logger)
	if err != nil {
		logger.Error("Ошибка создания auth middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Auth middleware инициализирован",
		slog.String("jwks_url", cfg.AuthJWKSURL),
		slog.String("issuer", cfg.AuthIssuer),
	)

	loginLimiter := middleware.NewRateLimiter(cfg.LoginRatePerMinute, cfg.LoginBurst)

	// 10. Readiness checkers (PostgreSQL, Photo Worker, JWKS)
	healthHandler := handlers.NewHealthHandler(
		database.NewReadinessChecker(pool),
		workerclient.NewReadinessChecker(workerClient, cfg.WorkerHealthPath),
		middleware.NewJWKSReadinessChecker(cfg.AuthJWKSURL, cfg.AuthTimeout),
	)

	// 11. topologymetrics — мониторинг зависимостей
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:        "moto-admin",
		Group:            cfg.DephealthGroup,
		DB:               pgDB,
		PgConnURL:        cfg.DatabaseURL(),
		WorkerURL:        cfg.WorkerURL,
		WorkerHealthPath: cfg.WorkerHealthPath,
		AuthJWKSURL:      cfg.AuthJWKSURL,
		CheckInterval:    cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		dephealthSvc = nil
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 12. HTTP-сервер
	router := server.NewRouter(server.Handlers{
		Health:       healthHandler,
		Auth:         handlers.NewAuthHandler(authClient, sessions, registry, logger),
		Motos:        handlers.NewMotosHandler(registry, logger),
		Photos:       handlers.NewPhotosHandler(photoSvc, motoRepo, handlers.DefaultMaxUploadBytes, logger),
		Catalog:      handlers.NewCatalogHandler(catalogSvc, logger),
		RequireAuth:  auth.Middleware(),
		LoginLimiter: loginLimiter.Middleware(),
	}, logger)

	srv := server.New(cfg.Port, router, cfg.ShutdownTimeout, logger)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 13. Остановка фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	logger.Info("Moto Admin остановлен")
}
