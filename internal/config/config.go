// Пакет config — загрузка и валидация конфигурации Moto Admin и Photo Worker
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Logging — параметры логирования, общие для обоих бинарников.
type Logging struct {
	// Уровень логирования (debug, info, warn, error)
	Level slog.Level
	// Формат логов (json, text)
	Format string
}

// Config содержит все параметры конфигурации Moto Admin.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Параметры логирования
	Logging Logging

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Провайдер аутентификации ---

	// Базовый URL провайдера (например, https://xyz.supabase.co)
	AuthURL string
	// Публичный ключ проекта (заголовок apikey)
	AuthAnonKey string
	// URL JWKS endpoint (авто-вычисляется из AuthURL, если не задан)
	AuthJWKSURL string
	// Ожидаемый issuer JWT (авто-вычисляется из AuthURL, если не задан)
	AuthIssuer string
	// Таймаут запросов к провайдеру
	AuthTimeout time.Duration

	// --- Photo Worker ---

	// Базовый URL worker (upload/list/delete)
	WorkerURL string
	// API-ключ worker (опционально, заголовок X-API-Key)
	WorkerAPIKey string
	// Таймаут запросов к worker
	WorkerTimeout time.Duration
	// Путь к CA-сертификату worker (опционально)
	WorkerCACertPath string
	// Путь health endpoint worker для topologymetrics
	WorkerHealthPath string
	// Публичная база URL фотографий: {base}/{moto_id}/{filename}
	PublicAssetBase string

	// --- Оптимизация изображений ---

	// Максимальная ширина после оптимизации
	ImageMaxWidth int
	// Качество JPEG (1-100)
	ImageQuality int
	// Файлы меньше этого размера не оптимизируются
	ImageMinBytes int64
	// Лимит параллельных загрузок в fallback-режиме
	UploadConcurrency int

	// --- Сессии и вход ---

	// Ключ шифрования cookie сессий
	SessionSecret string
	// Secure flag для cookie
	SessionSecure bool
	// Разрешённое число попыток входа в минуту с одного IP
	LoginRatePerMinute int
	// Размер burst для попыток входа
	LoginBurst int

	// --- Каталог ---

	// Время жизни кэша публичного каталога
	CatalogCacheTTL time.Duration

	// --- topologymetrics ---

	// Группа в метриках зависимостей
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию Moto Admin из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// MA_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("MA_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("MA_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("MA_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.Logging, err = loadLogging("MA")
	if err != nil {
		return nil, err
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("MA_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("MA_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("MA_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("MA_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("MA_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("MA_DB_PASSWORD"); err != nil {
		return nil, err
	}

	// MA_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("MA_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("MA_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Провайдер аутентификации ---

	if cfg.AuthURL, err = getEnvRequired("MA_AUTH_URL"); err != nil {
		return nil, err
	}
	cfg.AuthURL = strings.TrimRight(cfg.AuthURL, "/")

	if cfg.AuthAnonKey, err = getEnvRequired("MA_AUTH_ANON_KEY"); err != nil {
		return nil, err
	}

	// MA_AUTH_JWKS_URL и MA_AUTH_ISSUER — авто-вычисляются из MA_AUTH_URL
	cfg.AuthJWKSURL = getEnvDefault("MA_AUTH_JWKS_URL", cfg.AuthURL+"/auth/v1/.well-known/jwks.json")
	cfg.AuthIssuer = getEnvDefault("MA_AUTH_ISSUER", cfg.AuthURL+"/auth/v1")

	cfg.AuthTimeout, err = getEnvDuration("MA_AUTH_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MA_AUTH_TIMEOUT: %w", err)
	}

	// --- Photo Worker ---

	if cfg.WorkerURL, err = getEnvRequired("MA_WORKER_URL"); err != nil {
		return nil, err
	}
	cfg.WorkerURL = strings.TrimRight(cfg.WorkerURL, "/")
	cfg.WorkerAPIKey = getEnvDefault("MA_WORKER_API_KEY", "")

	cfg.WorkerTimeout, err = getEnvDuration("MA_WORKER_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MA_WORKER_TIMEOUT: %w", err)
	}
	cfg.WorkerCACertPath = getEnvDefault("MA_WORKER_CA_CERT_PATH", "")
	cfg.WorkerHealthPath = getEnvDefault("MA_WORKER_HEALTH_PATH", "/health/live")

	if cfg.PublicAssetBase, err = getEnvRequired("MA_PUBLIC_ASSET_BASE"); err != nil {
		return nil, err
	}
	cfg.PublicAssetBase = strings.TrimRight(cfg.PublicAssetBase, "/")

	// --- Оптимизация изображений ---

	cfg.ImageMaxWidth, err = getEnvInt("MA_IMG_MAX_WIDTH", 1600)
	if err != nil {
		return nil, fmt.Errorf("MA_IMG_MAX_WIDTH: %w", err)
	}
	if cfg.ImageMaxWidth < 1 {
		return nil, fmt.Errorf("MA_IMG_MAX_WIDTH: значение %d должно быть положительным", cfg.ImageMaxWidth)
	}

	cfg.ImageQuality, err = getEnvInt("MA_IMG_QUALITY", 82)
	if err != nil {
		return nil, fmt.Errorf("MA_IMG_QUALITY: %w", err)
	}
	if cfg.ImageQuality < 1 || cfg.ImageQuality > 100 {
		return nil, fmt.Errorf("MA_IMG_QUALITY: значение %d вне допустимого диапазона 1-100", cfg.ImageQuality)
	}

	minBytes, err := getEnvInt("MA_IMG_MIN_BYTES", 300*1024)
	if err != nil {
		return nil, fmt.Errorf("MA_IMG_MIN_BYTES: %w", err)
	}
	cfg.ImageMinBytes = int64(minBytes)

	cfg.UploadConcurrency, err = getEnvInt("MA_UPLOAD_CONCURRENCY", 3)
	if err != nil {
		return nil, fmt.Errorf("MA_UPLOAD_CONCURRENCY: %w", err)
	}
	if cfg.UploadConcurrency < 1 || cfg.UploadConcurrency > 5 {
		return nil, fmt.Errorf("MA_UPLOAD_CONCURRENCY: значение %d вне допустимого диапазона 1-5", cfg.UploadConcurrency)
	}

	// --- Сессии и вход ---

	cfg.SessionSecret = getEnvDefault("MA_SESSION_SECRET", "")
	cfg.SessionSecure, err = getEnvBool("MA_SESSION_SECURE", strings.HasPrefix(cfg.AuthURL, "https"))
	if err != nil {
		return nil, fmt.Errorf("MA_SESSION_SECURE: %w", err)
	}

	cfg.LoginRatePerMinute, err = getEnvInt("MA_LOGIN_RATE", 10)
	if err != nil {
		return nil, fmt.Errorf("MA_LOGIN_RATE: %w", err)
	}
	cfg.LoginBurst, err = getEnvInt("MA_LOGIN_BURST", 5)
	if err != nil {
		return nil, fmt.Errorf("MA_LOGIN_BURST: %w", err)
	}
	if cfg.LoginRatePerMinute < 1 || cfg.LoginBurst < 1 {
		return nil, fmt.Errorf("MA_LOGIN_RATE/MA_LOGIN_BURST: значения должны быть положительными")
	}

	// --- Каталог ---

	cfg.CatalogCacheTTL, err = getEnvDuration("MA_CATALOG_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("MA_CATALOG_CACHE_TTL: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("MA_DEPHEALTH_GROUP", "danilomotos")
	cfg.DephealthCheckInterval, err = getEnvDuration("MA_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MA_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("MA_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MA_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL (для golang-migrate и лейблов topologymetrics).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер.
func SetupLogger(l Logging) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: l.Level,
	}

	var handler slog.Handler
	if l.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// loadLogging читает {prefix}_LOG_LEVEL и {prefix}_LOG_FORMAT.
func loadLogging(prefix string) (Logging, error) {
	var l Logging
	var err error

	levelKey := prefix + "_LOG_LEVEL"
	l.Level, err = parseLogLevel(getEnvDefault(levelKey, "info"))
	if err != nil {
		return l, fmt.Errorf("%s: %w", levelKey, err)
	}

	formatKey := prefix + "_LOG_FORMAT"
	l.Format = getEnvDefault(formatKey, "json")
	if l.Format != "json" && l.Format != "text" {
		return l, fmt.Errorf("%s: недопустимое значение %q, допустимые: json, text", formatKey, l.Format)
	}
	return l, nil
}

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
