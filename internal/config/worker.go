package config

import (
	"fmt"
	"strings"
	"time"
)

// WorkerConfig содержит параметры конфигурации Photo Worker.
type WorkerConfig struct {
	// Порт HTTP-сервера
	Port int
	// Параметры логирования
	Logging Logging

	// --- MinIO / S3 ---

	// Адрес S3-совместимого хранилища (host:port)
	MinioEndpoint string
	// Access key
	MinioAccessKey string
	// Secret key
	MinioSecretKey string
	// Bucket для фотографий
	MinioBucket string
	// Использовать TLS при подключении
	MinioUseSSL bool
	// Префикс ключей объектов (пустой — корень bucket)
	ObjectPrefix string

	// --- Приём файлов ---

	// API-ключ (пустой — проверка отключена)
	APIKey string
	// Максимальный размер тела multipart-запроса
	MaxUploadBytes int64
	// Разрешённые MIME-типы загружаемых файлов
	AllowedTypes []string

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// LoadWorker загружает конфигурацию Photo Worker из переменных окружения с префиксом PW_.
func LoadWorker() (*WorkerConfig, error) {
	cfg := &WorkerConfig{}
	var err error

	cfg.Port, err = getEnvInt("PW_PORT", 8090)
	if err != nil {
		return nil, fmt.Errorf("PW_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PW_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.Logging, err = loadLogging("PW")
	if err != nil {
		return nil, err
	}

	if cfg.MinioEndpoint, err = getEnvRequired("PW_MINIO_ENDPOINT"); err != nil {
		return nil, err
	}
	cfg.MinioAccessKey = getEnvDefault("PW_MINIO_ACCESS_KEY", "minioadmin")
	if cfg.MinioSecretKey, err = getEnvRequired("PW_MINIO_SECRET_KEY"); err != nil {
		return nil, err
	}
	cfg.MinioBucket = getEnvDefault("PW_MINIO_BUCKET", "motos")
	cfg.MinioUseSSL, err = getEnvBool("PW_MINIO_USE_SSL", false)
	if err != nil {
		return nil, fmt.Errorf("PW_MINIO_USE_SSL: %w", err)
	}
	cfg.ObjectPrefix = strings.Trim(getEnvDefault("PW_OBJECT_PREFIX", ""), "/")

	cfg.APIKey = getEnvDefault("PW_API_KEY", "")

	maxBytes, err := getEnvInt("PW_MAX_UPLOAD_BYTES", 20<<20)
	if err != nil {
		return nil, fmt.Errorf("PW_MAX_UPLOAD_BYTES: %w", err)
	}
	if maxBytes < 1 {
		return nil, fmt.Errorf("PW_MAX_UPLOAD_BYTES: значение %d должно быть положительным", maxBytes)
	}
	cfg.MaxUploadBytes = int64(maxBytes)

	cfg.AllowedTypes = parseCSV(getEnvDefault("PW_ALLOWED_TYPES", "image/jpeg,image/png,image/webp,image/gif"))

	cfg.ShutdownTimeout, err = getEnvDuration("PW_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PW_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// parseCSV разбирает строку с разделителем-запятой, убирая пустые элементы.
func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
