package workerclient

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// readinessTimeout — таймаут проверки готовности worker.
const readinessTimeout = 5 * time.Second

// ReadinessChecker — проверка доступности Photo Worker через его health endpoint.
type ReadinessChecker struct {
	client *Client
	path   string
}

// NewReadinessChecker создаёт checker доступности worker.
// path — путь health endpoint (по умолчанию /health/live).
func NewReadinessChecker(c *Client, path string) *ReadinessChecker {
	if path == "" {
		path = "/health/live"
	}
	return &ReadinessChecker{client: c, path: path}
}

// CheckReady проверяет, что worker отвечает 2xx на health endpoint.
func (rc *ReadinessChecker) CheckReady() (status, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), readinessTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rc.client.baseURL+rc.path, http.NoBody)
	if err != nil {
		return "fail", "ошибка создания запроса: " + err.Error()
	}
	resp, err := rc.client.httpClient.Do(req)
	if err != nil {
		return "fail", fmt.Sprintf("Photo Worker недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "fail", fmt.Sprintf("Photo Worker вернул статус %d", resp.StatusCode)
	}
	return "ok", "Photo Worker доступен"
}
