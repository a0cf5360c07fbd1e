// Пакет authclient — аутентификация администраторов через внешний провайдер
// (GoTrue-совместимый API: password grant, refresh, logout) и зашифрованные
// cookie-сессии AES-256-GCM.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout — таймаут запросов к провайдеру по умолчанию.
const DefaultTimeout = 15 * time.Second

var (
	// ErrMissingCredentials — не указан email или пароль.
	ErrMissingCredentials = errors.New("email и пароль обязательны")
	// ErrInvalidCredentials — провайдер отклонил учётные данные или refresh token.
	ErrInvalidCredentials = errors.New("неверные учётные данные")
	// ErrUnavailable — провайдер недоступен или вернул ошибку сервера.
	ErrUnavailable = errors.New("провайдер аутентификации недоступен")
)

// User — пользователь из ответа провайдера.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// TokenResponse — ответ token endpoint провайдера.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`  //nolint:gosec // G117: структура токена OAuth2
	RefreshToken string `json:"refresh_token"` //nolint:gosec // G117: структура токена OAuth2
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         User   `json:"user"`
}

// ExpiryUnix возвращает момент истечения access token (Unix timestamp).
func (t *TokenResponse) ExpiryUnix(now time.Time) int64 {
	if t.ExpiresAt > 0 {
		return t.ExpiresAt
	}
	return now.Unix() + int64(t.ExpiresIn)
}

// providerError — тело ошибки провайдера (оба известных формата).
type providerError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
	ErrorCode   string `json:"error_code"`
	Msg         string `json:"msg"`
}

func (e providerError) message() string {
	switch {
	case e.Msg != "":
		return e.Msg
	case e.Description != "":
		return e.Description
	case e.ErrorCode != "":
		return e.ErrorCode
	}
	return e.Error
}

// Config — конфигурация клиента провайдера.
type Config struct {
	// BaseURL — базовый URL провайдера (без /auth/v1).
	BaseURL string
	// AnonKey — публичный ключ проекта (заголовок apikey).
	AnonKey string
	// Timeout — таймаут HTTP-запросов. Используется при HTTPClient == nil.
	Timeout time.Duration
	// HTTPClient — HTTP-клиент (nil — создаётся новый с Timeout).
	HTTPClient *http.Client
}

// Client — клиент провайдера аутентификации.
type Client struct {
	tokenURL   string
	logoutURL  string
	anonKey    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент провайдера.
func New(cfg Config, logger *slog.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	base := strings.TrimRight(cfg.BaseURL, "/") + "/auth/v1"
	return &Client{
		tokenURL:   base + "/token",
		logoutURL:  base + "/logout",
		anonKey:    cfg.AnonKey,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "auth_client")),
	}
}

// SignInWithPassword выполняет вход по email и паролю.
// POST /auth/v1/token?grant_type=password
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*TokenResponse, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrMissingCredentials
	}
	return c.doTokenRequest(ctx, "password", map[string]string{
		"email":    email,
		"password": password,
	})
}

// Refresh обменивает refresh token на новую пару токенов.
// POST /auth/v1/token?grant_type=refresh_token
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, ErrInvalidCredentials
	}
	return c.doTokenRequest(ctx, "refresh_token", map[string]string{
		"refresh_token": refreshToken,
	})
}

// SignOut завершает сессию на стороне провайдера.
// POST /auth/v1/logout
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.logoutURL, nil)
	if err != nil {
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		// Токен уже недействителен — сессия у провайдера завершена
		return nil
	default:
		return fmt.Errorf("%w: logout вернул статус %d", ErrUnavailable, resp.StatusCode)
	}
}

// doTokenRequest выполняет POST-запрос к token endpoint провайдера.
func (c *Client) doTokenRequest(ctx context.Context, grantType string, payload map[string]string) (*TokenResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации запроса: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL+"?grant_type="+grantType, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.anonKey)

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: ошибка чтения ответа: %w", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		var pe providerError
		msg := strings.TrimSpace(string(raw))
		if jsonErr := json.Unmarshal(raw, &pe); jsonErr == nil && pe.message() != "" {
			msg = pe.message()
		}
		c.logger.Debug("Token endpoint вернул ошибку",
			slog.String("grant_type", grantType),
			slog.Int("status", resp.StatusCode),
			slog.String("message", msg),
		)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, msg)
		}
		return nil, fmt.Errorf("%w: token endpoint вернул статус %d: %s", ErrUnavailable, resp.StatusCode, msg)
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(raw, &tokenResp); err != nil {
		return nil, fmt.Errorf("%w: ошибка парсинга token response: %w", ErrUnavailable, err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response без access_token", ErrUnavailable)
	}

	return &tokenResp, nil
}
