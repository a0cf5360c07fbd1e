// auth.go — аутентификация администратора.
//
// Два способа:
//   - зашифрованный cookie сессии (после POST /api/v1/auth/login), с авто-refresh
//     access token через провайдера при приближении срока истечения;
//   - Bearer JWT провайдера (API-клиенты), подпись проверяется по JWKS.
//
// Токены с ролью anon (публичный ключ провайдера) отклоняются.
package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/danilomotos/moto-admin/internal/api/errors"
	"github.com/danilomotos/moto-admin/internal/authclient"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyPrincipal — аутентифицированный администратор.
	ContextKeyPrincipal contextKey = "principal"
	// ContextKeyRequestID — идентификатор запроса.
	ContextKeyRequestID contextKey = "request_id"
)

// Источник аутентификации
const (
	SourceSession = "session"
	SourceBearer  = "bearer"
)

// jwtLeeway — допустимое отклонение часов при проверке JWT.
const jwtLeeway = 30 * time.Second

// Principal — аутентифицированный администратор.
type Principal struct {
	// Subject — идентификатор пользователя у провайдера
	Subject string
	Email   string
	// SessionID — идентификатор UI-сессии (пусто для Bearer)
	SessionID string
	// Source — session или bearer
	Source string
}

// Refresher обновляет токены по refresh token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*authclient.TokenResponse, error)
}

// providerClaims — claims JWT провайдера аутентификации.
type providerClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Auth — middleware аутентификации администратора.
type Auth struct {
	sessions  *authclient.SessionManager
	refresher Refresher
	jwks      keyfunc.Keyfunc
	issuer    string
	logger    *slog.Logger
	now       func() time.Time
}

// NewAuth создаёт middleware с JWKS провайдера.
// JWKS загружается в фоне; сервис стартует, даже если провайдер ещё недоступен.
func NewAuth(
	sessions *authclient.SessionManager,
	refresher Refresher,
	jwksURL string,
	issuer string,
	jwksTimeout time.Duration,
	logger *slog.Logger,
) (*Auth, error) {
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: jwksTimeout},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           time.Hour,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return NewAuthWithKeyfunc(sessions, refresher, k, issuer, logger), nil
}

// NewAuthWithKeyfunc создаёт middleware с предоставленной keyfunc.
// Используется в тестах для подстановки mock JWKS.
func NewAuthWithKeyfunc(
	sessions *authclient.SessionManager,
	refresher Refresher,
	kf keyfunc.Keyfunc,
	issuer string,
	logger *slog.Logger,
) *Auth {
	return &Auth{
		sessions:  sessions,
		refresher: refresher,
		jwks:      kf,
		issuer:    issuer,
		logger:    logger.With(slog.String("component", "auth_middleware")),
		now:       time.Now,
	}
}

// Middleware возвращает middleware, требующий аутентификации.
// Заголовок Authorization имеет приоритет над cookie сессии.
func (a *Auth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				principal *Principal
				ok        bool
			)
			if r.Header.Get("Authorization") != "" {
				principal, ok = a.fromBearer(w, r)
			} else {
				principal, ok = a.fromSession(w, r)
			}
			if !ok {
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyPrincipal, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Auth) fromBearer(w http.ResponseWriter, r *http.Request) (*Principal, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
		return nil, false
	}

	claims, err := a.validateToken(r.Context(), parts[1])
	if err != nil {
		a.logger.Debug("JWT валидация не пройдена",
			slog.String("error", err.Error()),
			slog.String("remote_addr", r.RemoteAddr),
		)
		apierrors.Unauthorized(w, "Невалидный или просроченный токен")
		return nil, false
	}

	return &Principal{Subject: claims.Subject, Email: claims.Email, Source: SourceBearer}, true
}

// validateToken проверяет подпись, срок действия, issuer и роль JWT.
func (a *Auth) validateToken(ctx context.Context, tokenString string) (*providerClaims, error) {
	claims := &providerClaims{}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(jwtLeeway),
	}
	if a.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, a.jwks.KeyfuncCtx(ctx), parserOpts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("невалидный токен")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("отсутствует sub в токене")
	}
	if claims.Role == "anon" {
		return nil, fmt.Errorf("анонимный токен не допускается")
	}
	return claims, nil
}

func (a *Auth) fromSession(w http.ResponseWriter, r *http.Request) (*Principal, bool) {
	session, err := a.sessions.GetSessionFromRequest(r)
	if err != nil {
		a.logger.Debug("Ошибка чтения сессии",
			slog.String("error", err.Error()),
			slog.String("remote_addr", r.RemoteAddr),
		)
		a.sessions.ClearSessionCookie(w)
		apierrors.Unauthorized(w, "Сессия повреждена, выполните вход заново")
		return nil, false
	}
	if session == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return nil, false
	}

	if session.IsExpired() {
		refreshed, refreshErr := a.refreshSession(r.Context(), session)
		if refreshErr != nil {
			a.logger.Info("Не удалось обновить сессию",
				slog.String("email", session.Email),
				slog.String("error", refreshErr.Error()),
			)
			a.sessions.ClearSessionCookie(w)
			apierrors.Unauthorized(w, "Сессия истекла, выполните вход заново")
			return nil, false
		}

		if err := a.sessions.SetSessionCookie(w, refreshed); err != nil {
			a.logger.Error("Ошибка обновления session cookie",
				slog.String("error", err.Error()),
			)
			a.sessions.ClearSessionCookie(w)
			apierrors.Unauthorized(w, "Сессия истекла, выполните вход заново")
			return nil, false
		}

		session = refreshed
		a.logger.Debug("Сессия обновлена через refresh token",
			slog.String("email", session.Email),
		)
	}

	return &Principal{
		Subject:   session.UserID,
		Email:     session.Email,
		SessionID: session.SessionID,
		Source:    SourceSession,
	}, true
}

// refreshSession обновляет access token, сохраняя идентификатор сессии.
func (a *Auth) refreshSession(ctx context.Context, session *authclient.SessionData) (*authclient.SessionData, error) {
	tokens, err := a.refresher.Refresh(ctx, session.RefreshToken)
	if err != nil {
		return nil, err
	}
	refreshed := authclient.NewSessionData(session.SessionID, tokens, a.now())
	if refreshed.Email == "" {
		refreshed.Email = session.Email
	}
	if refreshed.UserID == "" {
		refreshed.UserID = session.UserID
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = session.RefreshToken
	}
	return refreshed, nil
}

// PrincipalFromContext извлекает Principal из контекста запроса.
// Возвращает nil, если запрос не прошёл через Auth middleware.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(ContextKeyPrincipal).(*Principal)
	return p
}

// --- ReadinessChecker для провайдера аутентификации ---

// JWKSReadinessChecker — проверка доступности провайдера через JWKS endpoint.
type JWKSReadinessChecker struct {
	jwksURL string
	client  *http.Client
}

// NewJWKSReadinessChecker создаёт checker доступности JWKS.
func NewJWKSReadinessChecker(jwksURL string, timeout time.Duration) *JWKSReadinessChecker {
	return &JWKSReadinessChecker{
		jwksURL: jwksURL,
		client:  &http.Client{Timeout: timeout},
	}
}

const statusFail = "fail"

// CheckReady проверяет доступность JWKS endpoint и наличие ключей.
func (k *JWKSReadinessChecker) CheckReady() (status, message string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, k.jwksURL, http.NoBody)
	if err != nil {
		return statusFail, "ошибка создания запроса: " + err.Error()
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return statusFail, fmt.Sprintf("JWKS недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusFail, fmt.Sprintf("JWKS вернул статус %d", resp.StatusCode)
	}

	var jwksResp struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwksResp); err != nil {
		return "degraded", fmt.Sprintf("JWKS: невалидный JSON: %v", err)
	}
	if len(jwksResp.Keys) == 0 {
		return "degraded", "JWKS: нет ключей"
	}

	return "ok", fmt.Sprintf("JWKS доступен, ключей: %d", len(jwksResp.Keys))
}
