// auth.go — обработчики /api/v1/auth: вход, выход, текущая сессия.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danilomotos/moto-admin/internal/admin"
	apierrors "github.com/danilomotos/moto-admin/internal/api/errors"
	"github.com/danilomotos/moto-admin/internal/api/middleware"
	"github.com/danilomotos/moto-admin/internal/authclient"
)

// Authenticator — операции провайдера аутентификации, используемые обработчиком.
type Authenticator interface {
	SignInWithPassword(ctx context.Context, email, password string) (*authclient.TokenResponse, error)
	SignOut(ctx context.Context, accessToken string) error
}

// AuthHandler — обработчик входа и выхода администратора.
type AuthHandler struct {
	auth     Authenticator
	sessions *authclient.SessionManager
	registry *admin.Registry
	logger   *slog.Logger
}

// NewAuthHandler создаёт обработчик аутентификации.
func NewAuthHandler(auth Authenticator, sessions *authclient.SessionManager, registry *admin.Registry, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:     auth,
		sessions: sessions,
		registry: registry,
		logger:   logger.With(slog.String("component", "auth_handler")),
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"` //nolint:gosec // G117: поле запроса входа
}

type sessionResponse struct {
	UserID    string `json:"user_id,omitempty"`
	Email     string `json:"email"`
	Source    string `json:"source"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// Login — POST /api/v1/auth/login.
// Вход по email и паролю, при успехе устанавливается cookie сессии.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tokens, err := h.auth.SignInWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, authclient.ErrMissingCredentials) {
			apierrors.ValidationError(w, err.Error())
			return
		}
		if errors.Is(err, authclient.ErrInvalidCredentials) {
			h.logger.Info("Неудачная попытка входа",
				slog.String("email", req.Email),
				slog.String("ip", middleware.ClientIP(r)),
			)
		}
		writeServiceError(w, h.logger, err, "Ошибка входа")
		return
	}

	session := authclient.NewSessionData("", tokens, time.Now())
	if session.Email == "" {
		session.Email = req.Email
	}
	if err := h.sessions.SetSessionCookie(w, session); err != nil {
		h.logger.Error("Ошибка установки cookie сессии", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось создать сессию")
		return
	}

	h.logger.Info("Администратор вошёл", slog.String("email", session.Email))
	writeJSON(w, http.StatusOK, sessionResponse{
		UserID:    session.UserID,
		Email:     session.Email,
		Source:    middleware.SourceSession,
		ExpiresAt: time.Unix(session.ExpiresAt, 0).UTC().Format(time.RFC3339),
	})
}

// Logout — POST /api/v1/auth/logout.
// Завершает сессию у провайдера (ошибка не критична), удаляет cookie
// и состояние редактора сессии.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.GetSessionFromRequest(r)
	if err != nil {
		h.logger.Debug("Некорректный cookie сессии при выходе", slog.String("error", err.Error()))
	}

	if session != nil {
		if err := h.auth.SignOut(r.Context(), session.AccessToken); err != nil {
			h.logger.Warn("Не удалось завершить сессию у провайдера", slog.String("error", err.Error()))
		}
		h.registry.Remove(session.SessionID)
		h.logger.Info("Администратор вышел", slog.String("email", session.Email))
	}

	h.sessions.ClearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Session — GET /api/v1/auth/session.
// Возвращает текущего аутентифицированного администратора.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		UserID: p.Subject,
		Email:  p.Email,
		Source: p.Source,
	})
}
