// handler.go — общие типы ответов и вспомогательные функции обработчиков API.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danilomotos/moto-admin/internal/admin"
	apierrors "github.com/danilomotos/moto-admin/internal/api/errors"
	"github.com/danilomotos/moto-admin/internal/api/middleware"
	"github.com/danilomotos/moto-admin/internal/authclient"
	"github.com/danilomotos/moto-admin/internal/domain/model"
	"github.com/danilomotos/moto-admin/internal/service"
)

// maxJSONBody — лимит тела JSON-запроса.
const maxJSONBody = 1 << 20

// motoResponse — запись мотоцикла в ответах API.
type motoResponse struct {
	ID          string `json:"id"`
	Ordem       *int   `json:"ordem,omitempty"`
	Status      string `json:"status"`
	Titulo      string `json:"titulo"`
	Preco       string `json:"preco"`
	Ano         string `json:"ano"`
	Km          string `json:"km"`
	Cor         string `json:"cor"`
	Cilindrada  string `json:"cilindrada"`
	Combustivel string `json:"combustivel"`
	Partida     string `json:"partida"`
	Youtube     string `json:"youtube"`
	Observacoes string `json:"observacoes"`
	Emplacada   bool   `json:"emplacada"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// slotResponse — слот фотографии в ответах API.
type slotResponse struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
	URL      string `json:"url"`
	Present  *bool  `json:"present,omitempty"`
}

// photoViewResponse — пять слотов записи.
type photoViewResponse struct {
	MotoID   string         `json:"moto_id"`
	Version  string         `json:"version,omitempty"`
	Slots    []slotResponse `json:"slots"`
	Warnings []string       `json:"warnings,omitempty"`
}

func toMotoResponse(m *model.Moto) motoResponse {
	resp := motoResponse{
		ID:          m.ID,
		Ordem:       m.Ordem,
		Status:      string(m.Status),
		Titulo:      m.Titulo,
		Preco:       m.Preco,
		Ano:         m.Ano,
		Km:          m.Km,
		Cor:         m.Cor,
		Cilindrada:  m.Cilindrada,
		Combustivel: m.Combustivel,
		Partida:     m.Partida,
		Youtube:     m.Youtube,
		Observacoes: m.Observacoes,
		Emplacada:   m.Emplacada,
	}
	if !m.CreatedAt.IsZero() {
		resp.CreatedAt = m.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !m.UpdatedAt.IsZero() {
		resp.UpdatedAt = m.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func toPhotoViewResponse(v service.PhotoView, warnings []string) photoViewResponse {
	resp := photoViewResponse{
		MotoID:   v.MotoID,
		Version:  v.Version,
		Slots:    make([]slotResponse, len(v.Slots)),
		Warnings: warnings,
	}
	for i, s := range v.Slots {
		resp.Slots[i] = slotResponse{
			Key:      s.Key,
			Label:    s.Label,
			Filename: s.Filename,
			Path:     s.Path,
			URL:      s.URL,
			Present:  s.Present,
		}
	}
	return resp
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает JSON-тело запроса в dst.
// Возвращает false и пишет 400, если тело некорректно.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return false
	}
	return true
}

// writeServiceError преобразует ошибку сервисного слоя в HTTP-ответ.
// Неклассифицированные ошибки логируются и возвращаются как 500 с текстом fallback.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrConfirmationDeclined):
		apierrors.ConfirmationRequired(w, "Действие требует подтверждения: повторите запрос с confirm=true")
	case errors.Is(err, service.ErrWorkerUnavailable):
		logger.Warn(fallback, slog.String("error", err.Error()))
		apierrors.WorkerUnavailable(w, err.Error())
	case errors.Is(err, service.ErrAuthFailed), errors.Is(err, authclient.ErrInvalidCredentials):
		apierrors.Unauthorized(w, "Неверный email или пароль")
	case errors.Is(err, service.ErrAuthUnavailable), errors.Is(err, authclient.ErrUnavailable):
		logger.Warn(fallback, slog.String("error", err.Error()))
		apierrors.AuthUnavailable(w, "Провайдер аутентификации недоступен")
	default:
		logger.Error(fallback, slog.String("error", err.Error()))
		apierrors.InternalError(w, fallback)
	}
}

// confirmerFrom строит подтверждение из параметра confirm=true запроса.
func confirmerFrom(r *http.Request) admin.Confirmer {
	if r.URL.Query().Get("confirm") == "true" {
		return admin.Always
	}
	return admin.Never
}

// sessionKey возвращает ключ состояния редактора для текущего пользователя:
// идентификатор cookie-сессии или subject bearer-токена.
func sessionKey(r *http.Request) string {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		return ""
	}
	if p.Source == middleware.SourceSession && p.SessionID != "" {
		return p.SessionID
	}
	return "bearer:" + p.Subject
}
