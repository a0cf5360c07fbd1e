// motos.go — обработчики /api/v1/motos: список, выбор, сохранение, статус, удаление.
// Каждый запрос работает с контроллером формы текущей сессии.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/danilomotos/moto-admin/internal/admin"
	apierrors "github.com/danilomotos/moto-admin/internal/api/errors"
	"github.com/danilomotos/moto-admin/internal/domain/formfmt"
	"github.com/danilomotos/moto-admin/internal/domain/model"
	"github.com/danilomotos/moto-admin/internal/service"
)

// MotosHandler — обработчик CRUD записей мотоциклов.
type MotosHandler struct {
	registry *admin.Registry
	logger   *slog.Logger
}

// NewMotosHandler создаёт обработчик записей.
func NewMotosHandler(registry *admin.Registry, logger *slog.Logger) *MotosHandler {
	return &MotosHandler{
		registry: registry,
		logger:   logger.With(slog.String("component", "motos_handler")),
	}
}

type motoListResponse struct {
	Items []motoResponse `json:"items"`
	Total int            `json:"total"`
}

type saveResponse struct {
	Moto     motoResponse `json:"moto"`
	Warnings []string     `json:"warnings,omitempty"`
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *MotosHandler) controller(w http.ResponseWriter, r *http.Request) (*admin.Controller, bool) {
	key := sessionKey(r)
	if key == "" {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return nil, false
	}
	return h.registry.Get(key), true
}

// motoID возвращает ID записи из URL в нормализованном виде.
func motoID(r *http.Request) string {
	return formfmt.CleanID(chi.URLParam(r, "id"))
}

// ListMotos — GET /api/v1/motos.
// Перезагружает кэш записей сессии.
func (h *MotosHandler) ListMotos(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}

	motos, err := ctrl.Load(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Ошибка загрузки записей")
		return
	}

	items := make([]motoResponse, len(motos))
	for i, m := range motos {
		items[i] = toMotoResponse(m)
	}
	writeJSON(w, http.StatusOK, motoListResponse{Items: items, Total: len(items)})
}

// GetMoto — GET /api/v1/motos/{id}.
// Выбирает запись в форме редактирования.
func (h *MotosHandler) GetMoto(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}

	m, err := ctrl.Select(r.Context(), motoID(r))
	if err != nil {
		writeServiceError(w, h.logger, err, "Ошибка получения записи")
		return
	}
	writeJSON(w, http.StatusOK, toMotoResponse(m))
}

// PutMoto — PUT /api/v1/motos/{id}.
// Создаёт или обновляет запись. Перевод в vendida без confirm=true
// сохраняет остальные поля с прежним статусом и возвращает предупреждение.
func (h *MotosHandler) PutMoto(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}

	var form admin.Form
	if !decodeJSON(w, r, &form) {
		return
	}
	id := motoID(r)
	form.ID = id

	if _, err := ctrl.Select(r.Context(), id); err != nil {
		if !errors.Is(err, service.ErrNotFound) {
			writeServiceError(w, h.logger, err, "Ошибка загрузки записи")
			return
		}
		ctrl.New()
	}

	if err := ctrl.Apply(form); err != nil {
		writeServiceError(w, h.logger, err, "Ошибка заполнения формы")
		return
	}

	m, outcome, err := ctrl.Save(r.Context(), confirmerFrom(r))
	if err != nil {
		writeServiceError(w, h.logger, err, "Ошибка сохранения записи")
		return
	}
	writeJSON(w, http.StatusOK, saveResponse{Moto: toMotoResponse(m), Warnings: outcome.Advisory})
}

// PatchMotoStatus — PATCH /api/v1/motos/{id}/status.
// Переход в vendida требует confirm=true и удаляет все фотографии, кроме обложки.
func (h *MotosHandler) PatchMotoStatus(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}

	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if _, err := ctrl.Select(r.Context(), motoID(r)); err != nil {
		writeServiceError(w, h.logger, err, "Ошибка загрузки записи")
		return
	}

	confirm := confirmerFrom(r)
	outcome, err := ctrl.ChangeStatus(r.Context(), model.Status(req.Status), confirm)
	if err != nil {
		writeServiceError(w, h.logger, err, "Ошибка смены статуса")
		return
	}

	m, saved, err := ctrl.Save(r.Context(), confirm)
	if err != nil {
		writeServiceError(w, h.logger, err, "Ошибка сохранения записи")
		return
	}
	outcome.Merge(saved)
	writeJSON(w, http.StatusOK, saveResponse{Moto: toMotoResponse(m), Warnings: outcome.Advisory})
}

// DeleteMoto — DELETE /api/v1/motos/{id}?confirm=true.
// Сначала удаляются все фотографии, затем запись.
func (h *MotosHandler) DeleteMoto(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}

	if _, err := ctrl.Select(r.Context(), motoID(r)); err != nil {
		writeServiceError(w, h.logger, err, "Ошибка загрузки записи")
		return
	}

	if err := ctrl.Delete(r.Context(), confirmerFrom(r)); err != nil {
		writeServiceError(w, h.logger, err, "Ошибка удаления записи")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type editorResponse struct {
	State    string      `json:"state"`
	Form     *admin.Form `json:"form,omitempty"`
	IsNew    bool        `json:"is_new"`
	Error    string      `json:"error,omitempty"`
	Warnings []string    `json:"warnings,omitempty"`
}

// GetEditor — GET /api/v1/editor.
// Возвращает состояние формы редактирования текущей сессии.
func (h *MotosHandler) GetEditor(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}

	snap := ctrl.Snapshot()
	writeJSON(w, http.StatusOK, editorResponse{
		State:    snap.State.String(),
		Form:     snap.Form,
		IsNew:    snap.IsNew,
		Error:    snap.Error,
		Warnings: snap.Advisory,
	})
}
