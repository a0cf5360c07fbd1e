// photos.go — обработчики /api/v1/motos/{id}/photos: просмотр слотов,
// пакетная загрузка, замена одного слота, удаление.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/danilomotos/moto-admin/internal/api/errors"
	"github.com/danilomotos/moto-admin/internal/domain/model"
	"github.com/danilomotos/moto-admin/internal/repository"
	"github.com/danilomotos/moto-admin/internal/service"
)

// DefaultMaxUploadBytes — лимит тела multipart-запроса по умолчанию.
const DefaultMaxUploadBytes = 64 << 20

// multipartMemory — объём multipart-данных, удерживаемых в памяти.
const multipartMemory = 32 << 20

// RecordReader — чтение записи для токена версии URL фотографий.
type RecordReader interface {
	GetByID(ctx context.Context, id string) (*model.Moto, error)
}

// PhotosHandler — обработчик фотографий записей.
type PhotosHandler struct {
	photos   *service.PhotoService
	records  RecordReader
	maxBytes int64
	logger   *slog.Logger
}

// NewPhotosHandler создаёт обработчик фотографий.
// maxBytes <= 0 — используется DefaultMaxUploadBytes.
func NewPhotosHandler(photos *service.PhotoService, records RecordReader, maxBytes int64, logger *slog.Logger) *PhotosHandler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &PhotosHandler{
		photos:   photos,
		records:  records,
		maxBytes: maxBytes,
		logger:   logger.With(slog.String("component", "photos_handler")),
	}
}

type uploadResponse struct {
	Path     string            `json:"path"`
	Uploaded int               `json:"uploaded"`
	View     photoViewResponse `json:"view"`
	Warnings []string          `json:"warnings,omitempty"`
}

type deleteResponse struct {
	Deleted  int      `json:"deleted"`
	Warnings []string `json:"warnings,omitempty"`
}

// GetPhotos — GET /api/v1/motos/{id}/photos.
// Пять слотов с URL и признаком наличия файла у worker.
func (h *PhotosHandler) GetPhotos(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	token := ""
	m, err := h.records.GetByID(r.Context(), id)
	switch {
	case err == nil:
		token = m.VersionToken()
	case errors.Is(err, repository.ErrNotFound):
		// Фотографии можно просматривать до сохранения записи
	default:
		writeServiceError(w, h.logger, err, "Ошибка получения записи")
		return
	}

	view, outcome, err := h.photos.View(r.Context(), id, token)
	if err != nil {
		writeServiceError(w, h.logger, err, "Ошибка получения фотографий")
		return
	}
	writeJSON(w, http.StatusOK, toPhotoViewResponse(view, outcome.Advisory))
}

// UploadPhotos — POST /api/v1/motos/{id}/photos (multipart, поле files).
// До пяти файлов в слоты capa, 1..4.
func (h *PhotosHandler) UploadPhotos(w http.ResponseWriter, r *http.Request) {
	if !h.parseMultipart(w, r) {
		return
	}

	files, err := readFiles(r.MultipartForm.File["files"])
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	res, err := h.photos.UploadMulti(r.Context(), chi.URLParam(r, "id"), files)
	if err != nil {
		writeServiceError(w, h.logger, err, "Ошибка загрузки фотографий")
		return
	}
	writeJSON(w, http.StatusOK, toUploadResponse(res))
}

// UploadSlot — PUT /api/v1/motos/{id}/photos/{name} (multipart, поле file).
// name — ключ слота: capa, 1..4.
func (h *PhotosHandler) UploadSlot(w http.ResponseWriter, r *http.Request) {
	if !h.parseMultipart(w, r) {
		return
	}

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		apierrors.ValidationError(w, "Файл не передан (поле file)")
		return
	}
	files, err := readFiles(headers[:1])
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	res, err := h.photos.UploadSlot(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "name"), files[0])
	if err != nil {
		writeServiceError(w, h.logger, err, "Ошибка загрузки фотографии")
		return
	}
	writeJSON(w, http.StatusOK, toUploadResponse(res))
}

// DeletePhoto — DELETE /api/v1/motos/{id}/photos/{name}, name — имя файла.
// Удаление отсутствующего файла не ошибка (deleted = 0).
func (h *PhotosHandler) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	res, err := h.photos.DeletePhotos(r.Context(), chi.URLParam(r, "id"), model.DeleteOne, chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, h.logger, err, "Ошибка удаления фотографии")
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Deleted: res.Deleted, Warnings: res.Advisory})
}

// DeletePhotos — DELETE /api/v1/motos/{id}/photos?mode=keep_cover|delete_all.
func (h *PhotosHandler) DeletePhotos(w http.ResponseWriter, r *http.Request) {
	mode := model.DeleteMode(r.URL.Query().Get("mode"))
	if mode != model.DeleteKeepCover && mode != model.DeleteAll {
		apierrors.ValidationError(w, "Параметр mode должен быть keep_cover или delete_all")
		return
	}

	res, err := h.photos.DeletePhotos(r.Context(), chi.URLParam(r, "id"), mode, "")
	if err != nil {
		writeServiceError(w, h.logger, err, "Ошибка удаления фотографий")
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Deleted: res.Deleted, Warnings: res.Advisory})
}

func (h *PhotosHandler) parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierrors.WriteError(w, http.StatusRequestEntityTooLarge, apierrors.CodeValidationError,
				fmt.Sprintf("Размер запроса превышает %d байт", h.maxBytes))
			return false
		}
		apierrors.ValidationError(w, "Некорректный multipart-запрос: "+err.Error())
		return false
	}
	return true
}

func readFiles(headers []*multipart.FileHeader) ([]model.PhotoFile, error) {
	files := make([]model.PhotoFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("файл %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("файл %s: %w", fh.Filename, err)
		}
		files = append(files, model.PhotoFile{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return files, nil
}

func toUploadResponse(res *service.UploadResult) uploadResponse {
	return uploadResponse{
		Path:     res.Path,
		Uploaded: res.Uploaded,
		View:     toPhotoViewResponse(res.View, nil),
		Warnings: res.Advisory,
	}
}
