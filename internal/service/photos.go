// photos.go — загрузка, удаление и просмотр фотографий записи через Photo Worker.
//
// Пакетная загрузка (до 5 файлов в слоты capa, 1..4):
//  1. оптимизация всех файлов параллельно;
//  2. один запрос /upload-batch;
//  3. при любой ошибке batch — по запросу /upload на файл, не более
//     UploadConcurrency одновременно, с уже оптимизированными данными;
//  4. обновление updated_at (некритично) и возврат состояния слотов.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/danilomotos/moto-admin/internal/domain/formfmt"
	"github.com/danilomotos/moto-admin/internal/domain/model"
	"github.com/danilomotos/moto-admin/internal/domain/slots"
	"github.com/danilomotos/moto-admin/internal/repository"
	"github.com/danilomotos/moto-admin/internal/runner"
	"github.com/danilomotos/moto-admin/internal/workerclient"
)

// DefaultUploadConcurrency — лимит параллельных загрузок в fallback-режиме.
const DefaultUploadConcurrency = 3

// Метрики загрузки фотографий
var (
	photoUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ma_photo_uploads_total",
			Help: "Количество загрузок фотографий по пути (batch, fallback, single) и результату",
		},
		[]string{"path", "result"},
	)

	photoUploadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ma_photo_upload_duration_seconds",
			Help:    "Длительность загрузки фотографий в секундах",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"path"},
	)

	photoDeletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ma_photo_deleted_total",
			Help: "Количество удалённых фотографий по режиму удаления",
		},
		[]string{"mode"},
	)
)

// PhotoWorker — операции Photo Worker, используемые сервисом.
type PhotoWorker interface {
	Upload(ctx context.Context, motoID, filename string, f model.PhotoFile) error
	UploadBatch(ctx context.Context, motoID string, entries []model.UploadEntry) error
	List(ctx context.Context, motoID string) ([]string, error)
	Delete(ctx context.Context, req workerclient.DeleteRequest) (int, error)
}

// Toucher обновляет маркер последнего изменения записи.
type Toucher interface {
	Touch(ctx context.Context, id string) (time.Time, error)
}

// Optimizer — оптимизация изображений перед загрузкой.
type Optimizer interface {
	Optimize(f model.PhotoFile) model.PhotoFile
	OptimizeAll(ctx context.Context, files []model.PhotoFile) []model.PhotoFile
}

// SlotView — слот с публичным URL и признаком наличия файла.
type SlotView struct {
	model.PhotoSlot
	// URL — публичный URL с параметром ?v=
	URL string
	// Present — файл есть у worker (nil — список файлов не получен)
	Present *bool
}

// PhotoView — состояние пяти слотов записи.
type PhotoView struct {
	MotoID  string
	Version string
	Slots   []SlotView
}

// UploadResult — результат загрузки.
type UploadResult struct {
	// Path — использованный путь: batch, fallback, single
	Path string
	// Uploaded — число загруженных файлов
	Uploaded int
	View     PhotoView
	Outcome
}

// DeleteResult — результат удаления.
type DeleteResult struct {
	Deleted int
	Outcome
}

// PhotoServiceConfig — параметры PhotoService.
type PhotoServiceConfig struct {
	// AssetBase — публичная база URL фотографий
	AssetBase string
	// UploadConcurrency — лимит параллельных загрузок в fallback-режиме
	UploadConcurrency int
	// OnChange вызывается после изменения фотографий записи (инвалидация кэшей каталога и редактора)
	OnChange func(id string)
}

// PhotoService управляет фотографиями записей.
type PhotoService struct {
	worker   PhotoWorker
	touch    Toucher
	opt      Optimizer
	base     string
	limit    int
	onChange func(id string)
	now      func() time.Time
	logger   *slog.Logger
}

// NewPhotoService создаёт сервис фотографий.
func NewPhotoService(worker PhotoWorker, touch Toucher, opt Optimizer, cfg PhotoServiceConfig, logger *slog.Logger) *PhotoService {
	limit := cfg.UploadConcurrency
	if limit < 1 {
		limit = DefaultUploadConcurrency
	}
	onChange := cfg.OnChange
	if onChange == nil {
		onChange = func(string) {}
	}
	return &PhotoService{
		worker:   worker,
		touch:    touch,
		opt:      opt,
		base:     cfg.AssetBase,
		limit:    limit,
		onChange: onChange,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "photo_service")),
	}
}

// UploadMulti загружает до пяти файлов в слоты capa, 1..4 (в этом порядке).
// Файлы сверх пятого игнорируются. Пустой список — без сетевых запросов.
func (s *PhotoService) UploadMulti(ctx context.Context, id string, files []model.PhotoFile) (*UploadResult, error) {
	id = formfmt.CleanID(id)
	if id == "" {
		return nil, fmt.Errorf("%w: укажите ID перед отправкой фотографий", ErrValidation)
	}
	if len(files) == 0 {
		return &UploadResult{View: s.view(id, "", nil)}, nil
	}

	if len(files) > model.MaxSlots {
		s.logger.Debug("Лишние файлы отброшены",
			slog.String("moto_id", id),
			slog.Int("received", len(files)),
		)
		files = files[:model.MaxSlots]
	}

	start := time.Now()
	paths := slots.TargetPaths(id, len(files))
	optimized := s.opt.OptimizeAll(ctx, files)

	entries := make([]model.UploadEntry, len(paths))
	for i, p := range paths {
		entries[i] = model.UploadEntry{Path: p, File: optimized[i]}
	}

	result := &UploadResult{Path: "batch", Uploaded: len(entries)}

	if err := s.worker.UploadBatch(ctx, id, entries); err != nil {
		photoUploadsTotal.WithLabelValues("batch", "error").Inc()
		s.logger.Warn("Пакетная загрузка не удалась, переход на поштучную",
			slog.String("moto_id", id),
			slog.Int("files", len(entries)),
			slog.String("error", err.Error()),
		)

		result.Path = "fallback"
		if _, err := runner.Run(ctx, entries, s.limit, func(ctx context.Context, e model.UploadEntry) (struct{}, error) {
			return struct{}{}, s.uploadEntry(ctx, e)
		}); err != nil {
			photoUploadsTotal.WithLabelValues("fallback", "error").Inc()
			photoUploadDuration.WithLabelValues("fallback").Observe(time.Since(start).Seconds())
			return nil, fmt.Errorf("%w: %w", ErrWorkerUnavailable, err)
		}
	}

	photoUploadsTotal.WithLabelValues(result.Path, "ok").Inc()
	photoUploadDuration.WithLabelValues(result.Path).Observe(time.Since(start).Seconds())

	s.logger.Info("Фотографии загружены",
		slog.String("moto_id", id),
		slog.String("path", result.Path),
		slog.Int("files", len(entries)),
		slog.Duration("duration", time.Since(start)),
	)

	token := s.touchAdvisory(ctx, id, &result.Outcome)
	result.View = s.view(id, token, nil)
	s.onChange(id)
	return result, nil
}

// UploadSlot заменяет фотографию одного слота (capa, 1..4).
func (s *PhotoService) UploadSlot(ctx context.Context, id, slotKey string, file model.PhotoFile) (*UploadResult, error) {
	id = formfmt.CleanID(id)
	if id == "" {
		return nil, fmt.Errorf("%w: укажите ID перед отправкой фотографий", ErrValidation)
	}
	slot, ok := slots.SlotByKey(id, slotKey)
	if !ok {
		return nil, fmt.Errorf("%w: неизвестный слот %q", ErrValidation, slotKey)
	}
	if len(file.Data) == 0 {
		return nil, fmt.Errorf("%w: пустой файл", ErrValidation)
	}

	start := time.Now()
	entry := model.UploadEntry{Path: slot.Path, File: s.opt.Optimize(file)}
	if err := s.uploadEntry(ctx, entry); err != nil {
		photoUploadsTotal.WithLabelValues("single", "error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrWorkerUnavailable, err)
	}
	photoUploadsTotal.WithLabelValues("single", "ok").Inc()
	photoUploadDuration.WithLabelValues("single").Observe(time.Since(start).Seconds())

	result := &UploadResult{Path: "single", Uploaded: 1}
	token := s.touchAdvisory(ctx, id, &result.Outcome)
	result.View = s.view(id, token, nil)
	s.onChange(id)
	return result, nil
}

// DeletePhotos удаляет фотографии записи в режиме mode.
// Для delete_one обязателен filename. Удаление отсутствующего файла — не ошибка (Deleted = 0).
func (s *PhotoService) DeletePhotos(ctx context.Context, id string, mode model.DeleteMode, filename string) (*DeleteResult, error) {
	id = formfmt.CleanID(id)
	if id == "" {
		return nil, fmt.Errorf("%w: не указан ID", ErrValidation)
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: недопустимый режим удаления %q", ErrValidation, mode)
	}

	req := workerclient.DeleteRequest{MotoID: id, Mode: mode}
	if mode == model.DeleteOne {
		if !slots.IsSlotFilename(filename) && !isSafeFilename(filename) {
			return nil, fmt.Errorf("%w: недопустимое имя файла %q", ErrValidation, filename)
		}
		req.Filename = filename
	}

	deleted, err := s.worker.Delete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWorkerUnavailable, err)
	}
	photoDeletedTotal.WithLabelValues(string(mode)).Add(float64(deleted))

	s.logger.Info("Фотографии удалены",
		slog.String("moto_id", id),
		slog.String("mode", string(mode)),
		slog.Int("deleted", deleted),
	)

	result := &DeleteResult{Deleted: deleted}
	if mode != model.DeleteAll {
		s.touchAdvisory(ctx, id, &result.Outcome)
	}
	s.onChange(id)
	return result, nil
}

// ListPhotos возвращает имена файлов записи у worker.
func (s *PhotoService) ListPhotos(ctx context.Context, id string) ([]string, error) {
	id = formfmt.CleanID(id)
	if id == "" {
		return nil, fmt.Errorf("%w: не указан ID", ErrValidation)
	}
	files, err := s.worker.List(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWorkerUnavailable, err)
	}
	return files, nil
}

// View возвращает пять слотов записи с признаком наличия файлов.
// Если список файлов получить не удалось, Present остаётся nil, а ошибка
// попадает в Outcome.
func (s *PhotoService) View(ctx context.Context, id, token string) (PhotoView, Outcome, error) {
	var outcome Outcome
	id = formfmt.CleanID(id)
	if id == "" {
		return PhotoView{}, outcome, fmt.Errorf("%w: не указан ID", ErrValidation)
	}

	files, err := s.worker.List(ctx, id)
	if err != nil {
		outcome.Warn(s.logger, "Не удалось получить список фотографий", err, slog.String("moto_id", id))
		return s.view(id, token, nil), outcome, nil
	}

	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f] = true
	}
	return s.view(id, token, present), outcome, nil
}

// PublicURL строит публичный URL файла записи.
func (s *PhotoService) PublicURL(path, token string) string {
	return slots.PublicURL(s.base, path, token)
}

func (s *PhotoService) uploadEntry(ctx context.Context, e model.UploadEntry) error {
	motoID, filename, err := slots.ParsePath(e.Path)
	if err != nil {
		return err
	}
	return s.worker.Upload(ctx, motoID, filename, e.File)
}

// touchAdvisory обновляет updated_at и возвращает токен версии.
// Ошибка не критична: логируется и попадает в Outcome, токеном становится текущее время.
func (s *PhotoService) touchAdvisory(ctx context.Context, id string, outcome *Outcome) string {
	updatedAt, err := s.touch.Touch(ctx, id)
	if err == nil {
		return strconv.FormatInt(updatedAt.UnixMilli(), 10)
	}
	if errors.Is(err, repository.ErrNotFound) {
		// Фотографии загружены до сохранения записи
		s.logger.Debug("Запись ещё не сохранена, updated_at не обновлён", slog.String("moto_id", id))
	} else {
		outcome.Warn(s.logger, "Не удалось обновить updated_at", err, slog.String("moto_id", id))
	}
	return strconv.FormatInt(s.now().UnixMilli(), 10)
}

func (s *PhotoService) view(id, token string, present map[string]bool) PhotoView {
	all := slots.For(id)
	v := PhotoView{MotoID: id, Version: token, Slots: make([]SlotView, len(all))}
	for i, slot := range all {
		sv := SlotView{PhotoSlot: slot, URL: slots.PublicURL(s.base, slot.Path, token)}
		if present != nil {
			p := present[slot.Filename]
			sv.Present = &p
		}
		v.Slots[i] = sv
	}
	return v
}

// isSafeFilename допускает имена из [A-Za-z0-9._-] без «..».
func isSafeFilename(name string) bool {
	if name == "" || strings.Contains(name, "..") {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}
