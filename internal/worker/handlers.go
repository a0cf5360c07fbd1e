package worker

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/danilomotos/moto-admin/internal/api/middleware"
	"github.com/danilomotos/moto-admin/internal/config"
	"github.com/danilomotos/moto-admin/internal/domain/formfmt"
	"github.com/danilomotos/moto-admin/internal/domain/model"
	"github.com/danilomotos/moto-admin/internal/domain/slots"
	"github.com/danilomotos/moto-admin/internal/workerclient"
)

// storeConcurrency — лимит параллельных операций с хранилищем в одном запросе.
const storeConcurrency = 4

// multipartMemory — объём multipart-данных, удерживаемых в памяти.
const multipartMemory = 32 << 20

// Метрики worker
var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pw_operations_total",
			Help: "Количество операций worker по типу и результату",
		},
		[]string{"op", "result"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pw_operation_duration_seconds",
			Help:    "Длительность операций worker в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	objectsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pw_objects_written_total",
		Help: "Количество записанных объектов",
	})

	objectsDeletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pw_objects_deleted_total",
			Help: "Количество удалённых объектов по режиму удаления",
		},
		[]string{"mode"},
	)
)

// errBadRequest — ошибка входных данных запроса (400).
var errBadRequest = errors.New("некорректный запрос")

// response — ответ worker {ok, error, files, deleted}.
type response struct {
	OK      bool     `json:"ok"`
	Error   string   `json:"error,omitempty"`
	Files   []string `json:"files,omitempty"`
	Deleted *int     `json:"deleted,omitempty"`
}

// Handler — HTTP-обработчики Photo Worker.
type Handler struct {
	store    ObjectStore
	prefix   string
	apiKey   string
	maxBytes int64
	allowed  map[string]bool
	logger   *slog.Logger
}

// NewHandler создаёт обработчики worker.
func NewHandler(store ObjectStore, cfg *config.WorkerConfig, logger *slog.Logger) *Handler {
	allowed := make(map[string]bool, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		allowed[strings.ToLower(t)] = true
	}
	return &Handler{
		store:    store,
		prefix:   strings.Trim(cfg.ObjectPrefix, "/"),
		apiKey:   cfg.APIKey,
		maxBytes: cfg.MaxUploadBytes,
		allowed:  allowed,
		logger:   logger.With(slog.String("component", "photo_worker")),
	}
}

// Router возвращает маршруты worker. Health и metrics доступны без API-ключа.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(h.logger))

	r.Get("/health/live", h.HealthLive)
	r.Get("/health/ready", h.HealthReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(h.requireAPIKey)
		r.Post("/upload", h.Upload)
		r.Post("/upload-batch", h.UploadBatch)
		r.Get("/list", h.List)
		r.Post("/delete", h.Delete)
	})
	return r
}

// requireAPIKey проверяет заголовок X-API-Key (пустой ключ в конфигурации — проверка отключена).
func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.apiKey != "" {
			key := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(key), []byte(h.apiKey)) != 1 {
				writeResponse(w, http.StatusUnauthorized, response{Error: "неверный или отсутствующий API-ключ"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// HealthLive — процесс жив.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeResponse(w, http.StatusOK, response{OK: true})
}

// HealthReady — хранилище доступно.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		writeResponse(w, http.StatusServiceUnavailable, response{Error: "хранилище недоступно: " + err.Error()})
		return
	}
	writeResponse(w, http.StatusOK, response{OK: true})
}

// Upload — POST /upload (multipart: file, moto_id, filename).
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if !h.parseMultipart(w, r, "upload") {
		return
	}

	motoID := r.FormValue("moto_id")
	filename := r.FormValue("filename")
	if err := validateTarget(motoID, filename); err != nil {
		h.fail(w, "upload", err)
		return
	}
	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		h.fail(w, "upload", fmt.Errorf("%w: поле file обязательно", errBadRequest))
		return
	}

	if err := h.putFile(r.Context(), motoID, filename, headers[0]); err != nil {
		h.fail(w, "upload", err)
		return
	}

	h.done("upload", start)
	h.logger.Info("Фотография сохранена",
		slog.String("moto_id", motoID),
		slog.String("filename", filename),
	)
	writeResponse(w, http.StatusOK, response{OK: true})
}

// UploadBatch — POST /upload-batch (multipart: moto_id, пары path{i}/file{i}).
// Объекты записываются параллельно; ошибка любого файла — ошибка всего запроса.
func (h *Handler) UploadBatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if !h.parseMultipart(w, r, "upload-batch") {
		return
	}

	motoID := r.FormValue("moto_id")
	if motoID == "" || formfmt.CleanID(motoID) != motoID {
		h.fail(w, "upload-batch", fmt.Errorf("%w: некорректный moto_id %q", errBadRequest, motoID))
		return
	}

	type item struct {
		filename string
		header   *multipart.FileHeader
	}
	var items []item
	for i := 0; ; i++ {
		idx := strconv.Itoa(i)
		p := r.FormValue("path" + idx)
		if p == "" {
			break
		}
		id, filename, err := slots.ParsePath(p)
		if err != nil || id != motoID {
			h.fail(w, "upload-batch", fmt.Errorf("%w: путь %q не принадлежит %s", errBadRequest, p, motoID))
			return
		}
		if err := validateTarget(id, filename); err != nil {
			h.fail(w, "upload-batch", err)
			return
		}
		headers := r.MultipartForm.File["file"+idx]
		if len(headers) == 0 {
			h.fail(w, "upload-batch", fmt.Errorf("%w: нет файла file%s", errBadRequest, idx))
			return
		}
		items = append(items, item{filename: filename, header: headers[0]})
	}
	if len(items) == 0 {
		h.fail(w, "upload-batch", fmt.Errorf("%w: нет файлов", errBadRequest))
		return
	}

	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(storeConcurrency)
	for _, it := range items {
		g.Go(func() error {
			return h.putFile(ctx, motoID, it.filename, it.header)
		})
	}
	if err := g.Wait(); err != nil {
		h.fail(w, "upload-batch", err)
		return
	}

	h.done("upload-batch", start)
	h.logger.Info("Пакет фотографий сохранён",
		slog.String("moto_id", motoID),
		slog.Int("files", len(items)),
	)
	writeResponse(w, http.StatusOK, response{OK: true})
}

// List — GET /list?moto_id=...
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	motoID := r.URL.Query().Get("moto_id")
	if motoID == "" || formfmt.CleanID(motoID) != motoID {
		h.fail(w, "list", fmt.Errorf("%w: некорректный moto_id %q", errBadRequest, motoID))
		return
	}

	files, err := h.listFiles(r.Context(), motoID)
	if err != nil {
		h.fail(w, "list", err)
		return
	}

	h.done("list", start)
	if files == nil {
		files = []string{}
	}
	writeResponse(w, http.StatusOK, response{OK: true, Files: files})
}

// Delete — POST /delete (JSON {moto_id, mode, filename?}).
// Удаление отсутствующего файла возвращает deleted = 0.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req workerclient.DeleteRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, "delete", fmt.Errorf("%w: некорректный JSON: %w", errBadRequest, err))
		return
	}
	if req.MotoID == "" || formfmt.CleanID(req.MotoID) != req.MotoID {
		h.fail(w, "delete", fmt.Errorf("%w: некорректный moto_id %q", errBadRequest, req.MotoID))
		return
	}
	if !req.Mode.Valid() {
		h.fail(w, "delete", fmt.Errorf("%w: недопустимый режим %q", errBadRequest, req.Mode))
		return
	}
	if req.Mode == model.DeleteOne && !validFilename(req.Filename) {
		h.fail(w, "delete", fmt.Errorf("%w: недопустимое имя файла %q", errBadRequest, req.Filename))
		return
	}

	files, err := h.listFiles(r.Context(), req.MotoID)
	if err != nil {
		h.fail(w, "delete", err)
		return
	}

	var targets []string
	for _, f := range files {
		switch req.Mode {
		case model.DeleteOne:
			if f == req.Filename {
				targets = append(targets, f)
			}
		case model.DeleteKeepCover:
			if f != model.SlotCover+".jpg" {
				targets = append(targets, f)
			}
		case model.DeleteAll:
			targets = append(targets, f)
		}
	}

	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(storeConcurrency)
	for _, f := range targets {
		g.Go(func() error {
			return h.store.Remove(ctx, h.key(req.MotoID, f))
		})
	}
	if err := g.Wait(); err != nil {
		h.fail(w, "delete", err)
		return
	}

	deleted := len(targets)
	objectsDeletedTotal.WithLabelValues(string(req.Mode)).Add(float64(deleted))
	h.done("delete", start)
	h.logger.Info("Фотографии удалены",
		slog.String("moto_id", req.MotoID),
		slog.String("mode", string(req.Mode)),
		slog.Int("deleted", deleted),
	)
	writeResponse(w, http.StatusOK, response{OK: true, Deleted: &deleted})
}

func (h *Handler) parseMultipart(w http.ResponseWriter, r *http.Request, op string) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			operationsTotal.WithLabelValues(op, "too_large").Inc()
			writeResponse(w, http.StatusRequestEntityTooLarge, response{
				Error: fmt.Sprintf("размер запроса превышает %d байт", h.maxBytes),
			})
			return false
		}
		h.fail(w, op, fmt.Errorf("%w: некорректный multipart-запрос: %w", errBadRequest, err))
		return false
	}
	return true
}

// putFile проверяет MIME-тип файла и записывает его в хранилище.
func (h *Handler) putFile(ctx context.Context, motoID, filename string, fh *multipart.FileHeader) error {
	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("открытие файла %s: %w", filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("чтение файла %s: %w", filename, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: пустой файл %s", errBadRequest, filename)
	}

	ct := strings.ToLower(fh.Header.Get("Content-Type"))
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
	}
	if len(h.allowed) > 0 && !h.allowed[ct] {
		return fmt.Errorf("%w: тип %s не разрешён", errBadRequest, ct)
	}

	if err := h.store.Put(ctx, h.key(motoID, filename), bytes.NewReader(data), int64(len(data)), ct); err != nil {
		return err
	}
	objectsWrittenTotal.Inc()
	return nil
}

// listFiles возвращает отсортированные имена файлов записи.
func (h *Handler) listFiles(ctx context.Context, motoID string) ([]string, error) {
	dir := h.key(motoID, "") + "/"
	keys, err := h.store.List(ctx, dir)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(keys))
	for _, k := range keys {
		name := strings.TrimPrefix(k, dir)
		// Вложенные каталоги не относятся к слотам записи
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		files = append(files, name)
	}
	sort.Strings(files)
	return files, nil
}

// key строит ключ объекта {prefix}/{moto_id}/{filename}.
func (h *Handler) key(motoID, filename string) string {
	return path.Join(h.prefix, motoID, filename)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	result := "error"
	if errors.Is(err, errBadRequest) {
		status = http.StatusBadRequest
		result = "invalid"
	} else {
		h.logger.Error("Ошибка операции worker", slog.String("op", op), slog.String("error", err.Error()))
	}
	operationsTotal.WithLabelValues(op, result).Inc()
	writeResponse(w, status, response{Error: err.Error()})
}

func (h *Handler) done(op string, start time.Time) {
	operationsTotal.WithLabelValues(op, "ok").Inc()
	operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func validateTarget(motoID, filename string) error {
	if motoID == "" || formfmt.CleanID(motoID) != motoID {
		return fmt.Errorf("%w: некорректный moto_id %q", errBadRequest, motoID)
	}
	if !validFilename(filename) {
		return fmt.Errorf("%w: недопустимое имя файла %q", errBadRequest, filename)
	}
	return nil
}

// validFilename допускает имена из [A-Za-z0-9._-], не начинающиеся с точки.
func validFilename(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") || strings.Contains(name, "..") {
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

func writeResponse(w http.ResponseWriter, status int, resp response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
