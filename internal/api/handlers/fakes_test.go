package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/danilomotos/moto-admin/internal/admin"
	"github.com/danilomotos/moto-admin/internal/api/middleware"
	"github.com/danilomotos/moto-admin/internal/domain/model"
	"github.com/danilomotos/moto-admin/internal/repository"
	"github.com/danilomotos/moto-admin/internal/service"
	"github.com/danilomotos/moto-admin/internal/workerclient"
)

const testAssetBase = "https://img.example.com"

// testUpdatedAt — updated_at записей в тестах (токен 1700000000000).
var testUpdatedAt = time.UnixMilli(1_700_000_000_000).UTC()

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeRecords — хранилище записей в памяти.
// Реализует admin.Store, service.Toucher, service.MotoReader и RecordReader.
type fakeRecords struct {
	mu        sync.Mutex
	motos     map[string]*model.Moto
	listErr   error
	upsertErr error
	touched   []string
	events    *[]string
}

func newFakeRecords(motos ...*model.Moto) *fakeRecords {
	f := &fakeRecords{motos: map[string]*model.Moto{}}
	for _, m := range motos {
		f.motos[m.ID] = m
	}
	return f
}

func (f *fakeRecords) List(_ context.Context, status *model.Status) ([]*model.Moto, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	result := make([]*model.Moto, 0, len(f.motos))
	for _, m := range f.motos {
		if status != nil && m.Status != *status {
			continue
		}
		cp := *m
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (f *fakeRecords) GetByID(_ context.Context, id string) (*model.Moto, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.motos[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeRecords) Upsert(_ context.Context, m *model.Moto) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	cp := *m
	cp.UpdatedAt = testUpdatedAt
	if prev, ok := f.motos[m.ID]; ok {
		cp.CreatedAt = prev.CreatedAt
	} else {
		cp.CreatedAt = testUpdatedAt
	}
	f.motos[m.ID] = &cp
	return nil
}

func (f *fakeRecords) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.motos[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.motos, id)
	if f.events != nil {
		*f.events = append(*f.events, "record:"+id)
	}
	return nil
}

func (f *fakeRecords) Touch(_ context.Context, id string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.motos[id]
	if !ok {
		return time.Time{}, repository.ErrNotFound
	}
	f.touched = append(f.touched, id)
	m.UpdatedAt = testUpdatedAt
	return m.UpdatedAt, nil
}

func (f *fakeRecords) get(id string) (*model.Moto, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.motos[id]
	return m, ok
}

// fakeWorker — Photo Worker в памяти.
type fakeWorker struct {
	mu        sync.Mutex
	files     map[string]map[string]bool
	batchErr  error
	deleteErr error
	deletes   []workerclient.DeleteRequest
	events    *[]string
}

func newFakeWorker() *fakeWorker {
	return &fakeWorker{files: map[string]map[string]bool{}}
}

func (f *fakeWorker) put(motoID string, filenames ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.files[motoID] == nil {
		f.files[motoID] = map[string]bool{}
	}
	for _, n := range filenames {
		f.files[motoID][n] = true
	}
}

func (f *fakeWorker) has(motoID, filename string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[motoID][filename]
}

func (f *fakeWorker) count(motoID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.files[motoID])
}

func (f *fakeWorker) deletesByMode(mode model.DeleteMode) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, d := range f.deletes {
		if d.Mode == mode {
			n++
		}
	}
	return n
}

func (f *fakeWorker) Upload(_ context.Context, motoID, filename string, _ model.PhotoFile) error {
	f.put(motoID, filename)
	return nil
}

func (f *fakeWorker) UploadBatch(_ context.Context, _ string, entries []model.UploadEntry) error {
	if f.batchErr != nil {
		return f.batchErr
	}
	for _, e := range entries {
		motoID, filename, _ := strings.Cut(e.Path, "/")
		f.put(motoID, filename)
	}
	return nil
}

func (f *fakeWorker) List(_ context.Context, motoID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.files[motoID]))
	for n := range f.files[motoID] {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeWorker) Delete(_ context.Context, req workerclient.DeleteRequest) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, req)
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	if f.events != nil {
		*f.events = append(*f.events, "photos:"+string(req.Mode))
	}

	files := f.files[req.MotoID]
	deleted := 0
	for name := range files {
		remove := false
		switch req.Mode {
		case model.DeleteOne:
			remove = name == req.Filename
		case model.DeleteKeepCover:
			remove = name != model.SlotCover+".jpg"
		case model.DeleteAll:
			remove = true
		}
		if remove {
			delete(files, name)
			deleted++
		}
	}
	return deleted, nil
}

var errWorkerDown = errors.New("worker недоступен")

// passthroughOptimizer возвращает файлы без изменений.
type passthroughOptimizer struct{}

func (passthroughOptimizer) Optimize(f model.PhotoFile) model.PhotoFile { return f }

func (passthroughOptimizer) OptimizeAll(_ context.Context, files []model.PhotoFile) []model.PhotoFile {
	return files
}

// testEnv — обработчики поверх фейков с маршрутами как в сервере.
type testEnv struct {
	records  *fakeRecords
	worker   *fakeWorker
	registry *admin.Registry
	router   chi.Router
}

func ordem(n int) *int { return &n }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := testLogger()

	records := newFakeRecords(
		&model.Moto{
			ID: "cg-160", Ordem: ordem(1), Status: model.StatusAvailable, Titulo: "Honda CG 160",
			Preco: "15900", Ano: "2022", Km: "12000", CreatedAt: testUpdatedAt, UpdatedAt: testUpdatedAt,
		},
		&model.Moto{
			ID: "fan-150", Status: model.StatusSold, Titulo: "Honda Fan 150",
			Preco: "9900", Ano: "2015", Km: "40000", CreatedAt: testUpdatedAt, UpdatedAt: testUpdatedAt,
		},
	)
	worker := newFakeWorker()
	worker.put("cg-160", "capa.jpg", "1.jpg", "2.jpg")

	catalog := service.NewCatalogService(records, testAssetBase, time.Minute, logger)

	var registry *admin.Registry
	invalidate := func(string) {
		registry.InvalidateAll()
		catalog.Invalidate()
	}
	photos := service.NewPhotoService(worker, records, passthroughOptimizer{}, service.PhotoServiceConfig{
		AssetBase: testAssetBase,
		OnChange:  invalidate,
	}, logger)

	registry = admin.NewRegistry(16, time.Hour, func() *admin.Controller {
		return admin.NewController(records, photos, admin.Options{OnChange: invalidate}, logger)
	})

	motosH := NewMotosHandler(registry, logger)
	photosH := NewPhotosHandler(photos, records, 0, logger)
	catalogH := NewCatalogHandler(catalog, logger)

	r := chi.NewRouter()
	r.Get("/api/v1/catalog", catalogH.ListCatalog)
	r.Get("/api/v1/catalog/{id}", catalogH.GetCatalogItem)
	r.Get("/api/v1/editor", motosH.GetEditor)
	r.Route("/api/v1/motos", func(r chi.Router) {
		r.Get("/", motosH.ListMotos)
		r.Get("/{id}", motosH.GetMoto)
		r.Put("/{id}", motosH.PutMoto)
		r.Patch("/{id}/status", motosH.PatchMotoStatus)
		r.Delete("/{id}", motosH.DeleteMoto)
		r.Get("/{id}/photos", photosH.GetPhotos)
		r.Post("/{id}/photos", photosH.UploadPhotos)
		r.Delete("/{id}/photos", photosH.DeletePhotos)
		r.Put("/{id}/photos/{name}", photosH.UploadSlot)
		r.Delete("/{id}/photos/{name}", photosH.DeletePhoto)
	})

	return &testEnv{records: records, worker: worker, registry: registry, router: r}
}

// withPrincipal добавляет в запрос администратора cookie-сессии sid.
func withPrincipal(r *http.Request, sid string) *http.Request {
	p := &middleware.Principal{
		Subject:   "u-1",
		Email:     "danilo@example.com",
		SessionID: sid,
		Source:    middleware.SourceSession,
	}
	return r.WithContext(context.WithValue(r.Context(), middleware.ContextKeyPrincipal, p))
}
