package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danilomotos/moto-admin/internal/domain/model"
	"github.com/danilomotos/moto-admin/internal/repository"
	"github.com/danilomotos/moto-admin/internal/workerclient"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeWorker — Photo Worker в памяти.
type fakeWorker struct {
	mu sync.Mutex

	batchErr  error
	uploadErr func(filename string) error
	listErr   error
	delay     time.Duration

	files       map[string]map[string]bool // moto_id → filenames
	batchCalls  int
	uploadCalls map[string]int // path → calls
	deleteCalls []workerclient.DeleteRequest
	batchPaths  []string

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeWorker() *fakeWorker {
	return &fakeWorker{
		files:       map[string]map[string]bool{},
		uploadCalls: map[string]int{},
	}
}

func (f *fakeWorker) put(motoID, filename string) {
	if f.files[motoID] == nil {
		f.files[motoID] = map[string]bool{}
	}
	f.files[motoID][filename] = true
}

func (f *fakeWorker) Upload(_ context.Context, motoID, filename string, _ model.PhotoFile) error {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadCalls[motoID+"/"+filename]++
	if f.uploadErr != nil {
		if err := f.uploadErr(filename); err != nil {
			return err
		}
	}
	f.put(motoID, filename)
	return nil
}

func (f *fakeWorker) UploadBatch(_ context.Context, motoID string, entries []model.UploadEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	f.batchPaths = f.batchPaths[:0]
	for _, e := range entries {
		f.batchPaths = append(f.batchPaths, e.Path)
	}
	if f.batchErr != nil {
		return f.batchErr
	}
	for _, e := range entries {
		f.put(motoID, e.Path[len(motoID)+1:])
	}
	return nil
}

func (f *fakeWorker) List(_ context.Context, motoID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	result := []string{}
	for name := range f.files[motoID] {
		result = append(result, name)
	}
	return result, nil
}

func (f *fakeWorker) Delete(_ context.Context, req workerclient.DeleteRequest) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls = append(f.deleteCalls, req)

	deleted := 0
	for name := range f.files[req.MotoID] {
		remove := false
		switch req.Mode {
		case model.DeleteAll:
			remove = true
		case model.DeleteKeepCover:
			remove = name != "capa.jpg"
		case model.DeleteOne:
			remove = name == req.Filename
		}
		if remove {
			delete(f.files[req.MotoID], name)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeWorker) has(motoID, filename string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[motoID][filename]
}

func (f *fakeWorker) deleteCallsByMode(mode model.DeleteMode) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.deleteCalls {
		if c.Mode == mode {
			n++
		}
	}
	return n
}

// fakeToucher — обновление updated_at в памяти.
type fakeToucher struct {
	mu      sync.Mutex
	err     error
	missing bool
	calls   int
	at      time.Time
}

func (t *fakeToucher) Touch(_ context.Context, _ string) (time.Time, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if t.missing {
		return time.Time{}, repository.ErrNotFound
	}
	if t.err != nil {
		return time.Time{}, t.err
	}
	if t.at.IsZero() {
		t.at = time.UnixMilli(1_700_000_000_000)
	}
	return t.at, nil
}

// passthroughOptimizer возвращает файлы без изменений, считая вызовы.
type passthroughOptimizer struct {
	single atomic.Int32
	all    atomic.Int32
}

func (o *passthroughOptimizer) Optimize(f model.PhotoFile) model.PhotoFile {
	o.single.Add(1)
	f.Name = "opt-" + f.Name
	return f
}

func (o *passthroughOptimizer) OptimizeAll(_ context.Context, files []model.PhotoFile) []model.PhotoFile {
	o.all.Add(1)
	out := make([]model.PhotoFile, len(files))
	for i, f := range files {
		f.Name = "opt-" + f.Name
		out[i] = f
	}
	return out
}

var errWorkerDown = errors.New("worker down")
