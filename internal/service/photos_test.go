package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/danilomotos/moto-admin/internal/domain/model"
)

func newTestPhotoService(w *fakeWorker, touch *fakeToucher) (*PhotoService, *passthroughOptimizer) {
	opt := &passthroughOptimizer{}
	svc := NewPhotoService(w, touch, opt, PhotoServiceConfig{
		AssetBase:         "https://img.example.com",
		UploadConcurrency: 3,
	}, testLogger())
	return svc, opt
}

func photoFiles(n int) []model.PhotoFile {
	files := make([]model.PhotoFile, n)
	for i := range files {
		files[i] = model.PhotoFile{
			Name:        fmt.Sprintf("img%d.png", i),
			ContentType: "image/png",
			// Размеры различаются, чтобы порядок не зависел от размера
			Data: make([]byte, (n-i)*100),
		}
	}
	return files
}

func TestUploadMulti_SlotOrder(t *testing.T) {
	for n := 1; n <= 5; n++ {
		t.Run(fmt.Sprintf("%d файлов", n), func(t *testing.T) {
			w := newFakeWorker()
			svc, _ := newTestPhotoService(w, &fakeToucher{})

			res, err := svc.UploadMulti(context.Background(), "xre-300-2022", photoFiles(n))
			if err != nil {
				t.Fatalf("UploadMulti вернул ошибку: %v", err)
			}
			if res.Path != "batch" || res.Uploaded != n {
				t.Errorf("Path=%q Uploaded=%d, ожидается batch/%d", res.Path, res.Uploaded, n)
			}

			expected := []string{
				"xre-300-2022/capa.jpg", "xre-300-2022/1.jpg", "xre-300-2022/2.jpg",
				"xre-300-2022/3.jpg", "xre-300-2022/4.jpg",
			}[:n]
			if len(w.batchPaths) != n {
				t.Fatalf("batch paths = %v, ожидается %d", w.batchPaths, n)
			}
			for i, p := range expected {
				if w.batchPaths[i] != p {
					t.Errorf("путь %d = %q, ожидается %q", i, w.batchPaths[i], p)
				}
			}
		})
	}
}

func TestUploadMulti_DropsExtraFiles(t *testing.T) {
	w := newFakeWorker()
	svc, _ := newTestPhotoService(w, &fakeToucher{})

	res, err := svc.UploadMulti(context.Background(), "cg-160", photoFiles(8))
	if err != nil {
		t.Fatalf("UploadMulti вернул ошибку: %v", err)
	}
	if res.Uploaded != 5 || len(w.batchPaths) != 5 {
		t.Errorf("загружено %d (batch %d), ожидается 5", res.Uploaded, len(w.batchPaths))
	}
	if w.batchPaths[4] != "cg-160/4.jpg" {
		t.Errorf("последний путь = %q", w.batchPaths[4])
	}
}

func TestUploadMulti_FallbackOncePerFileBounded(t *testing.T) {
	w := newFakeWorker()
	w.batchErr = errWorkerDown
	w.delay = 20 * time.Millisecond
	touch := &fakeToucher{}
	svc, opt := newTestPhotoService(w, touch)

	res, err := svc.UploadMulti(context.Background(), "cg-160", photoFiles(5))
	if err != nil {
		t.Fatalf("UploadMulti вернул ошибку: %v", err)
	}
	if res.Path != "fallback" {
		t.Errorf("Path = %q, ожидается fallback", res.Path)
	}
	if w.batchCalls != 1 {
		t.Errorf("batch вызван %d раз, ожидается 1", w.batchCalls)
	}
	if len(w.uploadCalls) != 5 {
		t.Errorf("поштучно загружено %d путей, ожидается 5", len(w.uploadCalls))
	}
	for path, calls := range w.uploadCalls {
		if calls != 1 {
			t.Errorf("%s загружен %d раз, ожидается 1", path, calls)
		}
	}
	if got := w.maxInFlight.Load(); got > 3 {
		t.Errorf("одновременно %d загрузок, ожидается не более 3", got)
	}
	// Оптимизация выполняется один раз, fallback использует готовые данные
	if opt.all.Load() != 1 || opt.single.Load() != 0 {
		t.Errorf("оптимизаций: all=%d single=%d, ожидается 1/0", opt.all.Load(), opt.single.Load())
	}
	if touch.calls != 1 {
		t.Errorf("touch вызван %d раз, ожидается 1", touch.calls)
	}
}

func TestUploadMulti_FallbackFailureIsCritical(t *testing.T) {
	w := newFakeWorker()
	w.batchErr = errWorkerDown
	w.uploadErr = func(filename string) error {
		if filename == "2.jpg" {
			return errWorkerDown
		}
		return nil
	}
	touch := &fakeToucher{}
	svc, _ := newTestPhotoService(w, touch)

	_, err := svc.UploadMulti(context.Background(), "cg-160", photoFiles(4))
	if !errors.Is(err, ErrWorkerUnavailable) || !errors.Is(err, errWorkerDown) {
		t.Fatalf("ожидалась ErrWorkerUnavailable с причиной, получено %v", err)
	}
	if touch.calls != 0 {
		t.Error("touch не должен вызываться при ошибке загрузки")
	}
	// Остальные файлы загружены (без отката)
	if !w.has("cg-160", "capa.jpg") || !w.has("cg-160", "3.jpg") {
		t.Error("успешные загрузки должны сохраниться")
	}
}

func TestUploadMulti_Validation(t *testing.T) {
	w := newFakeWorker()
	svc, _ := newTestPhotoService(w, &fakeToucher{})

	_, err := svc.UploadMulti(context.Background(), "  !!! ", photoFiles(2))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("ожидалась ErrValidation, получено %v", err)
	}
	if w.batchCalls != 0 || len(w.uploadCalls) != 0 {
		t.Error("при ошибке валидации запросы к worker недопустимы")
	}

	res, err := svc.UploadMulti(context.Background(), "cg-160", nil)
	if err != nil {
		t.Fatalf("пустой список: %v", err)
	}
	if res.Uploaded != 0 || w.batchCalls != 0 {
		t.Error("пустой список не должен вызывать worker")
	}
}

func TestUploadMulti_TouchIsAdvisory(t *testing.T) {
	w := newFakeWorker()
	touch := &fakeToucher{err: errors.New("db down")}
	svc, _ := newTestPhotoService(w, touch)

	res, err := svc.UploadMulti(context.Background(), "cg-160", photoFiles(1))
	if err != nil {
		t.Fatalf("ошибка touch не должна быть критичной: %v", err)
	}
	if len(res.Advisory) != 1 {
		t.Errorf("Advisory = %v, ожидается одно предупреждение", res.Advisory)
	}
	if res.View.Version == "" {
		t.Error("токен версии должен быть заполнен текущим временем")
	}

	// Запись ещё не сохранена — без предупреждения
	touch = &fakeToucher{missing: true}
	svc, _ = newTestPhotoService(w, touch)
	res, err = svc.UploadMulti(context.Background(), "nova", photoFiles(1))
	if err != nil {
		t.Fatalf("UploadMulti: %v", err)
	}
	if !res.Clean() {
		t.Errorf("Advisory = %v, ожидается пусто", res.Advisory)
	}
}

func TestUploadMulti_ViewURLs(t *testing.T) {
	w := newFakeWorker()
	svc, _ := newTestPhotoService(w, &fakeToucher{})

	res, err := svc.UploadMulti(context.Background(), "CG 160", photoFiles(2))
	if err != nil {
		t.Fatalf("UploadMulti: %v", err)
	}
	if res.View.MotoID != "cg-160" {
		t.Errorf("MotoID = %q, ожидается cg-160", res.View.MotoID)
	}
	if len(res.View.Slots) != 5 {
		t.Fatalf("слотов %d, ожидается 5", len(res.View.Slots))
	}
	want := "https://img.example.com/cg-160/capa.jpg?v=1700000000000"
	if res.View.Slots[0].URL != want {
		t.Errorf("URL обложки = %q, ожидается %q", res.View.Slots[0].URL, want)
	}
}

func TestUploadSlot(t *testing.T) {
	w := newFakeWorker()
	svc, opt := newTestPhotoService(w, &fakeToucher{})

	res, err := svc.UploadSlot(context.Background(), "cg-160", "3", model.PhotoFile{Name: "a.png", Data: []byte("x")})
	if err != nil {
		t.Fatalf("UploadSlot: %v", err)
	}
	if res.Path != "single" || !w.has("cg-160", "3.jpg") {
		t.Errorf("слот 3 не загружен: %+v", res)
	}
	if opt.single.Load() != 1 {
		t.Error("файл должен быть оптимизирован")
	}

	if _, err := svc.UploadSlot(context.Background(), "cg-160", "9", model.PhotoFile{Data: []byte("x")}); !errors.Is(err, ErrValidation) {
		t.Errorf("неизвестный слот: ожидалась ErrValidation, получено %v", err)
	}
	if _, err := svc.UploadSlot(context.Background(), "cg-160", "1", model.PhotoFile{}); !errors.Is(err, ErrValidation) {
		t.Errorf("пустой файл: ожидалась ErrValidation, получено %v", err)
	}

	w.uploadErr = func(string) error { return errWorkerDown }
	if _, err := svc.UploadSlot(context.Background(), "cg-160", "1", model.PhotoFile{Data: []byte("x")}); !errors.Is(err, ErrWorkerUnavailable) {
		t.Errorf("ожидалась ErrWorkerUnavailable, получено %v", err)
	}
}

func TestDeletePhotos_DeleteOneIdempotent(t *testing.T) {
	w := newFakeWorker()
	w.put("cg-160", "capa.jpg")
	w.put("cg-160", "1.jpg")
	svc, _ := newTestPhotoService(w, &fakeToucher{})

	res, err := svc.DeletePhotos(context.Background(), "cg-160", model.DeleteOne, "1.jpg")
	if err != nil {
		t.Fatalf("DeletePhotos: %v", err)
	}
	if res.Deleted != 1 {
		t.Errorf("Deleted = %d, ожидается 1", res.Deleted)
	}

	res, err = svc.DeletePhotos(context.Background(), "cg-160", model.DeleteOne, "1.jpg")
	if err != nil {
		t.Fatalf("повторное удаление должно быть успешным: %v", err)
	}
	if res.Deleted != 0 {
		t.Errorf("Deleted = %d, ожидается 0", res.Deleted)
	}
}

func TestDeletePhotos_Validation(t *testing.T) {
	w := newFakeWorker()
	svc, _ := newTestPhotoService(w, &fakeToucher{})

	tests := []struct {
		name     string
		id       string
		mode     model.DeleteMode
		filename string
	}{
		{"пустой id", "", model.DeleteAll, ""},
		{"неизвестный режим", "cg", "wipe", ""},
		{"delete_one без имени", "cg", model.DeleteOne, ""},
		{"обход пути", "cg", model.DeleteOne, "../other/capa.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.DeletePhotos(context.Background(), tt.id, tt.mode, tt.filename); !errors.Is(err, ErrValidation) {
				t.Errorf("ожидалась ErrValidation, получено %v", err)
			}
		})
	}
	if len(w.deleteCalls) != 0 {
		t.Error("при ошибке валидации запросы к worker недопустимы")
	}
}

func TestDeletePhotos_KeepCover(t *testing.T) {
	w := newFakeWorker()
	for _, f := range []string{"capa.jpg", "1.jpg", "2.jpg"} {
		w.put("cg-160", f)
	}
	var changed []string
	svc := NewPhotoService(w, &fakeToucher{}, &passthroughOptimizer{}, PhotoServiceConfig{
		AssetBase: "https://img.example.com",
		OnChange:  func(id string) { changed = append(changed, id) },
	}, testLogger())

	res, err := svc.DeletePhotos(context.Background(), "cg-160", model.DeleteKeepCover, "")
	if err != nil {
		t.Fatalf("DeletePhotos: %v", err)
	}
	if res.Deleted != 2 || !w.has("cg-160", "capa.jpg") {
		t.Errorf("Deleted = %d, обложка сохранена: %v", res.Deleted, w.has("cg-160", "capa.jpg"))
	}
	if len(changed) != 1 || changed[0] != "cg-160" {
		t.Errorf("OnChange = %v", changed)
	}
}

func TestView_Presence(t *testing.T) {
	w := newFakeWorker()
	w.put("cg-160", "capa.jpg")
	w.put("cg-160", "3.jpg")
	svc, _ := newTestPhotoService(w, &fakeToucher{})

	view, outcome, err := svc.View(context.Background(), "cg-160", "42")
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if !outcome.Clean() {
		t.Errorf("Advisory = %v", outcome.Advisory)
	}
	wantPresent := []bool{true, false, false, true, false}
	for i, s := range view.Slots {
		if s.Present == nil || *s.Present != wantPresent[i] {
			t.Errorf("слот %s: Present = %v, ожидается %v", s.Key, s.Present, wantPresent[i])
		}
	}

	w.listErr = errWorkerDown
	view, outcome, err = svc.View(context.Background(), "cg-160", "42")
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if outcome.Clean() {
		t.Error("ошибка списка должна попасть в Advisory")
	}
	if view.Slots[0].Present != nil {
		t.Error("Present должен быть nil, если список не получен")
	}
}
