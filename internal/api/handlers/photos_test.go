package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
)

// multipartRequest строит multipart-запрос с файлами в поле field.
func multipartRequest(t *testing.T, method, target, field string, names ...string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range names {
		part, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = part.Write([]byte("jpeg-bytes-" + name))
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return withPrincipal(req, "sid-1")
}

func TestGetPhotos(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/motos/cg-160/photos", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp photoViewResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Slots) != 5 {
		t.Fatalf("слотов %d, ожидается 5", len(resp.Slots))
	}
	if resp.Slots[0].URL != testAssetBase+"/cg-160/capa.jpg?v=1700000000000" {
		t.Errorf("URL обложки = %q", resp.Slots[0].URL)
	}

	tests := []struct {
		index   int
		present bool
	}{
		{0, true}, {1, true}, {2, true}, {3, false}, {4, false},
	}
	for _, tt := range tests {
		s := resp.Slots[tt.index]
		if s.Present == nil || *s.Present != tt.present {
			t.Errorf("слот %s: present = %v, ожидается %v", s.Key, s.Present, tt.present)
		}
	}
}

func TestGetPhotos_UnsavedRecordHasNoToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/motos/nova/photos", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp photoViewResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Slots[0].URL != testAssetBase+"/nova/capa.jpg" {
		t.Errorf("URL = %q, ожидается без ?v=", resp.Slots[0].URL)
	}
}

func TestUploadPhotos(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, multipartRequest(t, http.MethodPost, "/api/v1/motos/cg-160/photos", "files", "a.jpg", "b.jpg"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp uploadResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Path != "batch" || resp.Uploaded != 2 {
		t.Errorf("ответ = %+v", resp)
	}
	if len(env.records.touched) != 1 {
		t.Errorf("touch вызван %d раз, ожидается 1", len(env.records.touched))
	}
}

func TestUploadPhotos_FallbackOnBatchFailure(t *testing.T) {
	env := newTestEnv(t)
	env.worker.batchErr = errWorkerDown

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, multipartRequest(t, http.MethodPost, "/api/v1/motos/xre-300/photos", "files", "a.jpg", "b.jpg", "c.jpg"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp uploadResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Path != "fallback" {
		t.Errorf("path = %q, ожидается fallback", resp.Path)
	}
	for _, name := range []string{"capa.jpg", "1.jpg", "2.jpg"} {
		if !env.worker.has("xre-300", name) {
			t.Errorf("файл %s не загружен", name)
		}
	}
}

func TestUploadSlot(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		field      string
		wantStatus int
	}{
		{"замена слота", "/api/v1/motos/cg-160/photos/3", "file", http.StatusOK},
		{"неизвестный слот", "/api/v1/motos/cg-160/photos/9", "file", http.StatusBadRequest},
		{"нет поля file", "/api/v1/motos/cg-160/photos/capa", "files", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := httptest.NewRecorder()
			env.router.ServeHTTP(rec, multipartRequest(t, http.MethodPut, tt.target, tt.field, "x.jpg"))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, ожидается %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestDeletePhoto(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodDelete, "/api/v1/motos/cg-160/photos/1.jpg", "")
	var resp deleteResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || resp.Deleted != 1 {
		t.Errorf("status = %d, deleted = %d", rec.Code, resp.Deleted)
	}

	// Повторное удаление — не ошибка
	rec = env.do(t, http.MethodDelete, "/api/v1/motos/cg-160/photos/1.jpg", "")
	resp = deleteResponse{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || resp.Deleted != 0 {
		t.Errorf("повторно: status = %d, deleted = %d", rec.Code, resp.Deleted)
	}
}

func TestDeletePhotos_Modes(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		wantStatus  int
		wantDeleted int
	}{
		{"keep_cover", "?mode=keep_cover", http.StatusOK, 2},
		{"delete_all", "?mode=delete_all", http.StatusOK, 3},
		{"без режима", "", http.StatusBadRequest, 0},
		{"delete_one без имени", "?mode=delete_one", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(t, http.MethodDelete, "/api/v1/motos/cg-160/photos"+tt.query, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, ожидается %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp deleteResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Deleted != tt.wantDeleted {
				t.Errorf("deleted = %d, ожидается %d", resp.Deleted, tt.wantDeleted)
			}
		})
	}
}
