// Пакет slots — отображение записи на пять фиксированных слотов фотографий
// и построение публичных URL.
package slots

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/danilomotos/moto-admin/internal/domain/model"
)

// ErrInvalidPath — путь фотографии не в формате {id}/{filename}.
var ErrInvalidPath = errors.New("некорректный путь фотографии")

// keys — порядок слотов: обложка, затем 1..4.
var keys = [model.MaxSlots]string{model.SlotCover, "1", "2", "3", "4"}

// For возвращает пять слотов записи в фиксированном порядке, обложка первой.
func For(id string) []model.PhotoSlot {
	result := make([]model.PhotoSlot, 0, len(keys))
	for i, key := range keys {
		result = append(result, slotAt(id, i, key))
	}
	return result
}

// SlotByKey возвращает слот по ключу (capa, 1..4).
func SlotByKey(id, key string) (model.PhotoSlot, bool) {
	for i, k := range keys {
		if k == key {
			return slotAt(id, i, k), true
		}
	}
	return model.PhotoSlot{}, false
}

// IsSlotFilename сообщает, является ли имя файла именем одного из слотов.
func IsSlotFilename(filename string) bool {
	for _, k := range keys {
		if k+".jpg" == filename {
			return true
		}
	}
	return false
}

// TargetPaths возвращает первые min(n, 5) путей в порядке слотов.
func TargetPaths(id string, n int) []string {
	if n > len(keys) {
		n = len(keys)
	}
	if n <= 0 {
		return nil
	}
	paths := make([]string, 0, n)
	for i := 0; i < n; i++ {
		paths = append(paths, id+"/"+keys[i]+".jpg")
	}
	return paths
}

// ParsePath разбирает путь {id}/{filename}.
func ParsePath(path string) (id, filename string, err error) {
	id, filename, ok := strings.Cut(path, "/")
	if !ok || id == "" || filename == "" || strings.Contains(filename, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return id, filename, nil
}

// PublicURL строит {base}/{path} и добавляет ?v={token}, если токен не пуст.
func PublicURL(base, path, token string) string {
	u := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	if token != "" {
		u += "?v=" + url.QueryEscape(token)
	}
	return u
}

func slotAt(id string, index int, key string) model.PhotoSlot {
	filename := key + ".jpg"
	label := "Capa"
	if index > 0 {
		label = "Foto " + strconv.Itoa(index)
	}
	return model.PhotoSlot{
		Key:      key,
		Filename: filename,
		Path:     id + "/" + filename,
		Label:    label,
	}
}
