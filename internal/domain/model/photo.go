package model

import "strconv"

// SlotCover — ключ слота обложки.
const SlotCover = "capa"

// MaxSlots — количество слотов фотографий у записи.
const MaxSlots = 5

// PhotoSlot — одна из пяти фиксированных позиций фотографии записи.
type PhotoSlot struct {
	// Key — capa, 1, 2, 3, 4
	Key string
	// Filename — capa.jpg, 1.jpg .. 4.jpg
	Filename string
	// Path — {id}/{filename}
	Path string
	// Label — Capa, Foto 1 .. Foto 4
	Label string
}

// PhotoFile — содержимое загружаемой фотографии.
type PhotoFile struct {
	// Name — исходное имя файла
	Name string
	// ContentType — MIME-тип
	ContentType string
	// Data — байты файла
	Data []byte
}

// Size возвращает размер файла в байтах.
func (f PhotoFile) Size() int64 {
	return int64(len(f.Data))
}

// UploadEntry — пара «целевой путь + файл» одной загрузки.
type UploadEntry struct {
	Path string
	File PhotoFile
}

// DeleteMode — режим удаления фотографий.
type DeleteMode string

const (
	// DeleteOne — удалить один файл.
	DeleteOne DeleteMode = "delete_one"
	// DeleteKeepCover — удалить всё, кроме обложки.
	DeleteKeepCover DeleteMode = "keep_cover"
	// DeleteAll — удалить все фотографии записи.
	DeleteAll DeleteMode = "delete_all"
)

// Valid сообщает, является ли режим одним из допустимых значений.
func (m DeleteMode) Valid() bool {
	switch m {
	case DeleteOne, DeleteKeepCover, DeleteAll:
		return true
	}
	return false
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
