package model

import "time"

// Status — статус мотоцикла в каталоге.
type Status string

const (
	// StatusAvailable — «disponivel», в продаже.
	StatusAvailable Status = "disponivel"
	// StatusReserved — «reservada», забронирован.
	StatusReserved Status = "reservada"
	// StatusSold — «vendida», продан.
	StatusSold Status = "vendida"
)

// DefaultOrdem — позиция в каталоге для записей без явного порядка.
const DefaultOrdem = 999

// Valid сообщает, является ли статус одним из допустимых значений.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusReserved, StatusSold:
		return true
	}
	return false
}

// Moto — запись мотоцикла.
// Хранится в таблице motos.
type Moto struct {
	// ID — slug-идентификатор, неизменяемый, совпадает с именем папки фотографий
	ID string
	// Ordem — позиция в каталоге (nil — не задана, сортируется как DefaultOrdem)
	Ordem *int
	// Status — disponivel, reservada, vendida
	Status Status
	// Titulo — заголовок объявления
	Titulo string
	// Preco — цена, только цифры
	Preco string
	// Ano — год выпуска
	Ano string
	// Km — пробег, только цифры
	Km string
	Cor         string
	Cilindrada  string
	Combustivel string
	Partida     string
	// Youtube — ссылка на видео
	Youtube     string
	Observacoes string
	// Emplacada — мотоцикл зарегистрирован
	Emplacada bool
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — маркер последнего изменения, используется для сброса кэша фотографий
	UpdatedAt time.Time
}

// OrdemOrDefault возвращает позицию в каталоге с учётом значения по умолчанию.
func (m *Moto) OrdemOrDefault() int {
	if m.Ordem == nil {
		return DefaultOrdem
	}
	return *m.Ordem
}

// VersionToken возвращает токен сброса кэша для URL фотографий
// (Unix-время UpdatedAt в миллисекундах, пустая строка для нулевого времени).
func (m *Moto) VersionToken() string {
	if m.UpdatedAt.IsZero() {
		return ""
	}
	return formatInt(m.UpdatedAt.UnixMilli())
}
