package admin

import "context"

// Confirmer — порт подтверждения разрушающих действий пользователем.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmFunc адаптирует функцию к интерфейсу Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) bool

// Confirm вызывает f.
func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool {
	return f(ctx, prompt)
}

var (
	// Always подтверждает любое действие.
	Always Confirmer = ConfirmFunc(func(context.Context, string) bool { return true })
	// Never отклоняет любое действие.
	Never Confirmer = ConfirmFunc(func(context.Context, string) bool { return false })
)

// Тексты подтверждений
const (
	PromptMarkSold = "Пометить как проданный и удалить все фотографии, кроме обложки?"
	PromptDelete   = "Удалить запись и ВСЕ её фотографии?"
)
