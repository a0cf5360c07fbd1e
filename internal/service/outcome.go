package service

import (
	"log/slog"
)

// Outcome — некритичные последствия операции.
// Критичная ошибка возвращается как error, предупреждения копятся в Advisory
// и не прерывают операцию (например, обновление updated_at после загрузки).
type Outcome struct {
	Advisory []string
}

// Warn логирует предупреждение на уровне WARN и добавляет его в Advisory.
func (o *Outcome) Warn(logger *slog.Logger, message string, err error, attrs ...any) {
	text := message
	if err != nil {
		text = message + ": " + err.Error()
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	logger.Warn(message, attrs...)
	o.Advisory = append(o.Advisory, text)
}

// Merge добавляет предупреждения другого Outcome.
func (o *Outcome) Merge(other Outcome) {
	o.Advisory = append(o.Advisory, other.Advisory...)
}

// Clean сообщает, что предупреждений нет.
func (o *Outcome) Clean() bool {
	return len(o.Advisory) == 0
}
