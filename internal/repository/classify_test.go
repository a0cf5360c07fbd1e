package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"нет строк", pgx.ErrNoRows, ErrNotFound},
		{"обёрнутое отсутствие строк", fmt.Errorf("scan: %w", pgx.ErrNoRows), ErrNotFound},
		{"check violation", &pgconn.PgError{Code: "23514", ConstraintName: "motos_status_check"}, ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify("op", tt.err); !errors.Is(got, tt.want) {
				t.Errorf("classify = %v, ожидается %v", got, tt.want)
			}
		})
	}

	other := errors.New("connection reset")
	got := classify("чтение moto x", other)
	if !errors.Is(got, other) || errors.Is(got, ErrNotFound) || errors.Is(got, ErrInvalid) {
		t.Errorf("прочая ошибка: %v", got)
	}
}
