// Пакет repository — SQL-доступ к таблице motos через pgx (без ORM).
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound — записи с таким id нет.
	ErrNotFound = errors.New("запись не найдена")
	// ErrInvalid — значение отклонено ограничением таблицы (например, статус вне списка).
	ErrInvalid = errors.New("запись нарушает ограничения таблицы")
)

// codeCheckViolation — SQLSTATE check_violation.
const codeCheckViolation = "23514"

// DBTX — общий интерфейс *pgxpool.Pool и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// classify переводит ошибки pgx в ошибки пакета; op попадает в текст прочих ошибок.
func classify(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeCheckViolation {
		return fmt.Errorf("%w: %s", ErrInvalid, pgErr.ConstraintName)
	}
	return fmt.Errorf("%s: %w", op, err)
}
