package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/danilomotos/moto-admin/internal/domain/model"
)

// MotoRepository — интерфейс CRUD для таблицы motos.
type MotoRepository interface {
	// List возвращает записи, упорядоченные по ordem (NULL в конце), затем по created_at desc.
	// status nil — все записи.
	List(ctx context.Context, status *model.Status) ([]*model.Moto, error)
	// GetByID возвращает запись по идентификатору.
	GetByID(ctx context.Context, id string) (*model.Moto, error)
	// Upsert создаёт или обновляет запись (конфликт по id).
	Upsert(ctx context.Context, m *model.Moto) error
	// UpdateStatus меняет статус записи.
	UpdateStatus(ctx context.Context, id string, status model.Status) (*model.Moto, error)
	// Touch обновляет updated_at и возвращает новое значение.
	Touch(ctx context.Context, id string) (time.Time, error)
	// Delete удаляет запись.
	Delete(ctx context.Context, id string) error
}

// motoRepo — реализация MotoRepository.
type motoRepo struct {
	db DBTX
}

// NewMotoRepository создаёт репозиторий мотоциклов.
func NewMotoRepository(db DBTX) MotoRepository {
	return &motoRepo{db: db}
}

const motoColumns = `id, ordem, status, titulo, preco, ano, km, cor, cilindrada,
	combustivel, partida, youtube, observacoes, emplacada, created_at, updated_at`

func scanMoto(row pgx.Row) (*model.Moto, error) {
	m := &model.Moto{}
	var status string
	err := row.Scan(
		&m.ID, &m.Ordem, &status, &m.Titulo, &m.Preco, &m.Ano, &m.Km, &m.Cor, &m.Cilindrada,
		&m.Combustivel, &m.Partida, &m.Youtube, &m.Observacoes, &m.Emplacada,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Status = model.Status(status)
	return m, nil
}

func (r *motoRepo) List(ctx context.Context, status *model.Status) ([]*model.Moto, error) {
	query := `SELECT ` + motoColumns + ` FROM motos`
	var args []any
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, string(*status))
	}
	query += ` ORDER BY ordem ASC NULLS LAST, created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("список motos", err)
	}
	defer rows.Close()

	result := []*model.Moto{}
	for rows.Next() {
		m, err := scanMoto(rows)
		if err != nil {
			return nil, fmt.Errorf("чтение строки motos: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (r *motoRepo) GetByID(ctx context.Context, id string) (*model.Moto, error) {
	query := `SELECT ` + motoColumns + ` FROM motos WHERE id = $1`

	m, err := scanMoto(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, classify("чтение moto "+id, err)
	}
	return m, nil
}

func (r *motoRepo) Upsert(ctx context.Context, m *model.Moto) error {
	query := `
		INSERT INTO motos (id, ordem, status, titulo, preco, ano, km, cor, cilindrada,
			combustivel, partida, youtube, observacoes, emplacada)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			ordem = EXCLUDED.ordem,
			status = EXCLUDED.status,
			titulo = EXCLUDED.titulo,
			preco = EXCLUDED.preco,
			ano = EXCLUDED.ano,
			km = EXCLUDED.km,
			cor = EXCLUDED.cor,
			cilindrada = EXCLUDED.cilindrada,
			combustivel = EXCLUDED.combustivel,
			partida = EXCLUDED.partida,
			youtube = EXCLUDED.youtube,
			observacoes = EXCLUDED.observacoes,
			emplacada = EXCLUDED.emplacada,
			updated_at = NOW()
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		m.ID, m.Ordem, string(m.Status), m.Titulo, m.Preco, m.Ano, m.Km, m.Cor, m.Cilindrada,
		m.Combustivel, m.Partida, m.Youtube, m.Observacoes, m.Emplacada,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return classify("сохранение moto "+m.ID, err)
	}
	return nil
}

func (r *motoRepo) UpdateStatus(ctx context.Context, id string, status model.Status) (*model.Moto, error) {
	query := `
		UPDATE motos SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + motoColumns

	m, err := scanMoto(r.db.QueryRow(ctx, query, id, string(status)))
	if err != nil {
		return nil, classify("смена статуса moto "+id, err)
	}
	return m, nil
}

func (r *motoRepo) Touch(ctx context.Context, id string) (time.Time, error) {
	var updatedAt time.Time
	err := r.db.QueryRow(ctx,
		`UPDATE motos SET updated_at = NOW() WHERE id = $1 RETURNING updated_at`, id,
	).Scan(&updatedAt)
	if err != nil {
		return time.Time{}, classify("touch moto "+id, err)
	}
	return updatedAt, nil
}

func (r *motoRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM motos WHERE id = $1`, id)
	if err != nil {
		return classify("удаление moto "+id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
