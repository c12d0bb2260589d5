package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/nephele/internal/domain"
)

// InstanceRepo — репозиторий для работы с инстансами.
type InstanceRepo struct {
	pool *pgxpool.Pool
}

// NewInstanceRepo создаёт новый InstanceRepo.
func NewInstanceRepo(pool *pgxpool.Pool) *InstanceRepo {
	return &InstanceRepo{pool: pool}
}

// UpdateStatus переводит инстанс в новый статус.
func (r *InstanceRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.InstanceStatus, reason string) error {
	query := `
		UPDATE instances
		SET status = $2, status_reason = $3, updated_at = now()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, status, reason)
	if err != nil {
		return fmt.Errorf("update instance status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: instance %s", ErrNotFound, id)
	}
	return nil
}

// GetByID возвращает инстанс по ID.
func (r *InstanceRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Instance, error) {
	query := `
		SELECT id, name, status, backend, updated_at
		FROM instances
		WHERE id = $1
	`
	var inst domain.Instance
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&inst.ID,
		&inst.Name,
		&inst.Status,
		&inst.Backend,
		&inst.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: instance %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get instance: %w", err)
	}
	return &inst, nil
}
