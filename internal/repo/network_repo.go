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

// NetworkRepo — репозиторий для работы с сетями.
type NetworkRepo struct {
	pool *pgxpool.Pool
}

// NewNetworkRepo создаёт новый NetworkRepo.
func NewNetworkRepo(pool *pgxpool.Pool) *NetworkRepo {
	return &NetworkRepo{pool: pool}
}

// UpdateLinkState обновляет состояние линка сети.
func (r *NetworkRepo) UpdateLinkState(ctx context.Context, id uuid.UUID, link string, state domain.LinkState) error {
	query := `
		UPDATE networks
		SET link = $2, state = $3, updated_at = now()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, link, state)
	if err != nil {
		return fmt.Errorf("update network link state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: network %s", ErrNotFound, id)
	}
	return nil
}

// GetByID возвращает сеть по ID.
func (r *NetworkRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Network, error) {
	query := `
		SELECT id, name, link, state, updated_at
		FROM networks
		WHERE id = $1
	`
	var net domain.Network
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&net.ID,
		&net.Name,
		&net.Link,
		&net.State,
		&net.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: network %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get network: %w", err)
	}
	return &net, nil
}
