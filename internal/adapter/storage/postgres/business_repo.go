package postgres

import (
	"context"
	"errors"
	"fmt"

	"delivery-settlement/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// BusinessRepo implements ports.BusinessRepository.
type BusinessRepo struct {
	pool Pool
}

// NewBusinessRepo creates a new BusinessRepo.
func NewBusinessRepo(pool Pool) *BusinessRepo {
	return &BusinessRepo{pool: pool}
}

// Create inserts a new business.
func (r *BusinessRepo) Create(ctx context.Context, b *domain.Business) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO businesses (id, name, lat, lng, created_at) VALUES ($1, $2, $3, $4, $5)`,
		b.ID, b.Name, b.Lat, b.Lng, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert business: %w", err)
	}
	return nil
}

// GetByID fetches a business by its UUID.
func (r *BusinessRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Business, error) {
	b := &domain.Business{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, lat, lng, created_at FROM businesses WHERE id = $1`, id,
	).Scan(&b.ID, &b.Name, &b.Lat, &b.Lng, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get business by id: %w", err)
	}
	return b, nil
}
