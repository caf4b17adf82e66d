package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/conversation-service/internal/domain"
)

// UnitRepository is a read-only lookup over organizational units (colleges
// and programs), the grouping keys of the ticket directory.
type UnitRepository interface {
	GetByID(ctx context.Context, id string) (*domain.OrgUnit, error)
	ListActive(ctx context.Context) ([]domain.OrgUnit, error)
}

type unitRepository struct {
	pool *pgxpool.Pool
}

// NewUnitRepository constructs repository.
func NewUnitRepository(pool *pgxpool.Pool) UnitRepository {
	return &unitRepository{pool: pool}
}

func (r *unitRepository) GetByID(ctx context.Context, id string) (*domain.OrgUnit, error) {
	const query = `
        SELECT id, name, kind, parent_id, is_active, created_at, updated_at
        FROM org_units WHERE id=$1`
	var unit domain.OrgUnit
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&unit.ID,
		&unit.Name,
		&unit.Kind,
		&unit.ParentID,
		&unit.IsActive,
		&unit.CreatedAt,
		&unit.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &unit, nil
}

func (r *unitRepository) ListActive(ctx context.Context) ([]domain.OrgUnit, error) {
	const query = `
        SELECT id, name, kind, parent_id, is_active, created_at, updated_at
        FROM org_units WHERE is_active ORDER BY name ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.OrgUnit
	for rows.Next() {
		var unit domain.OrgUnit
		if err := rows.Scan(
			&unit.ID,
			&unit.Name,
			&unit.Kind,
			&unit.ParentID,
			&unit.IsActive,
			&unit.CreatedAt,
			&unit.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, unit)
	}
	return result, rows.Err()
}
