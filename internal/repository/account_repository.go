package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/conversation-service/internal/domain"
)

// RequesterRepository resolves student accounts.
type RequesterRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Requester, error)
	GetByEmail(ctx context.Context, email string) (*domain.Requester, error)
}

// ResponderRepository resolves admin/teacher/associate accounts.
type ResponderRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Responder, error)
	GetByEmail(ctx context.Context, email string) (*domain.Responder, error)
}

type requesterRepository struct {
	pool *pgxpool.Pool
}

// NewRequesterRepository constructs repository.
func NewRequesterRepository(pool *pgxpool.Pool) RequesterRepository {
	return &requesterRepository{pool: pool}
}

const requesterColumns = `id, name, email, password_hash, unit_id, created_at, updated_at`

func (r *requesterRepository) GetByID(ctx context.Context, id string) (*domain.Requester, error) {
	return r.fetch(ctx, `SELECT `+requesterColumns+` FROM requesters WHERE id=$1`, id)
}

func (r *requesterRepository) GetByEmail(ctx context.Context, email string) (*domain.Requester, error) {
	return r.fetch(ctx, `SELECT `+requesterColumns+` FROM requesters WHERE email=$1`, email)
}

func (r *requesterRepository) fetch(ctx context.Context, query string, arg any) (*domain.Requester, error) {
	var req domain.Requester
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&req.ID,
		&req.Name,
		&req.Email,
		&req.PasswordHash,
		&req.UnitID,
		&req.CreatedAt,
		&req.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &req, nil
}

type responderRepository struct {
	pool *pgxpool.Pool
}

// NewResponderRepository constructs repository.
func NewResponderRepository(pool *pgxpool.Pool) ResponderRepository {
	return &responderRepository{pool: pool}
}

const responderColumns = `id, name, email, password_hash, role, unit_id, active, created_at, updated_at`

func (r *responderRepository) GetByID(ctx context.Context, id string) (*domain.Responder, error) {
	return r.fetch(ctx, `SELECT `+responderColumns+` FROM responders WHERE id=$1`, id)
}

func (r *responderRepository) GetByEmail(ctx context.Context, email string) (*domain.Responder, error) {
	return r.fetch(ctx, `SELECT `+responderColumns+` FROM responders WHERE email=$1`, email)
}

func (r *responderRepository) fetch(ctx context.Context, query string, arg any) (*domain.Responder, error) {
	var resp domain.Responder
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&resp.ID,
		&resp.Name,
		&resp.Email,
		&resp.PasswordHash,
		&resp.Role,
		&resp.UnitID,
		&resp.Active,
		&resp.CreatedAt,
		&resp.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &resp, nil
}
