package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides CRUD operations for the service catalog.
type Store struct {
	db DB
}

// NewStore creates a new catalog store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const serviceColumns = `id, name, category, duration_minutes, price_cents, requires_pet, active, created_at, updated_at`

// CreateService inserts a service after validating it.
func (s *Store) CreateService(ctx context.Context, svc *Service) error {
	if err := svc.Validate(); err != nil {
		return err
	}
	if svc.ID == uuid.Nil {
		svc.ID = uuid.New()
	}
	now := time.Now().UTC()
	svc.CreatedAt = now
	svc.UpdatedAt = now

	_, err := s.db.Exec(ctx, `
		INSERT INTO services (id, name, category, duration_minutes, price_cents, requires_pet, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		svc.ID, svc.Name, string(svc.Category), svc.DurationMinutes, svc.PriceCents,
		svc.RequiresPet, svc.Active, svc.CreatedAt, svc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("catalog: create service: %w", err)
	}
	return nil
}

// UpdateService rewrites a service's fields after validating them.
func (s *Store) UpdateService(ctx context.Context, svc *Service) error {
	if err := svc.Validate(); err != nil {
		return err
	}
	svc.UpdatedAt = time.Now().UTC()

	tag, err := s.db.Exec(ctx, `
		UPDATE services
		SET name = $1, category = $2, duration_minutes = $3, price_cents = $4,
		    requires_pet = $5, active = $6, updated_at = $7
		WHERE id = $8`,
		svc.Name, string(svc.Category), svc.DurationMinutes, svc.PriceCents,
		svc.RequiresPet, svc.Active, svc.UpdatedAt, svc.ID,
	)
	if err != nil {
		return fmt.Errorf("catalog: update service: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrServiceNotFound
	}
	return nil
}

// GetService loads one service by id.
func (s *Store) GetService(ctx context.Context, id uuid.UUID) (*Service, error) {
	var svc Service
	var category string
	err := s.db.QueryRow(ctx, `
		SELECT `+serviceColumns+`
		FROM services WHERE id = $1`, id).Scan(
		&svc.ID, &svc.Name, &category, &svc.DurationMinutes, &svc.PriceCents,
		&svc.RequiresPet, &svc.Active, &svc.CreatedAt, &svc.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrServiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get service: %w", err)
	}
	svc.Category = Category(category)
	return &svc, nil
}

// ListServices returns the catalog, optionally restricted to active services.
func (s *Store) ListServices(ctx context.Context, activeOnly bool) ([]Service, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE $1 = false OR active = true
		ORDER BY category, name`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("catalog: list services: %w", err)
	}
	defer rows.Close()

	var result []Service
	for rows.Next() {
		var svc Service
		var category string
		err := rows.Scan(
			&svc.ID, &svc.Name, &category, &svc.DurationMinutes, &svc.PriceCents,
			&svc.RequiresPet, &svc.Active, &svc.CreatedAt, &svc.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan service: %w", err)
		}
		svc.Category = Category(category)
		result = append(result, svc)
	}
	return result, rows.Err()
}
