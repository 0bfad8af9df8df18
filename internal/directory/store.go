package directory

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

// Store provides persistence for staff, owners and pets.
type Store struct {
	db DB
}

// NewStore creates a new directory store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// CreateStaff inserts a staff member.
func (s *Store) CreateStaff(ctx context.Context, st *Staff) error {
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	st.CreatedAt = time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		INSERT INTO staff (id, name, role, email, phone, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		st.ID, st.Name, st.Role, st.Email, st.Phone, st.Active, st.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("directory: create staff: %w", err)
	}
	return nil
}

// GetStaff loads one staff member by id.
func (s *Store) GetStaff(ctx context.Context, id uuid.UUID) (*Staff, error) {
	var st Staff
	err := s.db.QueryRow(ctx, `
		SELECT id, name, role, email, phone, active, created_at
		FROM staff WHERE id = $1`, id).
		Scan(&st.ID, &st.Name, &st.Role, &st.Email, &st.Phone, &st.Active, &st.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStaffNotFound
		}
		return nil, fmt.Errorf("directory: get staff: %w", err)
	}
	return &st, nil
}

// ListActiveStaff returns the active roster ordered by name.
func (s *Store) ListActiveStaff(ctx context.Context) ([]Staff, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, role, email, phone, active, created_at
		FROM staff WHERE active = true ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("directory: list staff: %w", err)
	}
	defer rows.Close()

	var result []Staff
	for rows.Next() {
		var st Staff
		if err := rows.Scan(&st.ID, &st.Name, &st.Role, &st.Email, &st.Phone, &st.Active, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("directory: scan staff: %w", err)
		}
		result = append(result, st)
	}
	return result, rows.Err()
}

// CreateOwner inserts a pet owner.
func (s *Store) CreateOwner(ctx context.Context, o *Owner) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	o.CreatedAt = time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		INSERT INTO owners (id, name, email, phone, whatsapp, preferred_channel, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, o.Name, o.Email, o.Phone, o.WhatsApp, o.PreferredChannel, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("directory: create owner: %w", err)
	}
	return nil
}

// GetOwner loads one owner by id.
func (s *Store) GetOwner(ctx context.Context, id uuid.UUID) (*Owner, error) {
	var o Owner
	err := s.db.QueryRow(ctx, `
		SELECT id, name, email, phone, whatsapp, preferred_channel, created_at
		FROM owners WHERE id = $1`, id).
		Scan(&o.ID, &o.Name, &o.Email, &o.Phone, &o.WhatsApp, &o.PreferredChannel, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOwnerNotFound
		}
		return nil, fmt.Errorf("directory: get owner: %w", err)
	}
	return &o, nil
}

// CreatePet inserts a pet for an owner.
func (s *Store) CreatePet(ctx context.Context, p *Pet) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		INSERT INTO pets (id, owner_id, name, species, breed, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.OwnerID, p.Name, p.Species, p.Breed, p.Active, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("directory: create pet: %w", err)
	}
	return nil
}

// GetPet loads one pet by id.
func (s *Store) GetPet(ctx context.Context, id uuid.UUID) (*Pet, error) {
	var p Pet
	err := s.db.QueryRow(ctx, `
		SELECT id, owner_id, name, species, breed, active, created_at
		FROM pets WHERE id = $1`, id).
		Scan(&p.ID, &p.OwnerID, &p.Name, &p.Species, &p.Breed, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPetNotFound
		}
		return nil, fmt.Errorf("directory: get pet: %w", err)
	}
	return &p, nil
}

// ListPetsByOwner returns an owner's pets ordered by name.
func (s *Store) ListPetsByOwner(ctx context.Context, ownerID uuid.UUID) ([]Pet, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, owner_id, name, species, breed, active, created_at
		FROM pets WHERE owner_id = $1 ORDER BY name`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("directory: list pets: %w", err)
	}
	defer rows.Close()

	var result []Pet
	for rows.Next() {
		var p Pet
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Species, &p.Breed, &p.Active, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("directory: scan pet: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// ResolveRecipient maps a reminder target to the person who should hear about
// it: an appointment or a followup reaches the owner, a pet-borne reminder
// (vaccination, prescription) reaches the pet's owner.
func (s *Store) ResolveRecipient(ctx context.Context, kind string, id uuid.UUID) (*Recipient, error) {
	var query string
	switch kind {
	case KindOwner:
		query = `SELECT name, email, phone, whatsapp FROM owners WHERE id = $1`
	case KindPet:
		query = `
			SELECT o.name, o.email, o.phone, o.whatsapp
			FROM pets p JOIN owners o ON o.id = p.owner_id
			WHERE p.id = $1`
	case KindAppointment:
		query = `
			SELECT o.name, o.email, o.phone, o.whatsapp
			FROM appointments a JOIN owners o ON o.id = a.owner_id
			WHERE a.id = $1`
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	var rec Recipient
	err := s.db.QueryRow(ctx, query, id).Scan(&rec.Name, &rec.Email, &rec.Phone, &rec.WhatsApp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("directory: resolve %s %s: %w", kind, id, ErrOwnerNotFound)
		}
		return nil, fmt.Errorf("directory: resolve %s %s: %w", kind, id, err)
	}
	return &rec, nil
}
