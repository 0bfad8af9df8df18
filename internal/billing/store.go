package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrInvoiceNotFound is returned when no invoice exists for the lookup.
var ErrInvoiceNotFound = errors.New("billing: invoice not found")

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists invoices.
type Store struct {
	db DB
}

// NewStore creates a billing store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// MaterializeInvoice inserts the invoice for a completed appointment. The
// insert is idempotent per appointment: a repeat call (retried completion,
// crashed worker) hits ON CONFLICT DO NOTHING and is not an error.
func (s *Store) MaterializeInvoice(ctx context.Context, appointmentID, ownerID uuid.UUID, amountCents int64) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO invoices (id, appointment_id, owner_id, amount_cents, status, issued_at)
		VALUES ($1, $2, $3, $4, 'pending', $5)
		ON CONFLICT (appointment_id) DO NOTHING`,
		uuid.New(), appointmentID, ownerID, amountCents, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("billing: materialize invoice: %w", err)
	}
	return nil
}

// GetByAppointment loads the invoice for an appointment.
func (s *Store) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Invoice, error) {
	var inv Invoice
	var status string
	err := s.db.QueryRow(ctx, `
		SELECT id, appointment_id, owner_id, amount_cents, status, issued_at
		FROM invoices WHERE appointment_id = $1`, appointmentID).
		Scan(&inv.ID, &inv.AppointmentID, &inv.OwnerID, &inv.AmountCents, &status, &inv.IssuedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("billing: get invoice: %w", err)
	}
	inv.Status = InvoiceStatus(status)
	return &inv, nil
}

// ListByOwner returns an owner's invoices, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Invoice, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, appointment_id, owner_id, amount_cents, status, issued_at
		FROM invoices WHERE owner_id = $1 ORDER BY issued_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("billing: list invoices: %w", err)
	}
	defer rows.Close()

	var result []Invoice
	for rows.Next() {
		var inv Invoice
		var status string
		if err := rows.Scan(&inv.ID, &inv.AppointmentID, &inv.OwnerID, &inv.AmountCents, &status, &inv.IssuedAt); err != nil {
			return nil, fmt.Errorf("billing: scan invoice: %w", err)
		}
		inv.Status = InvoiceStatus(status)
		result = append(result, inv)
	}
	return result, rows.Err()
}
