package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
)

func TestMaterializeInvoice(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	apptID := uuid.New()
	ownerID := uuid.New()
	mock.ExpectExec("INSERT INTO invoices").
		WithArgs(pgxmock.AnyArg(), apptID, ownerID, int64(6500), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := store.MaterializeInvoice(context.Background(), apptID, ownerID, 6500); err != nil {
		t.Fatalf("materialize: %v", err)
	}
}

func TestMaterializeInvoiceIdempotent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	apptID := uuid.New()
	// Conflict path: zero rows inserted, still no error.
	mock.ExpectExec("INSERT INTO invoices").
		WithArgs(pgxmock.AnyArg(), apptID, pgxmock.AnyArg(), int64(6500), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	if err := store.MaterializeInvoice(context.Background(), apptID, uuid.New(), 6500); err != nil {
		t.Fatalf("second materialize must be a no-op, got %v", err)
	}
}

func TestGetByAppointmentNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	apptID := uuid.New()
	mock.ExpectQuery("SELECT id, appointment_id").
		WithArgs(apptID).
		WillReturnError(pgx.ErrNoRows)

	_, err = store.GetByAppointment(context.Background(), apptID)
	if !errors.Is(err, ErrInvoiceNotFound) {
		t.Fatalf("expected ErrInvoiceNotFound, got %v", err)
	}
}

func TestListByOwner(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	ownerID := uuid.New()
	now := time.Now()
	mock.ExpectQuery("SELECT id, appointment_id").
		WithArgs(ownerID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "appointment_id", "owner_id", "amount_cents", "status", "issued_at"}).
			AddRow(uuid.New(), uuid.New(), ownerID, int64(6500), "pending", now).
			AddRow(uuid.New(), uuid.New(), ownerID, int64(12000), "paid", now.Add(-time.Hour)))

	invoices, err := store.ListByOwner(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(invoices) != 2 || invoices[1].Status != StatusPaid {
		t.Fatalf("unexpected invoices %+v", invoices)
	}
}
