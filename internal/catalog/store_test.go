package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v3"
)

func TestCreateServiceValidates(t *testing.T) {
	store := NewStore(nil)

	tests := []struct {
		name string
		svc  Service
		want error
	}{
		{"missing name", Service{Category: CategoryTreatment, DurationMinutes: 30}, ErrNameRequired},
		{"zero duration", Service{Name: "Nail trim", Category: CategoryGrooming}, ErrInvalidDuration},
		{"negative price", Service{Name: "Checkup", Category: CategoryConsultation, DurationMinutes: 30, PriceCents: -1}, ErrInvalidPrice},
		{"bad category", Service{Name: "Checkup", Category: "retail", DurationMinutes: 30}, ErrInvalidCategory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.CreateService(context.Background(), &tt.svc)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCreateService(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	mock.ExpectExec("INSERT INTO services").
		WithArgs(pgxmock.AnyArg(), "Annual checkup", "consultation", 30, int64(6500), true, true, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	svc := &Service{
		Name:            "Annual checkup",
		Category:        CategoryConsultation,
		DurationMinutes: 30,
		PriceCents:      6500,
		RequiresPet:     true,
		Active:          true,
	}
	if err := store.CreateService(context.Background(), svc); err != nil {
		t.Fatalf("create service: %v", err)
	}
	if svc.ID == uuid.Nil {
		t.Fatal("expected generated id")
	}
}

func TestGetServiceNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	id := uuid.New()
	mock.ExpectQuery("SELECT id, name, category").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "category", "duration_minutes", "price_cents", "requires_pet", "active", "created_at", "updated_at"}))

	_, err = store.GetService(context.Background(), id)
	if !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
}

func TestGetService(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	id := uuid.New()
	now := time.Now()
	mock.ExpectQuery("SELECT id, name, category").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "category", "duration_minutes", "price_cents", "requires_pet", "active", "created_at", "updated_at"}).
			AddRow(id, "Rabies vaccination", "vaccination", 15, int64(4200), true, true, now, now))

	svc, err := store.GetService(context.Background(), id)
	if err != nil {
		t.Fatalf("get service: %v", err)
	}
	if svc.Category != CategoryVaccination {
		t.Fatalf("expected vaccination category, got %s", svc.Category)
	}
	if svc.Duration() != 15*time.Minute {
		t.Fatalf("expected 15m duration, got %s", svc.Duration())
	}
}

func TestUpdateServiceNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	mock.ExpectExec("UPDATE services").
		WithArgs("Dental cleaning", "treatment", 45, int64(12000), true, true, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.UpdateService(context.Background(), &Service{
		ID:              uuid.New(),
		Name:            "Dental cleaning",
		Category:        CategoryTreatment,
		DurationMinutes: 45,
		PriceCents:      12000,
		RequiresPet:     true,
		Active:          true,
	})
	if !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
}

func TestListServicesActiveOnly(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	now := time.Now()
	mock.ExpectQuery("SELECT id, name, category").
		WithArgs(true).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "category", "duration_minutes", "price_cents", "requires_pet", "active", "created_at", "updated_at"}).
			AddRow(uuid.New(), "Annual checkup", "consultation", 30, int64(6500), true, true, now, now).
			AddRow(uuid.New(), "Nail trim", "grooming", 15, int64(1800), true, true, now, now))

	services, err := store.ListServices(context.Background(), true)
	if err != nil {
		t.Fatalf("list services: %v", err)
	}
	if len(services) != 2 {
		t.Fatalf("expected 2 services, got %d", len(services))
	}
}
