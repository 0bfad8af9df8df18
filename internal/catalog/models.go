package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Category groups services for the clinic menu.
type Category string

const (
	CategoryConsultation Category = "consultation"
	CategoryTreatment    Category = "treatment"
	CategoryGrooming     Category = "grooming"
	CategorySurgery      Category = "surgery"
	CategoryVaccination  Category = "vaccination"
)

// Valid reports whether the category is one of the known values.
func (c Category) Valid() bool {
	switch c {
	case CategoryConsultation, CategoryTreatment, CategoryGrooming, CategorySurgery, CategoryVaccination:
		return true
	}
	return false
}

// Service is one bookable offering. Duration and price are fixed per service;
// the appointment end time is always derived from DurationMinutes.
type Service struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Category        Category  `json:"category"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceCents      int64     `json:"price_cents"`
	RequiresPet     bool      `json:"requires_pet"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Duration returns the service length as a time.Duration.
func (s *Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// Validate checks the fields a write must satisfy.
func (s *Service) Validate() error {
	if s.Name == "" {
		return ErrNameRequired
	}
	if s.DurationMinutes <= 0 {
		return ErrInvalidDuration
	}
	if s.PriceCents < 0 {
		return ErrInvalidPrice
	}
	if !s.Category.Valid() {
		return ErrInvalidCategory
	}
	return nil
}
