package catalog

import "errors"

var (
	// ErrServiceNotFound is returned when a service does not exist
	ErrServiceNotFound = errors.New("service not found")

	// ErrNameRequired is returned when the service name is empty
	ErrNameRequired = errors.New("service name is required")

	// ErrInvalidDuration is returned when duration_minutes is not positive
	ErrInvalidDuration = errors.New("service duration must be positive")

	// ErrInvalidPrice is returned when the price is negative
	ErrInvalidPrice = errors.New("service price must not be negative")

	// ErrInvalidCategory is returned for an unknown category
	ErrInvalidCategory = errors.New("unknown service category")
)
