package scheduling

import "errors"

var (
	// ErrPetRequired is returned when the service needs a pet and none was given
	ErrPetRequired = errors.New("service requires a pet")

	// ErrOutsideWorkingHours is returned when the requested time falls outside every active work block
	ErrOutsideWorkingHours = errors.New("requested time is outside working hours")

	// ErrSlotTaken is returned when the slot conflicts with an existing appointment
	ErrSlotTaken = errors.New("slot is already taken")

	// ErrIllegalTransition is returned for a status change the lifecycle does not allow
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrReasonRequired is returned when cancelling without a reason
	ErrReasonRequired = errors.New("cancellation reason is required")

	// ErrServiceInactive is returned when booking an inactive service
	ErrServiceInactive = errors.New("service is not active")

	// ErrAppointmentNotFound is returned when an appointment does not exist
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrWorkBlockNotFound is returned when a work block does not exist
	ErrWorkBlockNotFound = errors.New("work block not found")

	// ErrInvalidWorkBlock is returned when a work block's start is not before its end
	ErrInvalidWorkBlock = errors.New("work block start must be before end")
)
