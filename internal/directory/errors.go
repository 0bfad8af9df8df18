package directory

import "errors"

var (
	ErrStaffNotFound = errors.New("directory: staff member not found")
	ErrOwnerNotFound = errors.New("directory: owner not found")
	ErrPetNotFound   = errors.New("directory: pet not found")
	ErrUnknownKind   = errors.New("directory: unknown target kind")
)
