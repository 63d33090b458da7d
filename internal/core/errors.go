package core

import "errors"

// Sentinel errors classifying every failure the domain can produce.
// Callers branch with errors.Is; the HTTP layer maps each sentinel to a
// status code.
var (
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("version conflict")
	ErrForbidden            = errors.New("forbidden")
	ErrInvalidOperation     = errors.New("operation not applicable")
	ErrReferentialIntegrity = errors.New("referenced entity does not exist")
)

// Specific validation failures. Each wraps ErrValidation at the point
// of use so both the specific and the generic class match.
var (
	ErrInvalidAmount    = errors.New("sum must be a positive amount with at most two decimal places")
	ErrEmptyName        = errors.New("name must not be empty")
	ErrSameEndpoints    = errors.New("transfer endpoints must differ")
	ErrMissingLocation  = errors.New("location reference required")
	ErrMissingSphere    = errors.New("sphere reference required")
	ErrDescriptionLong  = errors.New("description too long (max 255 characters)")
	ErrUnknownOperation = errors.New("unknown operation type")
	ErrUnknownKind      = errors.New("unknown transfer kind")
)
