package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique index rejects a write.
	ErrDuplicate = errors.New("persistence: duplicate")
	// ErrConflict is returned when a conditional write found a different prior state.
	ErrConflict = errors.New("persistence: conflict")
	// ErrConstraintViolation is returned when a CHECK constraint rejects a write.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrForeignKeyViolation is returned when a referenced record is missing.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
	// ErrHasRecordings is returned when deleting a session that still owns recordings.
	ErrHasRecordings = errors.New("persistence: session has recordings")
)
