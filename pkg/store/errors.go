package store

import "errors"

// Tagged store errors. Backends translate their native failures into these
// so the rest of the portal reacts per cause.
var (
	// ErrNotFound is returned when the key (or its collection) does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a conditional write lost the race.
	ErrConflict = errors.New("etag mismatch")

	// ErrUnavailable is returned for transport or service failures.
	ErrUnavailable = errors.New("store unavailable")

	// ErrInvalidData is returned when a stored record cannot be decoded
	// or a caller passes an empty key.
	ErrInvalidData = errors.New("invalid record data")
)

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
