package types

import "github.com/pkg/errors"

// ValidationError is returned for payloads, locations and ratings that are
// rejected before anything is written.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

var (
	ErrEmptyPost      = &ValidationError{"post cannot be empty"}
	ErrMissingFields  = &ValidationError{"post invalid - missing mandatory fields: name, user and/or location"}
	ErrLocationFormat = &ValidationError{"location must be an array of [lat, lon]"}
	ErrRatingEmpty    = &ValidationError{"rating field cannot be empty"}
	ErrScoreNotNumber = &ValidationError{"score is not a number"}
	ErrScoreTooHigh   = &ValidationError{"score is higher than maxRating"}

	ErrNotFound    = errors.New("not found")
	ErrKeyNotFound = errors.New("key not found")
)

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
