package domain

import "errors"

// Domain errors
var (
	ErrPlayerNotFound   = errors.New("player not found")
	ErrMissingFields    = errors.New("missing required fields: id, name, category")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInvalidCategory  = errors.New("category must not contain '_'")
	ErrNoPhoto          = errors.New("no photo provided")
	ErrNotAnImage       = errors.New("file must be an image")
	ErrPhotoTooLarge    = errors.New("photo exceeds maximum size")
	ErrPhotoNotFound    = errors.New("photo not found")
	ErrInvalidSignature = errors.New("invalid or expired photo signature")
)

// IsValidationError reports whether err was caused by bad client input.
// Validation errors are never retried.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrMissingFields) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidCategory) ||
		errors.Is(err, ErrNoPhoto) ||
		errors.Is(err, ErrNotAnImage) ||
		errors.Is(err, ErrPhotoTooLarge)
}

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrPlayerNotFound) || errors.Is(err, ErrPhotoNotFound)
}
