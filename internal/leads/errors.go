package leads

import "errors"

var (
	// ErrMissingPhone is returned when the registration has no phone.
	ErrMissingPhone = errors.New("leads: phone is required")

	// ErrMissingPropertyTitle is returned when the registration has no
	// property title.
	ErrMissingPropertyTitle = errors.New("leads: property title is required")

	// ErrNotFound is returned when a lead does not exist.
	ErrNotFound = errors.New("leads: lead not found")
)
