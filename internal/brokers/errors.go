package brokers

import "errors"

var (
	// ErrMissingName is returned when the broker has no name.
	ErrMissingName = errors.New("brokers: name is required")

	// ErrMissingPhone is returned when the broker has no phone.
	ErrMissingPhone = errors.New("brokers: phone is required")

	// ErrPhoneTaken is returned when another broker already uses the phone.
	ErrPhoneTaken = errors.New("brokers: phone already registered")

	// ErrNotFound is returned when a broker does not exist.
	ErrNotFound = errors.New("brokers: broker not found")
)
