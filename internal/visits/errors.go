package visits

import "errors"

var (
	// ErrNotFound means no visit matched the lookup.
	ErrNotFound = errors.New("visits: visit not found")
	// ErrNoSchedule means the lead gave neither a date nor a time.
	ErrNoSchedule = errors.New("visits: no date or time to schedule")
)
