package pace

import "errors"

var (
	// ErrInvalidDuration rejects a rate specification whose count or unit
	// cannot be understood. It is the only construction-time failure; a
	// limiter never exists with an unusable rate.
	ErrInvalidDuration = errors.New("invalid rate duration")

	// ErrInvalidBurst rejects a burst allowance fraction outside (0, 1).
	ErrInvalidBurst = errors.New("burst allowance must be in (0, 1)")
)
