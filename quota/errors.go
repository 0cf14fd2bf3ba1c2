package quota

import "github.com/pkg/errors"

// ErrInvalidRequest is returned when a reservation request is malformed: min
// exceeds max, a bound is negative, or max exceeds MaxRequestSize. The request
// is rejected before any state mutation.
var ErrInvalidRequest error = errors.New("invalid reservation request")

// ErrUnknownHandle is returned by Registry operations referencing a quota,
// owner or reservation handle that does not resolve. Stale handles are
// expected when callers race creation and deletion; this is not a fatal error.
var ErrUnknownHandle error = errors.New("unknown handle")
