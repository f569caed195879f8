package social

import "errors"

// Error kinds returned by the relation service. Handlers translate these
// into HTTP status codes; callers match with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrConflict        = errors.New("conflict")
	ErrInternal        = errors.New("internal error")
)
