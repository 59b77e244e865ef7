package ranks

import "errors"

// Domain-level error values returned by the rank service.
var (
	ErrInvalidUserID        = errors.New("invalid user id")
	ErrInvalidXPAmount      = errors.New("invalid xp amount")
	ErrInvalidActivity      = errors.New("invalid activity")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)
