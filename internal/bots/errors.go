package bots

import "errors"

// Domain-level error values returned by the bot registry and scheduler.
var (
	ErrUnknownBot           = errors.New("unknown bot")
	ErrInvalidBotName       = errors.New("invalid bot name")
	ErrInvalidPurpose       = errors.New("invalid bot purpose")
	ErrInvalidTrustLevel    = errors.New("invalid trust level")
	ErrInvalidActivityCaps  = errors.New("invalid activity caps")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)
