package lamp

import "errors"

// Sentinel errors for lamp control.
var (
	// ErrInvalidColour indicates a colour string could not be parsed.
	ErrInvalidColour = errors.New("lamp: invalid colour")

	// ErrRateLimited indicates a colour update arrived faster than
	// lamp.colour_rate allows.
	ErrRateLimited = errors.New("lamp: colour update rate exceeded")

	// ErrInvalidDevice indicates an empty or wildcard topic or device id.
	ErrInvalidDevice = errors.New("lamp: invalid device")

	// ErrUnknownCommand indicates a command string the lamp does not understand.
	ErrUnknownCommand = errors.New("lamp: unknown command")
)
