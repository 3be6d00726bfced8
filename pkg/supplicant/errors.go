package supplicant

import (
	"errors"
	"fmt"
)

// Transport errors.
var (
	ErrDisconnected = errors.New("supplicant: disconnected")
	ErrMalformed    = errors.New("supplicant: malformed response")
	ErrTimeout      = errors.New("supplicant: timed out")
)

// CommandError reports that the supplicant understood a request and refused it.
type CommandError struct {
	Op     Op
	Reason string
}

func (e *CommandError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("supplicant: %s rejected", e.Op)
	}
	return fmt.Sprintf("supplicant: %s rejected: %s", e.Op, e.Reason)
}

// IsCommandError reports whether err wraps a *CommandError.
func IsCommandError(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce)
}
