package connect

import (
	"errors"
	"time"
)

// Connect errors.
var (
	// ErrBusy is returned when another attempt is in progress.
	ErrBusy = errors.New("connect: attempt already in progress")

	// ErrTimedOut means the network did not reach the completed state in time.
	ErrTimedOut = errors.New("connect: timed out waiting for association")

	// ErrRejected matches every *RejectedError.
	ErrRejected = errors.New("connect: rejected")

	// ErrInvalidRequest means the request cannot describe a network.
	ErrInvalidRequest = errors.New("connect: invalid request")
)

// RejectedError reports that the supplicant or the network refused the
// credentials or the profile.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Reason == "" {
		return ErrRejected.Error()
	}
	return ErrRejected.Error() + ": " + e.Reason
}

// Is makes errors.Is(err, ErrRejected) hold.
func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// Request names the network to join. An empty passphrase selects an open
// network.
type Request struct {
	SSID       string
	Passphrase string
}

// Phase is the attempt's position in the state machine.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseStoppingAP
	PhaseConfiguring
	PhaseSelecting
	PhaseAwaitingState
	PhaseCompleted
	PhaseFailed
	PhaseTimedOut
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseStoppingAP:
		return "STOPPING_AP"
	case PhaseConfiguring:
		return "CONFIGURING"
	case PhaseSelecting:
		return "SELECTING"
	case PhaseAwaitingState:
		return "AWAITING_STATE"
	case PhaseCompleted:
		return "COMPLETED"
	case PhaseFailed:
		return "FAILED"
	case PhaseTimedOut:
		return "TIMED_OUT"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the phase ends an attempt.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseTimedOut
}

// Outcome summarizes a finished attempt.
type Outcome uint8

const (
	OutcomeConnected Outcome = iota
	OutcomeRejected
	OutcomeTimedOut
	OutcomeFailed
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeConnected:
		return "CONNECTED"
	case OutcomeRejected:
		return "REJECTED"
	case OutcomeTimedOut:
		return "TIMED_OUT"
	case OutcomeFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Result describes a finished attempt.
type Result struct {
	SSID     string
	Outcome  Outcome
	Reason   string
	Started  time.Time
	Duration time.Duration

	// Restored is true when the access point was restarted after a failure.
	Restored bool

	// Addressed is true when DHCP obtained a lease after association.
	Addressed bool
}

// OutcomeOf classifies an error returned by Connect.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeConnected
	case errors.Is(err, ErrRejected):
		return OutcomeRejected
	case errors.Is(err, ErrTimedOut):
		return OutcomeTimedOut
	default:
		return OutcomeFailed
	}
}
