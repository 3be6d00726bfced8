package supplicant

import (
	"strings"
	"time"
)

// EventKind classifies an asynchronous supplicant notification.
type EventKind uint8

const (
	// EventUnrecognized is any notification the core does not act on.
	EventUnrecognized EventKind = iota

	// EventScanDone reports that a scan finished. Event.Success is false when
	// the supplicant reported a failed scan.
	EventScanDone

	// EventStateChanged reports a new interface state in Event.State.
	EventStateChanged

	// EventDisconnected reports that the station link was lost.
	EventDisconnected

	// EventAuthRejected reports that the selected network refused the
	// credentials or could not be found. Event.Reason carries the cause.
	EventAuthRejected
)

// String returns the kind name.
func (k EventKind) String() string {
	switch k {
	case EventScanDone:
		return "SCAN_DONE"
	case EventStateChanged:
		return "STATE_CHANGED"
	case EventDisconnected:
		return "DISCONNECTED"
	case EventAuthRejected:
		return "AUTH_REJECTED"
	default:
		return "UNRECOGNIZED"
	}
}

// Interface states the core compares against (lower case, as reported by the
// message bus and normalized from the control socket).
const (
	StateCompleted         = "completed"
	StateDisconnected      = "disconnected"
	StateInterfaceDisabled = "interface_disabled"
)

// Rejection reasons.
const (
	ReasonWrongKey        = "WRONG_KEY"
	ReasonNetworkNotFound = "NETWORK_NOT_FOUND"
)

// Event is one classified notification.
type Event struct {
	Kind EventKind

	// State is the new interface state for EventStateChanged.
	State string

	// Reason is set for EventDisconnected and EventAuthRejected when known.
	Reason string

	// Success is meaningful for EventScanDone.
	Success bool

	// Raw is the notification as received, for tracing.
	Raw string

	// Received is when the transport read the notification.
	Received time.Time
}

// Control-socket event tags.
const (
	tagScanResults      = "CTRL-EVENT-SCAN-RESULTS"
	tagScanFailed       = "CTRL-EVENT-SCAN-FAILED"
	tagConnected        = "CTRL-EVENT-CONNECTED"
	tagDisconnected     = "CTRL-EVENT-DISCONNECTED"
	tagStateChange      = "CTRL-EVENT-STATE-CHANGE"
	tagSSIDTempDisabled = "CTRL-EVENT-SSID-TEMP-DISABLED"
	tagNetworkNotFound  = "CTRL-EVENT-NETWORK-NOT-FOUND"
)

// ClassifyCtrlEvent classifies one unsolicited control-socket line such as
// "<3>CTRL-EVENT-SCAN-RESULTS ".
func ClassifyCtrlEvent(line string) Event {
	ev := Event{Raw: line, Received: time.Now()}
	msg := stripPriority(strings.TrimSpace(line))

	tag, rest, _ := strings.Cut(msg, " ")
	params := parseParams(rest)

	switch tag {
	case tagScanResults:
		ev.Kind = EventScanDone
		ev.Success = true
	case tagScanFailed:
		ev.Kind = EventScanDone
		ev.Reason = params["ret"]
	case tagConnected:
		ev.Kind = EventStateChanged
		ev.State = StateCompleted
	case tagStateChange:
		// Only emitted by newer builds; state is the numeric wpa_states value.
		if name, ok := ctrlStateNames[params["state"]]; ok {
			ev.Kind = EventStateChanged
			ev.State = name
		}
	case tagDisconnected:
		ev.Kind = EventDisconnected
		ev.Reason = params["reason"]
	case tagSSIDTempDisabled:
		if params["reason"] == ReasonWrongKey {
			ev.Kind = EventAuthRejected
			ev.Reason = ReasonWrongKey
		}
	case tagNetworkNotFound:
		ev.Kind = EventAuthRejected
		ev.Reason = ReasonNetworkNotFound
	}
	return ev
}

// ctrlStateNames maps enum wpa_states values to their status names.
var ctrlStateNames = map[string]string{
	"0": "disconnected",
	"1": "interface_disabled",
	"2": "inactive",
	"3": "scanning",
	"4": "authenticating",
	"5": "associating",
	"6": "associated",
	"7": "4way_handshake",
	"8": "group_handshake",
	"9": "completed",
}

// stripPriority removes a leading "<N>" level marker.
func stripPriority(s string) string {
	if strings.HasPrefix(s, "<") {
		if i := strings.IndexByte(s, '>'); i > 0 {
			return s[i+1:]
		}
	}
	return s
}

// IsUnsolicited reports whether a control-socket line is a notification
// rather than a command reply.
func IsUnsolicited(line string) bool {
	return strings.HasPrefix(line, "<") && strings.Contains(line, ">")
}

// parseParams extracts key=value tokens. Quoted values keep their quotes.
func parseParams(s string) map[string]string {
	params := make(map[string]string)
	for _, field := range strings.Fields(s) {
		if k, v, ok := strings.Cut(field, "="); ok {
			params[k] = v
		}
	}
	return params
}
