package log

import "time"

// Event is one trace record. CBOR encoding uses integer keys.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID is the provisioning session, empty outside one.
	SessionID string `cbor:"2,keyasint,omitempty"`

	// Direction is OUT for requests to the supplicant, IN for replies and
	// notifications.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event.
	Category Category `cbor:"5,keyasint"`

	// Interface is the wireless interface name.
	Interface string `cbor:"6,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Command     *CommandEvent     `cbor:"10,keyasint,omitempty"`
	Notify      *NotifyEvent      `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction indicates flow relative to the core.
type Direction uint8

const (
	// DirectionIn is data received from the supplicant or a helper.
	DirectionIn Direction = 0
	// DirectionOut is data sent by the core.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which component captured the event.
type Layer uint8

const (
	// LayerCommand is the command channel.
	LayerCommand Layer = 0
	// LayerEvent is the event listener.
	LayerEvent Layer = 1
	// LayerHotspot is the access point manager.
	LayerHotspot Layer = 2
	// LayerSession is the provisioning facade and connect manager.
	LayerSession Layer = 3
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerCommand:
		return "COMMAND"
	case LayerEvent:
		return "EVENT"
	case LayerHotspot:
		return "HOTSPOT"
	case LayerSession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage is a command exchange or notification.
	CategoryMessage Category = 0
	// CategoryState is a state change.
	CategoryState Category = 2
	// CategoryError is a failure.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// CommandEvent records one command exchange.
type CommandEvent struct {
	// Op is the operation name (SCAN, ADD_NETWORK, ...).
	Op string `cbor:"1,keyasint"`

	// SSID is set for ADD_NETWORK.
	SSID string `cbor:"2,keyasint,omitempty"`

	// NetworkID is the network handle sent or returned.
	NetworkID string `cbor:"3,keyasint,omitempty"`

	// Result is OK, REJECTED, TIMEOUT or FAILED.
	Result string `cbor:"4,keyasint"`

	// Detail carries the rejection reason or error text.
	Detail string `cbor:"5,keyasint,omitempty"`

	// Duration of the exchange, including time spent waiting for the gate.
	Duration time.Duration `cbor:"6,keyasint"`
}

// Command results.
const (
	ResultOK       = "OK"
	ResultRejected = "REJECTED"
	ResultTimeout  = "TIMEOUT"
	ResultFailed   = "FAILED"
)

// NotifyEvent records one supplicant notification.
type NotifyEvent struct {
	// Kind is the classified kind (SCAN_DONE, STATE_CHANGED, ...).
	Kind string `cbor:"1,keyasint"`

	State  string `cbor:"2,keyasint,omitempty"`
	Reason string `cbor:"3,keyasint,omitempty"`

	// Raw is the notification as received.
	Raw string `cbor:"4,keyasint,omitempty"`
}

// StateChangeEvent records a lifecycle transition.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what changed state.
type StateEntity uint8

const (
	// StateEntityListener is the event listener link.
	StateEntityListener StateEntity = 0
	// StateEntityConnect is a connect attempt.
	StateEntityConnect StateEntity = 1
	// StateEntityHotspot is the access point.
	StateEntityHotspot StateEntity = 2
	// StateEntitySession is a provisioning session.
	StateEntitySession StateEntity = 3
)

// String returns the entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityListener:
		return "LISTENER"
	case StateEntityConnect:
		return "CONNECT"
	case StateEntityHotspot:
		return "HOTSPOT"
	case StateEntitySession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData records a failure.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error text.
	Message string `cbor:"2,keyasint"`

	// Context describes what was being done.
	Context string `cbor:"4,keyasint,omitempty"`
}
