package provisioner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wifiprov/wifiprov-go/pkg/connect"
	"github.com/wifiprov/wifiprov-go/pkg/hotspot"
	"github.com/wifiprov/wifiprov-go/pkg/log"
	"github.com/wifiprov/wifiprov-go/pkg/persistence"
	"github.com/wifiprov/wifiprov-go/pkg/supplicant"
)

// DefaultPolicyInterval is the policy evaluation period used by Run.
const DefaultPolicyInterval = 10 * time.Second

// Service errors.
var (
	ErrClosed        = errors.New("provisioner: closed")
	ErrNoSession     = errors.New("provisioner: no provisioning session")
	ErrSessionActive = errors.New("provisioner: provisioning session already active")
)

// Session outcomes recorded in the history.
const (
	OutcomeConnected = "CONNECTED"
	OutcomeExited    = "EXITED"
	OutcomeClosed    = "CLOSED"
	OutcomeAPFailed  = "AP_FAILED"
)

// Backend is the capability set the web layer consumes.
type Backend interface {
	Scan(ctx context.Context) ([]supplicant.NetworkRecord, error)
	Connect(ctx context.Context, req connect.Request) error
	Status() hotspot.State
}

var _ Backend = (*Service)(nil)

// Hotspot is the access point. *hotspot.Manager implements it.
type Hotspot interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	State() hotspot.State
	SetSession(id string)
	Healthy() bool
}

var _ Hotspot = (*hotspot.Manager)(nil)

// Announcer advertises the portal while the access point is up.
// *discovery.Announcer implements it.
type Announcer interface {
	Start(ctx context.Context, sessionID string) error
	Stop() error
}

// SessionStore records session history. *persistence.SessionStore
// implements it.
type SessionStore interface {
	Put(rec persistence.SessionRecord) error
}

var _ SessionStore = (*persistence.SessionStore)(nil)

// Config configures a Service. Zero durations select the component
// defaults.
type Config struct {
	Interface string

	CommandTimeout    time.Duration
	ScanTimeout       time.Duration
	ConnectTimeout    time.Duration
	SettleDelay       time.Duration
	RestoreTimeout    time.Duration
	ReconnectInterval time.Duration

	// DHCP runs after a successful connect. Nil skips it.
	DHCP        connect.DHCP
	DHCPTimeout time.Duration

	// Announcer is optional.
	Announcer Announcer

	// Store is optional.
	Store SessionStore

	Logger *slog.Logger
	Trace  log.Logger
}

// SessionInfo describes the active session.
type SessionInfo struct {
	ID        string
	StartedAt time.Time

	// Networks is the size of the cached scan.
	Networks int

	// ScanError is set when the entry scan failed.
	ScanError string

	Attempts int
}

// EventType identifies a service event.
type EventType uint8

const (
	// EventSessionStarted - the access point is up and the cache is filled.
	EventSessionStarted EventType = iota

	// EventSessionEnded - the session finished; Outcome says how.
	EventSessionEnded

	// EventConnectFinished - a connect attempt finished.
	EventConnectFinished
)

// String returns the event type name.
func (e EventType) String() string {
	switch e {
	case EventSessionStarted:
		return "SESSION_STARTED"
	case EventSessionEnded:
		return "SESSION_ENDED"
	case EventConnectFinished:
		return "CONNECT_FINISHED"
	default:
		return "UNKNOWN"
	}
}

// Event is passed to handlers registered with OnEvent.
type Event struct {
	Type      EventType
	SessionID string

	// SSID is set for EventConnectFinished.
	SSID string

	// Outcome is a connect outcome or a session outcome.
	Outcome string

	Err error
}

// EventHandler receives service events. Handlers run on the goroutine that
// caused the event and must not call back into the Service.
type EventHandler func(Event)
