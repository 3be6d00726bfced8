package discovery

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Advertiser provides mDNS service advertising capabilities.
type Advertiser interface {
	// Advertise registers the portal, replacing any earlier registration.
	Advertise(ctx context.Context, info *PortalInfo) error

	// Update replaces the TXT records of the current registration.
	Update(info *PortalInfo) error

	// Stop withdraws the registration. Stopping twice is not an error.
	Stop() error
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL.
	// Default: 120 seconds.
	TTL time.Duration
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{
		Interface: "",
		TTL:       DefaultTTL,
	}
}

// AnnounceState is the announcer state.
type AnnounceState uint8

const (
	StateIdle AnnounceState = iota
	StateAnnouncing
)

// String returns the state name.
func (s AnnounceState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAnnouncing:
		return "ANNOUNCING"
	default:
		return "UNKNOWN"
	}
}

// Announcer tracks whether the portal is announced and keeps the
// advertisement in step with the access point.
type Announcer struct {
	mu sync.Mutex

	state      AnnounceState
	advertiser Advertiser
	info       PortalInfo
	logger     *slog.Logger

	onStateChange func(old, new AnnounceState)
}

// NewAnnouncer creates an idle announcer for base. Start fills in the
// session ID.
func NewAnnouncer(advertiser Advertiser, base PortalInfo, logger *slog.Logger) *Announcer {
	if base.Instance == "" {
		base.Instance = DefaultInstance
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Announcer{advertiser: advertiser, info: base, logger: logger}
}

// State returns the current state.
func (a *Announcer) State() AnnounceState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// OnStateChange sets a callback for state changes.
func (a *Announcer) OnStateChange(fn func(old, new AnnounceState)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onStateChange = fn
}

// Info returns the announced information.
func (a *Announcer) Info() PortalInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.info
}

// Start announces the portal for sessionID. When already announcing, only
// the TXT records are updated.
func (a *Announcer) Start(ctx context.Context, sessionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	info := a.info
	info.SessionID = sessionID
	if err := info.Validate(); err != nil {
		return err
	}

	if a.state == StateAnnouncing {
		if err := a.advertiser.Update(&info); err != nil {
			return err
		}
		a.info = info
		return nil
	}

	if err := a.advertiser.Advertise(ctx, &info); err != nil {
		return err
	}
	a.info = info
	a.setState(StateAnnouncing)
	a.logger.Info("portal announced", "instance", info.Instance, "session", sessionID)
	return nil
}

// Stop withdraws the announcement. It is a no-op when idle.
func (a *Announcer) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateIdle {
		return nil
	}
	err := a.advertiser.Stop()
	a.setState(StateIdle)
	return err
}

// setState must be called with mu held.
func (a *Announcer) setState(s AnnounceState) {
	old := a.state
	a.state = s
	if a.onStateChange != nil && old != s {
		a.onStateChange(old, s)
	}
}
