package connect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wifiprov/wifiprov-go/pkg/command"
	"github.com/wifiprov/wifiprov-go/pkg/events"
	"github.com/wifiprov/wifiprov-go/pkg/log"
	"github.com/wifiprov/wifiprov-go/pkg/supplicant"
)

// Default bounds.
const (
	DefaultTimeout        = 30 * time.Second
	DefaultSettleDelay    = 1 * time.Second
	DefaultRestoreTimeout = 15 * time.Second

	maxSSIDLen = 32

	// WPA passphrase bounds in bytes.
	minPassphraseLen = 8
	maxPassphraseLen = 63
)

// Commander sends supplicant commands.
type Commander interface {
	Do(ctx context.Context, cmd supplicant.Command) (supplicant.Response, error)
}

// Subscriber hands out event subscriptions.
type Subscriber interface {
	Subscribe() *events.Subscription
}

// Hotspot is the access point the radio is taken from.
type Hotspot interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Config configures a Manager.
type Config struct {
	// Timeout bounds the wait for the completed state.
	Timeout time.Duration

	// SettleDelay bounds the wait for the interface to leave
	// interface_disabled after the access point stops.
	SettleDelay time.Duration

	// RestoreTimeout bounds stopping and restarting the access point.
	RestoreTimeout time.Duration

	// DHCP is run on Interface after association. Nil skips it.
	DHCP DHCP

	// DHCPTimeout bounds DHCP. Defaults to DefaultDHCPTimeout.
	DHCPTimeout time.Duration

	Interface string
	Logger    *slog.Logger
	Trace     log.Logger
}

// Manager runs connect attempts.
type Manager struct {
	cmd     Commander
	sub     Subscriber
	hotspot Hotspot
	cfg     Config
	logger  *slog.Logger
	trace   log.Logger

	// gate holds a token while an attempt runs.
	gate chan struct{}

	mu        sync.RWMutex
	phase     Phase
	sessionID string
	onPhase   func(old, new Phase)
}

// New creates a manager.
func New(cmd Commander, sub Subscriber, hotspot Hotspot, cfg Config) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	} else if cfg.SettleDelay == 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.RestoreTimeout <= 0 {
		cfg.RestoreTimeout = DefaultRestoreTimeout
	}
	if cfg.DHCPTimeout <= 0 {
		cfg.DHCPTimeout = DefaultDHCPTimeout
	}
	m := &Manager{
		cmd:     cmd,
		sub:     sub,
		hotspot: hotspot,
		cfg:     cfg,
		logger:  cfg.Logger,
		trace:   log.OrNoop(cfg.Trace),
		gate:    make(chan struct{}, 1),
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	return m
}

// Phase returns the current or last phase.
func (m *Manager) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// OnPhase sets a callback for phase transitions.
func (m *Manager) OnPhase(fn func(old, new Phase)) {
	m.mu.Lock()
	m.onPhase = fn
	m.mu.Unlock()
}

// SetSession tags trace events with a provisioning session.
func (m *Manager) SetSession(id string) {
	m.mu.Lock()
	m.sessionID = id
	m.mu.Unlock()
}

// Busy reports whether an attempt is running.
func (m *Manager) Busy() bool {
	return len(m.gate) > 0
}

// Connect runs one attempt. It returns nil once the station reports the
// completed state. Otherwise the access point has been restarted and the
// error matches ErrRejected, ErrTimedOut, a transport error, or ErrBusy when
// another attempt holds the radio.
//
// ctx is consulted only before the attempt starts.
func (m *Manager) Connect(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if len(req.SSID) == 0 || len(req.SSID) > maxSSIDLen {
		return Result{}, fmt.Errorf("%w: SSID must be 1-%d bytes", ErrInvalidRequest, maxSSIDLen)
	}
	if n := len(req.Passphrase); n > 0 && (n < minPassphraseLen || n > maxPassphraseLen) {
		return Result{}, fmt.Errorf("%w: passphrase must be %d-%d bytes", ErrInvalidRequest, minPassphraseLen, maxPassphraseLen)
	}

	select {
	case m.gate <- struct{}{}:
	default:
		return Result{}, ErrBusy
	}
	defer func() { <-m.gate }()

	res := Result{SSID: req.SSID, Started: time.Now()}
	err := m.run(context.WithoutCancel(ctx), req, &res)
	res.Duration = time.Since(res.Started)
	res.Outcome = OutcomeOf(err)
	if err != nil {
		res.Reason = err.Error()
	}

	m.logger.Info("connect attempt finished",
		"ssid", req.SSID,
		"outcome", res.Outcome.String(),
		"duration", res.Duration,
		"ap_restored", res.Restored)
	return res, err
}

func (m *Manager) run(ctx context.Context, req Request, res *Result) error {
	m.setPhase(PhaseStoppingAP, "")
	stopCtx, cancel := context.WithTimeout(ctx, m.cfg.RestoreTimeout)
	if err := m.hotspot.Stop(stopCtx); err != nil {
		// Stop always leaves the access point down; the error is about
		// cleanup only.
		m.logger.Warn("access point stop reported an error", "error", err)
	}
	cancel()
	m.settle(ctx)

	m.setPhase(PhaseConfiguring, "")
	profile := supplicant.NewProfile(req.SSID, req.Passphrase)

	m.setPhase(PhaseSelecting, "")
	sub := m.sub.Subscribe()
	defer sub.Close()

	resp, err := m.cmd.Do(ctx, supplicant.Command{Op: supplicant.OpAddNetwork, Profile: profile})
	if err != nil {
		return m.fail(ctx, "", selectError("add network", err), res)
	}
	networkID := resp.NetworkID

	if _, err := m.cmd.Do(ctx, supplicant.Command{Op: supplicant.OpSelectNetwork, NetworkID: networkID}); err != nil {
		return m.fail(ctx, networkID, selectError("select network", err), res)
	}

	m.setPhase(PhaseAwaitingState, "")
	if err := m.await(ctx, sub); err != nil {
		return m.fail(ctx, networkID, err, res)
	}

	// Association stands even without a lease.
	reason := ""
	if err := m.acquireAddress(ctx); err != nil {
		m.logger.Warn("no address on the target network", "interface", m.cfg.Interface, "error", err)
		reason = "dhcp: " + err.Error()
	} else {
		res.Addressed = m.cfg.DHCP != nil
	}
	m.setPhase(PhaseCompleted, reason)
	return nil
}

func (m *Manager) acquireAddress(ctx context.Context) error {
	if m.cfg.DHCP == nil {
		return nil
	}
	dctx, cancel := context.WithTimeout(ctx, m.cfg.DHCPTimeout)
	defer cancel()

	start := time.Now()
	if err := m.cfg.DHCP.Acquire(dctx, m.cfg.Interface); err != nil {
		return err
	}
	m.logger.Info("address acquired", "interface", m.cfg.Interface, "duration", time.Since(start))
	return nil
}

// settle waits until the supplicant reports the interface usable again,
// bounded by the settle delay. Whatever happens the attempt proceeds.
func (m *Manager) settle(ctx context.Context) {
	if m.cfg.SettleDelay <= 0 {
		return
	}
	if !command.AwaitReady(ctx, m.cmd, m.cfg.SettleDelay) {
		m.logger.Debug("interface did not settle, proceeding", "bound", m.cfg.SettleDelay)
	}
}

// await waits for the completed state or an early rejection.
func (m *Manager) await(ctx context.Context, sub *events.Subscription) error {
	wctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	ev, err := sub.WaitFor(wctx, func(ev supplicant.Event) bool {
		switch ev.Kind {
		case supplicant.EventAuthRejected:
			return true
		case supplicant.EventStateChanged:
			return ev.State == supplicant.StateCompleted
		}
		return false
	})
	if err == nil {
		if ev.Kind == supplicant.EventAuthRejected {
			return &RejectedError{Reason: ev.Reason}
		}
		return nil
	}

	// The completion event may have been dropped; ask once.
	resp, serr := m.cmd.Do(ctx, supplicant.Command{Op: supplicant.OpStatus})
	if serr == nil && resp.State() == supplicant.StateCompleted {
		m.logger.Debug("completed state found by status poll")
		return nil
	}
	return fmt.Errorf("%w after %s", ErrTimedOut, m.cfg.Timeout)
}

// fail removes the half-configured network and restarts the access point.
func (m *Manager) fail(ctx context.Context, networkID string, cause error, res *Result) error {
	phase := PhaseFailed
	if errors.Is(cause, ErrTimedOut) {
		phase = PhaseTimedOut
	}
	m.setPhase(phase, cause.Error())

	if networkID != "" {
		if _, err := m.cmd.Do(ctx, supplicant.Command{Op: supplicant.OpRemoveNetwork, NetworkID: networkID}); err != nil {
			m.logger.Warn("removing network profile failed", "id", networkID, "error", err)
		}
	}

	rctx, cancel := context.WithTimeout(ctx, m.cfg.RestoreTimeout)
	defer cancel()
	if err := m.hotspot.Start(rctx); err != nil {
		m.logger.Error("restoring access point failed", "error", err)
		return errors.Join(cause, fmt.Errorf("connect: restore access point: %w", err))
	}
	res.Restored = true
	return cause
}

// selectError classifies a failure while configuring or selecting.
func selectError(step string, err error) error {
	var ce *supplicant.CommandError
	if errors.As(err, &ce) {
		return &RejectedError{Reason: step + ": " + ce.Reason}
	}
	return fmt.Errorf("connect: %s: %w", step, err)
}

func (m *Manager) setPhase(p Phase, reason string) {
	m.mu.Lock()
	old := m.phase
	m.phase = p
	fn := m.onPhase
	session := m.sessionID
	m.mu.Unlock()

	m.trace.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: session,
		Layer:     log.LayerSession,
		Category:  log.CategoryState,
		Interface: m.cfg.Interface,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnect,
			OldState: old.String(),
			NewState: p.String(),
			Reason:   reason,
		},
	})
	if fn != nil {
		fn(old, p)
	}
}
