package hotspot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/wifiprov/wifiprov-go/pkg/log"
)

// Errors.
var (
	ErrAddress = errors.New("hotspot: address assignment failed")
	ErrLaunch  = errors.New("hotspot: helper failed to start")
)

// killWait bounds the wait for a killed helper to be reaped.
const killWait = 2 * time.Second

// State is the access point lifecycle state.
type State uint8

const (
	StateStopped State = iota
	StateStarting
	StateRunning

	// StateStoppingOnError is held while a failed start is rolled back.
	StateStoppingOnError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStoppingOnError:
		return "STOPPING_ON_ERROR"
	default:
		return "UNKNOWN"
	}
}

type undoStep struct {
	name string
	fn   func(ctx context.Context) error
}

// Manager owns the access point.
type Manager struct {
	cfg       Config
	net       network
	launcher  Launcher
	addresser Addresser
	logger    *slog.Logger
	trace     log.Logger

	// opMu serialises Start and Stop; undo and helpers are guarded by it.
	opMu    sync.Mutex
	undo    []undoStep
	helpers []Process

	mu            sync.RWMutex
	state         State
	sessionID     string
	onStateChange func(old, new State)
}

// NewManager validates cfg and creates a stopped manager. A nil launcher or
// addresser selects ExecLauncher or IPAddresser.
func NewManager(cfg Config, launcher Launcher, addresser Addresser) (*Manager, error) {
	cfg.applyDefaults()
	n, err := cfg.resolve()
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if launcher == nil {
		launcher = ExecLauncher{Logger: logger}
	}
	if addresser == nil {
		addresser = IPAddresser{}
	}
	return &Manager{
		cfg:       cfg,
		net:       n,
		launcher:  launcher,
		addresser: addresser,
		logger:    logger.With("component", "hotspot", "interface", cfg.Interface),
		trace:     log.OrNoop(cfg.Trace),
	}, nil
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// OnStateChange sets a callback for state transitions.
func (m *Manager) OnStateChange(fn func(old, new State)) {
	m.mu.Lock()
	m.onStateChange = fn
	m.mu.Unlock()
}

// SetSession tags trace events with a provisioning session.
func (m *Manager) SetSession(id string) {
	m.mu.Lock()
	m.sessionID = id
	m.mu.Unlock()
}

// SSID returns the advertised network name.
func (m *Manager) SSID() string { return m.cfg.SSID }

// Gateway returns the access point address clients reach the portal on.
func (m *Manager) Gateway() string { return m.net.gateway.String() }

// Healthy reports whether the access point is running with every helper
// alive.
func (m *Manager) Healthy() bool {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.State() == StateRunning && m.helpersAlive()
}

func (m *Manager) helpersAlive() bool {
	if len(m.helpers) == 0 {
		return false
	}
	for _, p := range m.helpers {
		if exited(p) {
			return false
		}
	}
	return true
}

// Start brings the access point up. It returns nil at once when the access
// point is already running and healthy. When a helper has died the access
// point is torn down and started again.
//
// On error everything Start set up has been undone and the state is
// StateStopped.
func (m *Manager) Start(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.State() == StateRunning {
		if m.helpersAlive() {
			return nil
		}
		m.logger.Warn("access point helper exited, relaunching")
		if err := m.unwind(ctx); err != nil {
			m.logger.Warn("cleanup before relaunch", "error", err)
		}
		m.setState(StateStopped, "helper exited")
	}

	m.setState(StateStarting, "")
	if err := m.bringUp(ctx); err != nil {
		m.setState(StateStoppingOnError, err.Error())
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.StopGrace+killWait)
		if cerr := m.unwind(cleanupCtx); cerr != nil {
			m.logger.Warn("rollback after failed start", "error", cerr)
		}
		cancel()
		m.setState(StateStopped, "start failed")
		return err
	}

	m.setState(StateRunning, "")
	m.logger.Info("access point up", "ssid", m.cfg.SSID, "gateway", m.net.gateway)
	return nil
}

func (m *Manager) bringUp(ctx context.Context) error {
	iface, prefix := m.cfg.Interface, m.net.prefix
	if err := m.addresser.AddAddress(ctx, iface, prefix); err != nil {
		return fmt.Errorf("%w: %v", ErrAddress, err)
	}
	m.push("address", func(ctx context.Context) error {
		return m.addresser.RemoveAddress(ctx, iface, prefix)
	})

	if err := os.MkdirAll(m.cfg.RuntimeDir, 0o700); err != nil {
		return fmt.Errorf("%w: runtime dir: %v", ErrLaunch, err)
	}

	hostapdConf, err := HostapdConfig(m.cfg)
	if err != nil {
		return err
	}
	hostapdPath, err := m.writeConfig("hostapd.conf", hostapdConf)
	if err != nil {
		return err
	}
	if err := m.launch(ctx, "hostapd", m.cfg.HostapdPath, hostapdPath); err != nil {
		return err
	}

	dnsmasqConf, err := DnsmasqConfig(m.cfg)
	if err != nil {
		return err
	}
	dnsmasqPath, err := m.writeConfig("dnsmasq.conf", dnsmasqConf)
	if err != nil {
		return err
	}
	return m.launch(ctx, "dnsmasq", m.cfg.DnsmasqPath,
		"--keep-in-foreground",
		"--log-facility=-",
		"--conf-file="+dnsmasqPath)
}

func (m *Manager) writeConfig(name, content string) (string, error) {
	path := filepath.Join(m.cfg.RuntimeDir, name)
	// hostapd.conf carries the passphrase.
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("%w: write %s: %v", ErrLaunch, name, err)
	}
	m.push(name, func(context.Context) error {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	})
	return path, nil
}

func (m *Manager) launch(ctx context.Context, name, path string, args ...string) error {
	p, err := m.launcher.Launch(ctx, name, path, args...)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrLaunch, name, err)
	}
	m.helpers = append(m.helpers, p)
	m.push(name, func(ctx context.Context) error {
		return m.terminate(ctx, name, p)
	})

	grace := time.NewTimer(m.cfg.LaunchGrace)
	defer grace.Stop()
	select {
	case <-p.Done():
		return fmt.Errorf("%w: %s exited during startup: %v", ErrLaunch, name, p.Err())
	case <-ctx.Done():
		return ctx.Err()
	case <-grace.C:
		return nil
	}
}

func (m *Manager) push(name string, fn func(context.Context) error) {
	m.undo = append(m.undo, undoStep{name: name, fn: fn})
}

// unwind runs the undo stack in reverse. Every step runs even if an earlier
// one failed.
func (m *Manager) unwind(ctx context.Context) error {
	var errs []error
	for i := len(m.undo) - 1; i >= 0; i-- {
		step := m.undo[i]
		if err := step.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}
	m.undo = nil
	m.helpers = nil
	return errors.Join(errs...)
}

// terminate sends SIGTERM, then SIGKILL once StopGrace or ctx runs out.
func (m *Manager) terminate(ctx context.Context, name string, p Process) error {
	if exited(p) {
		return nil
	}
	if err := p.Signal(syscall.SIGTERM); err != nil && !exited(p) {
		m.logger.Debug("SIGTERM failed", "helper", name, "error", err)
	}

	grace := time.NewTimer(m.cfg.StopGrace)
	defer grace.Stop()
	select {
	case <-p.Done():
		return nil
	case <-grace.C:
	case <-ctx.Done():
	}

	m.logger.Warn("helper did not stop, killing", "helper", name, "pid", p.Pid())
	if err := p.Kill(); err != nil && !exited(p) {
		return fmt.Errorf("kill pid %d: %w", p.Pid(), err)
	}
	select {
	case <-p.Done():
		return nil
	case <-time.After(killWait):
		return fmt.Errorf("pid %d did not exit", p.Pid())
	}
}

// Stop takes the access point down. It is a no-op when already stopped and
// always leaves the state at StateStopped; the error reports cleanup steps
// that failed.
func (m *Manager) Stop(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.State() == StateStopped && len(m.undo) == 0 {
		return nil
	}
	err := m.unwind(ctx)
	m.setState(StateStopped, "")
	if err != nil {
		m.logger.Warn("access point stopped with errors", "error", err)
		return err
	}
	m.logger.Info("access point down")
	return nil
}

func (m *Manager) setState(s State, reason string) {
	m.mu.Lock()
	old := m.state
	if old == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	fn := m.onStateChange
	session := m.sessionID
	m.mu.Unlock()

	m.trace.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: session,
		Layer:     log.LayerHotspot,
		Category:  log.CategoryState,
		Interface: m.cfg.Interface,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityHotspot,
			OldState: old.String(),
			NewState: s.String(),
			Reason:   reason,
		},
	})
	if fn != nil {
		fn(old, s)
	}
}
