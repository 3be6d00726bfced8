package connection

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Connection errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrAlreadyConnected = errors.New("already connected")
)

// DefaultAttemptTimeout bounds one ConnectFunc call made by the retry loop.
const DefaultAttemptTimeout = 10 * time.Second

// State represents the link state.
type State uint8

const (
	// StateDisconnected indicates no link and no retry scheduled.
	StateDisconnected State = iota

	// StateConnecting indicates a caller-driven attempt is in progress.
	StateConnecting

	// StateConnected indicates an active link.
	StateConnected

	// StateReconnecting indicates the retry loop owns the link.
	StateReconnecting

	// StateClosed indicates the manager has been closed.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ConnectFunc establishes the link. It returns nil on success.
type ConnectFunc func(ctx context.Context) error

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Backoff sets the retry delays. The zero value uses NewBackoff defaults.
	Backoff BackoffConfig

	// AttemptTimeout bounds each retry. Defaults to DefaultAttemptTimeout.
	AttemptTimeout time.Duration
}

// Manager keeps a link up with automatic retries.
type Manager struct {
	mu sync.RWMutex

	state State

	backoff        *Backoff
	attemptTimeout time.Duration
	connectFn      ConnectFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	reconnectCh chan struct{}

	onStateChange   func(oldState, newState State)
	onConnected     func()
	onDisconnected  func()
	onReconnecting  func(attempt int, delay time.Duration)
	onAttemptFailed func(attempt int, err error)
}

// NewManager creates a manager with default exponential backoff.
func NewManager(connectFn ConnectFunc) *Manager {
	return NewManagerWithConfig(connectFn, ManagerConfig{
		Backoff: BackoffConfig{Multiplier: BackoffMultiplier, Jitter: JitterFactor},
	})
}

// NewManagerWithConfig creates a manager with custom retry settings.
func NewManagerWithConfig(connectFn ConnectFunc, cfg ManagerConfig) *Manager {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		state:          StateDisconnected,
		backoff:        NewBackoffWithConfig(cfg.Backoff),
		attemptTimeout: cfg.AttemptTimeout,
		connectFn:      connectFn,
		ctx:            ctx,
		cancel:         cancel,
		reconnectCh:    make(chan struct{}, 1),
	}
}

// State returns the current link state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected returns true if the link is up.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// Connect makes one attempt on the caller's goroutine.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		return ErrAlreadyConnected
	case StateClosed:
		m.mu.Unlock()
		return ErrConnectionClosed
	}
	oldState := m.state
	m.state = StateConnecting
	m.mu.Unlock()

	m.notifyState(oldState, StateConnecting)

	if err := m.connectFn(ctx); err != nil {
		if m.transition(StateConnecting, StateDisconnected) {
			m.notifyState(StateConnecting, StateDisconnected)
		}
		return err
	}

	m.backoff.Reset()
	if !m.transition(StateConnecting, StateConnected) {
		return ErrConnectionClosed
	}
	m.notifyState(StateConnecting, StateConnected)
	m.callConnected()
	return nil
}

// Retry hands a disconnected link to the retry loop, for example after the
// first Connect failed.
func (m *Manager) Retry() {
	if m.transition(StateDisconnected, StateReconnecting) {
		m.notifyState(StateDisconnected, StateReconnecting)
		m.triggerReconnect()
	}
}

// NotifyConnectionLost reports that an established link went away. The
// retry loop takes over.
func (m *Manager) NotifyConnectionLost() {
	if !m.transition(StateConnected, StateReconnecting) {
		return
	}
	m.notifyState(StateConnected, StateReconnecting)

	m.mu.RLock()
	fn := m.onDisconnected
	m.mu.RUnlock()
	if fn != nil {
		fn()
	}

	m.triggerReconnect()
}

// StartReconnectLoop starts the background retry loop. Call it once.
func (m *Manager) StartReconnectLoop() {
	m.wg.Add(1)
	go m.reconnectLoop()
}

// Close stops the retry loop and waits for it to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	oldState := m.state
	m.state = StateClosed
	m.mu.Unlock()

	m.notifyState(oldState, StateClosed)

	m.cancel()
	m.wg.Wait()
}

// transition moves from one state to another if the manager is in from.
func (m *Manager) transition(from, to State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != from {
		return false
	}
	m.state = to
	return true
}

func (m *Manager) notifyState(oldState, newState State) {
	m.mu.RLock()
	fn := m.onStateChange
	m.mu.RUnlock()
	if fn != nil {
		fn(oldState, newState)
	}
}

func (m *Manager) callConnected() {
	m.mu.RLock()
	fn := m.onConnected
	m.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (m *Manager) triggerReconnect() {
	select {
	case m.reconnectCh <- struct{}{}:
	default:
		// Already pending
	}
}

func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.reconnectCh:
			m.attemptReconnect()
		}
	}
}

func (m *Manager) attemptReconnect() {
	for {
		if m.State() != StateReconnecting {
			return
		}

		delay := m.backoff.Next()
		attempt := m.backoff.Attempts()

		m.mu.RLock()
		onReconnecting, onFailed := m.onReconnecting, m.onAttemptFailed
		m.mu.RUnlock()
		if onReconnecting != nil {
			onReconnecting(attempt, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-m.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if m.State() != StateReconnecting {
			return
		}

		ctx, cancel := context.WithTimeout(m.ctx, m.attemptTimeout)
		err := m.connectFn(ctx)
		cancel()

		if err != nil {
			if onFailed != nil {
				onFailed(attempt, err)
			}
			continue
		}

		m.backoff.Reset()
		if !m.transition(StateReconnecting, StateConnected) {
			return
		}
		m.notifyState(StateReconnecting, StateConnected)
		m.callConnected()
		return
	}
}

// OnStateChange sets a callback for state changes.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// OnConnected sets a callback run after every successful attempt.
func (m *Manager) OnConnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnected = fn
}

// OnDisconnected sets a callback for link loss.
func (m *Manager) OnDisconnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisconnected = fn
}

// OnReconnecting sets a callback invoked before each retry delay.
func (m *Manager) OnReconnecting(fn func(attempt int, delay time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnecting = fn
}

// OnAttemptFailed sets a callback for failed retries.
func (m *Manager) OnAttemptFailed(fn func(attempt int, err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAttemptFailed = fn
}

// BackoffAttempts returns the number of retries since the last success.
func (m *Manager) BackoffAttempts() int {
	return m.backoff.Attempts()
}
