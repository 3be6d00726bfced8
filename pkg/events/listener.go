package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/wifiprov/wifiprov-go/pkg/connection"
	"github.com/wifiprov/wifiprov-go/pkg/log"
	"github.com/wifiprov/wifiprov-go/pkg/supplicant"
)

// DefaultRetryInterval is the fixed delay between reconnection attempts.
const DefaultRetryInterval = 2 * time.Second

// ErrClosed is returned by waits on a closed subscription.
var ErrClosed = errors.New("events: closed")

// ListenerConfig configures a Listener.
type ListenerConfig struct {
	// RetryInterval is the fixed reconnection delay. Defaults to
	// DefaultRetryInterval.
	RetryInterval time.Duration

	// Buffer is the per-subscriber queue length.
	Buffer int

	// Interface is recorded in trace events.
	Interface string

	Logger *slog.Logger
	Trace  log.Logger
}

// Listener is the sole reader of supplicant notifications.
type Listener struct {
	transport supplicant.Transport
	cfg       ListenerConfig
	logger    *slog.Logger
	trace     log.Logger

	bus  *Broadcaster
	conn *connection.Manager

	mu      sync.Mutex
	source  supplicant.EventSource
	started bool
	closed  bool

	wg sync.WaitGroup
}

// NewListener creates a listener over t. Call Start to begin receiving.
func NewListener(t supplicant.Transport, cfg ListenerConfig) *Listener {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	l := &Listener{
		transport: t,
		cfg:       cfg,
		logger:    cfg.Logger,
		trace:     log.OrNoop(cfg.Trace),
		bus:       NewBroadcaster(cfg.Buffer),
	}
	if l.logger == nil {
		l.logger = slog.New(slog.DiscardHandler)
	}

	l.conn = connection.NewManagerWithConfig(l.open, connection.ManagerConfig{
		Backoff:        connection.Fixed(cfg.RetryInterval),
		AttemptTimeout: cfg.RetryInterval + 5*time.Second,
	})
	l.conn.OnConnected(l.startReceiving)
	l.conn.OnStateChange(l.stateChanged)
	l.conn.OnAttemptFailed(func(attempt int, err error) {
		l.logger.Debug("event source reconnect failed", "attempt", attempt, "error", err)
	})
	return l
}

// Start opens the event source. If the supplicant is not reachable yet the
// listener keeps retrying in the background and Start returns nil; the
// first error is logged.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.started || l.closed {
		l.mu.Unlock()
		return nil
	}
	l.started = true
	l.mu.Unlock()

	l.conn.StartReconnectLoop()
	if err := l.conn.Connect(ctx); err != nil {
		if errors.Is(err, connection.ErrConnectionClosed) {
			return nil
		}
		l.logger.Warn("supplicant events unavailable, retrying", "error", err, "interval", l.cfg.RetryInterval)
		l.conn.Retry()
	}
	return nil
}

// Subscribe registers a waiter. Subscribe before triggering the action whose
// outcome is awaited.
func (l *Listener) Subscribe() *Subscription {
	return l.bus.Subscribe()
}

// State returns the link state.
func (l *Listener) State() connection.State {
	return l.conn.State()
}

// Close stops receiving and closes every subscription.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	src := l.source
	l.source = nil
	l.mu.Unlock()

	l.conn.Close()
	if src != nil {
		src.Close()
	}
	l.wg.Wait()
	l.bus.Close()
	return nil
}

// open is the connection.ConnectFunc.
func (l *Listener) open(ctx context.Context) error {
	src, err := l.transport.OpenEvents(ctx)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		src.Close()
		return connection.ErrConnectionClosed
	}
	l.source = src
	return nil
}

func (l *Listener) startReceiving() {
	l.mu.Lock()
	src := l.source
	if src == nil || l.closed {
		l.mu.Unlock()
		return
	}
	l.wg.Add(1)
	l.mu.Unlock()

	go l.receive(src)
}

func (l *Listener) receive(src supplicant.EventSource) {
	defer l.wg.Done()

	for {
		ev, err := src.Receive()
		if err != nil {
			l.mu.Lock()
			closing := l.closed
			if l.source == src {
				l.source = nil
			}
			l.mu.Unlock()
			src.Close()

			if !closing {
				l.logger.Warn("supplicant event source lost", "error", err)
				l.conn.NotifyConnectionLost()
			}
			return
		}

		l.trace.Log(log.Event{
			Timestamp: ev.Received,
			Direction: log.DirectionIn,
			Layer:     log.LayerEvent,
			Category:  log.CategoryMessage,
			Interface: l.cfg.Interface,
			Notify: &log.NotifyEvent{
				Kind:   ev.Kind.String(),
				State:  ev.State,
				Reason: ev.Reason,
				Raw:    ev.Raw,
			},
		})
		l.bus.Publish(ev)
	}
}

func (l *Listener) stateChanged(oldState, newState connection.State) {
	l.logger.Debug("event listener state", "from", oldState.String(), "to", newState.String())
	l.trace.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerEvent,
		Category:  log.CategoryState,
		Interface: l.cfg.Interface,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityListener,
			OldState: oldState.String(),
			NewState: newState.String(),
		},
	})
}
