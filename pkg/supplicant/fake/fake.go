// Package fake provides an in-memory supplicant.Transport and DHCP client for
// tests and for running the daemon without a radio.
package fake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wifiprov/wifiprov-go/pkg/supplicant"
)

// Handler answers one command. Returning an error fails the Send.
type Handler func(ctx context.Context, cmd supplicant.Command) (supplicant.Response, error)

// Transport is a scriptable supplicant. The zero value is not usable; call New.
type Transport struct {
	mu       sync.Mutex
	handler  Handler
	sent     []supplicant.Command
	source   *Source
	failOpen error
	opened   int
	closed   bool
}

var _ supplicant.Transport = (*Transport)(nil)

// New returns a transport answering with h. A nil h answers every command
// with an empty successful response.
func New(h Handler) *Transport {
	if h == nil {
		h = func(context.Context, supplicant.Command) (supplicant.Response, error) {
			return supplicant.Response{Raw: "OK"}, nil
		}
	}
	return &Transport{handler: h}
}

// SetHandler replaces the handler.
func (t *Transport) SetHandler(h Handler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

// Send records cmd and passes it to the handler.
func (t *Transport) Send(ctx context.Context, cmd supplicant.Command) (supplicant.Response, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return supplicant.Response{}, fmt.Errorf("%w: transport closed", supplicant.ErrDisconnected)
	}
	t.sent = append(t.sent, cmd)
	h := t.handler
	t.mu.Unlock()

	return h(ctx, cmd)
}

// Sent returns the commands received so far.
func (t *Transport) Sent() []supplicant.Command {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]supplicant.Command(nil), t.sent...)
}

// SentOps returns the operations received so far.
func (t *Transport) SentOps() []supplicant.Op {
	t.mu.Lock()
	defer t.mu.Unlock()
	ops := make([]supplicant.Op, len(t.sent))
	for i, c := range t.sent {
		ops[i] = c.Op
	}
	return ops
}

// FailOpen makes subsequent OpenEvents calls return err. Nil clears it.
func (t *Transport) FailOpen(err error) {
	t.mu.Lock()
	t.failOpen = err
	t.mu.Unlock()
}

// Opened returns how many event sources have been opened.
func (t *Transport) Opened() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opened
}

// OpenEvents returns a new source. Events emitted before it was opened are
// not replayed.
func (t *Transport) OpenEvents(context.Context) (supplicant.EventSource, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, fmt.Errorf("%w: transport closed", supplicant.ErrDisconnected)
	}
	if t.failOpen != nil {
		return nil, t.failOpen
	}
	t.opened++
	t.source = newSource()
	return t.source, nil
}

// Emit delivers ev to the current source. It reports false when no source is
// open.
func (t *Transport) Emit(ev supplicant.Event) bool {
	t.mu.Lock()
	src := t.source
	t.mu.Unlock()

	if src == nil {
		return false
	}
	if ev.Received.IsZero() {
		ev.Received = time.Now()
	}
	return src.push(ev)
}

// EmitLine classifies a control-socket line and emits it.
func (t *Transport) EmitLine(line string) bool {
	return t.Emit(supplicant.ClassifyCtrlEvent(line))
}

// Disconnect drops the current source as if the supplicant went away.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	src := t.source
	t.source = nil
	t.mu.Unlock()

	if src != nil {
		src.Close()
	}
}

// Close closes the transport and its current source.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	src := t.source
	t.source = nil
	t.mu.Unlock()

	if src != nil {
		src.Close()
	}
	return nil
}

// Source is a fake event source.
type Source struct {
	ch   chan supplicant.Event
	done chan struct{}
	once sync.Once
}

func newSource() *Source {
	return &Source{
		ch:   make(chan supplicant.Event, 64),
		done: make(chan struct{}),
	}
}

func (s *Source) push(ev supplicant.Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.ch <- ev:
		return true
	case <-s.done:
		return false
	}
}

// Receive returns the next emitted event.
func (s *Source) Receive() (supplicant.Event, error) {
	select {
	case ev := <-s.ch:
		return ev, nil
	case <-s.done:
		return supplicant.Event{}, fmt.Errorf("%w: source closed", supplicant.ErrDisconnected)
	}
}

// Close unblocks Receive.
func (s *Source) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// ErrScripted is a generic failure for handlers.
var ErrScripted = errors.New("fake: scripted failure")
