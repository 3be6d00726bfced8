// Package command serializes requests to the supplicant.
//
// A Channel admits one command at a time. The blocking transport call runs
// on a worker goroutine that holds the gate until the transport returns, so
// a caller that gives up on a slow reply never lets a second command
// interleave with the first.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wifiprov/wifiprov-go/pkg/log"
	"github.com/wifiprov/wifiprov-go/pkg/supplicant"
)

// DefaultTimeout bounds a command when the caller does not choose one.
const DefaultTimeout = 5 * time.Second

// ErrClosed is returned after Close.
var ErrClosed = errors.New("command: channel closed")

// Config configures a Channel.
type Config struct {
	// Timeout bounds each Do call, including the wait for the gate.
	// Defaults to DefaultTimeout.
	Timeout time.Duration

	// Interface is recorded in trace events.
	Interface string

	// Logger receives operational logs. Nil disables them.
	Logger *slog.Logger

	// Trace receives one event per command. Nil disables tracing.
	Trace log.Logger
}

// Channel is the only writer to a supplicant.Transport.
type Channel struct {
	transport supplicant.Transport
	cfg       Config

	// gate holds one token while a command is outstanding.
	gate chan struct{}

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	sessionMu sync.RWMutex
	sessionID string
}

// New creates a channel over t.
func New(t supplicant.Transport, cfg Config) *Channel {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.Trace = log.OrNoop(cfg.Trace)

	return &Channel{
		transport: t,
		cfg:       cfg,
		gate:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// SetSession tags subsequent trace events with a provisioning session.
func (c *Channel) SetSession(id string) {
	c.sessionMu.Lock()
	c.sessionID = id
	c.sessionMu.Unlock()
}

func (c *Channel) session() string {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	return c.sessionID
}

// Do sends cmd with the configured timeout.
func (c *Channel) Do(ctx context.Context, cmd supplicant.Command) (supplicant.Response, error) {
	return c.DoTimeout(ctx, cmd, c.cfg.Timeout)
}

type result struct {
	resp supplicant.Response
	err  error
}

// DoTimeout sends cmd, waiting at most timeout for both the gate and the
// reply. An expired bound yields an error wrapping supplicant.ErrTimeout;
// cancellation of ctx yields ctx.Err(). Commands are never retried.
func (c *Channel) DoTimeout(ctx context.Context, cmd supplicant.Command, timeout time.Duration) (supplicant.Response, error) {
	start := time.Now()

	select {
	case <-c.done:
		return supplicant.Response{}, ErrClosed
	default:
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Acquire the gate.
	select {
	case c.gate <- struct{}{}:
	case <-c.done:
		return supplicant.Response{}, ErrClosed
	case <-cctx.Done():
		err := c.waitError(ctx, cmd, "waiting for channel")
		c.trace(cmd, supplicant.Response{}, err, time.Since(start))
		return supplicant.Response{}, err
	}

	// The worker owns the gate from here on and releases it when the
	// transport returns, whatever the caller does meanwhile.
	out := make(chan result, 1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() { <-c.gate }()

		resp, err := c.transport.Send(cctx, cmd)
		out <- result{resp: resp, err: err}
	}()

	select {
	case r := <-out:
		err := r.err
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %s: %v", supplicant.ErrTimeout, cmd.Op, err)
		}
		c.trace(cmd, r.resp, err, time.Since(start))
		return r.resp, err
	case <-cctx.Done():
		err := c.waitError(ctx, cmd, "waiting for reply")
		c.trace(cmd, supplicant.Response{}, err, time.Since(start))
		return supplicant.Response{}, err
	}
}

// waitError maps an expired wait to the caller-facing error.
func (c *Channel) waitError(parent context.Context, cmd supplicant.Command, what string) error {
	if err := parent.Err(); errors.Is(err, context.Canceled) {
		return err
	}
	if c.cfg.Logger != nil {
		c.cfg.Logger.Warn("supplicant command timed out", "op", cmd.Op.String(), "stage", what)
	}
	return fmt.Errorf("%w: %s %s", supplicant.ErrTimeout, cmd.Op, what)
}

func (c *Channel) trace(cmd supplicant.Command, resp supplicant.Response, err error, d time.Duration) {
	ev := &log.CommandEvent{
		Op:        cmd.Op.String(),
		NetworkID: cmd.NetworkID,
		Result:    log.ResultOK,
		Duration:  d,
	}
	if cmd.Op == supplicant.OpAddNetwork {
		ev.SSID = string(cmd.Profile.SSID)
		ev.NetworkID = resp.NetworkID
	}

	category := log.CategoryMessage
	if err != nil {
		category = log.CategoryError
		ev.Detail = err.Error()
		switch {
		case supplicant.IsCommandError(err):
			ev.Result = log.ResultRejected
		case errors.Is(err, supplicant.ErrTimeout):
			ev.Result = log.ResultTimeout
		default:
			ev.Result = log.ResultFailed
		}
	}

	c.cfg.Trace.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: c.session(),
		Direction: log.DirectionOut,
		Layer:     log.LayerCommand,
		Category:  category,
		Interface: c.cfg.Interface,
		Command:   ev,
	})
}

// Busy reports whether a command is outstanding.
func (c *Channel) Busy() bool {
	return len(c.gate) > 0
}

// Close rejects new commands and waits for in-flight transport calls to
// return. It does not close the transport.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	c.wg.Wait()
	return nil
}
