// Package policy decides when the device enters provisioning.
package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

// DefaultThreshold is the number of consecutive disconnected observations
// before DaemonIfDisconnected asks for provisioning.
const DefaultThreshold = 3

// ErrUnknownKind is returned by ParseKind.
var ErrUnknownKind = errors.New("policy: unknown kind")

// Kind selects a policy.
type Kind uint8

const (
	KindOnStart Kind = iota
	KindDaemonIfDisconnected
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindOnStart:
		return "ON_START"
	case KindDaemonIfDisconnected:
		return "DAEMON_IF_DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// ParseKind accepts the configuration spelling, e.g. "on_start" or
// "daemon_if_disconnected", in any case.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")) {
	case "ON_START":
		return KindOnStart, nil
	case "DAEMON_IF_DISCONNECTED":
		return KindDaemonIfDisconnected, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Policy is consulted periodically while no session is active.
type Policy interface {
	ShouldEnterProvisioning(ctx context.Context) bool
	Kind() Kind
}

// ConnectivityProbe reports whether the station is associated.
type ConnectivityProbe interface {
	StationConnected(ctx context.Context) (bool, error)
}

// New returns the policy for kind. probe is only used by
// KindDaemonIfDisconnected; threshold <= 0 selects DefaultThreshold.
func New(kind Kind, probe ConnectivityProbe, threshold int, logger *slog.Logger) (Policy, error) {
	switch kind {
	case KindOnStart:
		return &OnStart{}, nil
	case KindDaemonIfDisconnected:
		if probe == nil {
			return nil, errors.New("policy: DAEMON_IF_DISCONNECTED needs a connectivity probe")
		}
		return NewDaemonIfDisconnected(probe, threshold, logger), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
}

// OnStart enters provisioning once, on the first check.
type OnStart struct {
	fired atomic.Bool
}

func (p *OnStart) ShouldEnterProvisioning(context.Context) bool {
	return p.fired.CompareAndSwap(false, true)
}

func (p *OnStart) Kind() Kind { return KindOnStart }

// DaemonIfDisconnected enters provisioning after the station has been seen
// disconnected threshold times in a row. A probe error counts as
// disconnected. The streak restarts after each positive answer.
type DaemonIfDisconnected struct {
	probe     ConnectivityProbe
	threshold int
	logger    *slog.Logger

	mu     sync.Mutex
	misses int
}

// NewDaemonIfDisconnected creates the policy.
func NewDaemonIfDisconnected(probe ConnectivityProbe, threshold int, logger *slog.Logger) *DaemonIfDisconnected {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DaemonIfDisconnected{probe: probe, threshold: threshold, logger: logger}
}

func (p *DaemonIfDisconnected) ShouldEnterProvisioning(ctx context.Context) bool {
	connected, err := p.probe.StationConnected(ctx)
	if err != nil {
		p.logger.Debug("connectivity probe failed, counting as disconnected", "error", err)
		connected = false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if connected {
		p.misses = 0
		return false
	}
	p.misses++
	if p.misses < p.threshold {
		return false
	}
	p.logger.Info("station disconnected, provisioning required", "observations", p.misses)
	p.misses = 0
	return true
}

func (p *DaemonIfDisconnected) Kind() Kind { return KindDaemonIfDisconnected }

// Misses returns the current disconnected streak.
func (p *DaemonIfDisconnected) Misses() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.misses
}
