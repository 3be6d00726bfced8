// Package scan runs one on-demand network scan: trigger, wait for the
// supplicant to report completion, then fetch and parse the results.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wifiprov/wifiprov-go/pkg/events"
	"github.com/wifiprov/wifiprov-go/pkg/supplicant"
)

// DefaultTimeout bounds the wait for scan completion.
const DefaultTimeout = 15 * time.Second

// Scan errors.
var (
	// ErrTimeout means no completion notification arrived in time.
	ErrTimeout = errors.New("scan: timed out waiting for results")

	// ErrFailed means the supplicant reported that the scan failed.
	ErrFailed = errors.New("scan: supplicant reported failure")
)

// Commander sends supplicant commands. *command.Channel implements it.
type Commander interface {
	Do(ctx context.Context, cmd supplicant.Command) (supplicant.Response, error)
}

// Subscriber hands out event subscriptions. *events.Listener implements it.
type Subscriber interface {
	Subscribe() *events.Subscription
}

// Config configures a Scanner.
type Config struct {
	// Timeout bounds the completion wait. Defaults to DefaultTimeout.
	Timeout time.Duration

	Logger *slog.Logger
}

// Scanner performs scans. Concurrent scans are allowed; the supplicant
// answers FAIL-BUSY to overlapping triggers and the caller sees a
// CommandError.
type Scanner struct {
	cmd     Commander
	sub     Subscriber
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a scanner.
func New(cmd Commander, sub Subscriber, cfg Config) *Scanner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Scanner{cmd: cmd, sub: sub, timeout: cfg.Timeout, logger: cfg.Logger}
}

// Scan triggers a scan and returns the visible networks in the order the
// supplicant lists them.
func (s *Scanner) Scan(ctx context.Context) ([]supplicant.NetworkRecord, error) {
	// Subscribe first so a fast completion is not missed.
	sub := s.sub.Subscribe()
	defer sub.Close()

	if _, err := s.cmd.Do(ctx, supplicant.Command{Op: supplicant.OpScan}); err != nil {
		return nil, fmt.Errorf("scan: trigger: %w", err)
	}

	wctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ev, err := sub.WaitFor(wctx, events.Kind(supplicant.EventScanDone))
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w after %s", ErrTimeout, s.timeout)
	}
	if !ev.Success {
		return nil, fmt.Errorf("%w: %s", ErrFailed, ev.Reason)
	}

	resp, err := s.cmd.Do(ctx, supplicant.Command{Op: supplicant.OpScanResults})
	if err != nil {
		return nil, fmt.Errorf("scan: fetch results: %w", err)
	}

	records, skipped := supplicant.ParseScanResults(resp.Raw)
	if s.logger != nil {
		s.logger.Debug("scan complete", "networks", len(records), "skipped", skipped)
	}
	return records, nil
}
