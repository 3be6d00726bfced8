package fake

import (
	"context"
	"sync"
)

// DHCP is an in-memory DHCP client for the station side. It satisfies
// connect.DHCP.
type DHCP struct {
	mu    sync.Mutex
	calls []string
	err   error
}

// NewDHCP creates a client that always obtains a lease.
func NewDHCP() *DHCP {
	return &DHCP{}
}

// Fail makes later Acquire calls return err. Nil restores success.
func (d *DHCP) Fail(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

// Acquire records iface and returns the configured error.
func (d *DHCP) Acquire(ctx context.Context, iface string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, iface)
	return d.err
}

// Calls returns the interfaces Acquire was called with.
func (d *DHCP) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}
