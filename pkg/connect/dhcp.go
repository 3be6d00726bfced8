package connect

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultDHCPTimeout bounds one lease request.
const DefaultDHCPTimeout = 15 * time.Second

// DHCP obtains an address on the station interface once it is associated.
type DHCP interface {
	Acquire(ctx context.Context, iface string) error
}

// UDHCPC runs the busybox DHCP client once: it exits after a lease is
// obtained (-q) or when it gives up (-n).
type UDHCPC struct {
	// Path to udhcpc. Empty means "udhcpc" from PATH.
	Path string
}

var _ DHCP = UDHCPC{}

// Acquire requests a lease on iface.
func (u UDHCPC) Acquire(ctx context.Context, iface string) error {
	path := u.Path
	if path == "" {
		path = "udhcpc"
	}
	out, err := exec.CommandContext(ctx, path, "-i", iface, "-q", "-n").CombinedOutput()
	if err == nil {
		return nil
	}
	msg := strings.TrimSpace(string(out))
	if msg == "" {
		msg = err.Error()
	}
	return fmt.Errorf("%s -i %s: %s", path, iface, msg)
}
