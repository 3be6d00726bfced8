package hotspot

import (
	"context"
	"fmt"
	"net/netip"
	"os/exec"
	"strings"
)

// Addresser assigns the gateway address to the access point interface.
type Addresser interface {
	AddAddress(ctx context.Context, iface string, prefix netip.Prefix) error
	RemoveAddress(ctx context.Context, iface string, prefix netip.Prefix) error
}

// IPAddresser drives iproute2.
type IPAddresser struct {
	// Path to ip. Empty means "ip" from PATH.
	Path string
}

var _ Addresser = IPAddresser{}

// AddAddress assigns prefix and brings the link up. An address that is
// already present is not an error.
func (a IPAddresser) AddAddress(ctx context.Context, iface string, prefix netip.Prefix) error {
	if err := a.run(ctx, "File exists", "addr", "add", prefix.String(), "dev", iface); err != nil {
		return err
	}
	return a.run(ctx, "", "link", "set", "dev", iface, "up")
}

// RemoveAddress deletes prefix. An address that is already gone is not an
// error.
func (a IPAddresser) RemoveAddress(ctx context.Context, iface string, prefix netip.Prefix) error {
	return a.run(ctx, "Cannot assign requested address", "addr", "del", prefix.String(), "dev", iface)
}

func (a IPAddresser) run(ctx context.Context, tolerate string, args ...string) error {
	path := a.Path
	if path == "" {
		path = "ip"
	}
	out, err := exec.CommandContext(ctx, path, args...).CombinedOutput()
	if err == nil {
		return nil
	}
	msg := strings.TrimSpace(string(out))
	if tolerate != "" && strings.Contains(msg, tolerate) {
		return nil
	}
	if msg == "" {
		msg = err.Error()
	}
	return fmt.Errorf("ip %s: %s", strings.Join(args, " "), msg)
}
