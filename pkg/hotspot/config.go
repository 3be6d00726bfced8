package hotspot

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/wifiprov/wifiprov-go/pkg/log"
)

// Defaults.
const (
	DefaultChannel     = 6
	DefaultHWMode      = "g"
	DefaultLease       = "12h"
	DefaultHostapd     = "hostapd"
	DefaultDnsmasq     = "dnsmasq"
	DefaultRuntimeDir  = "/run/wifiprov"
	DefaultLaunchGrace = 500 * time.Millisecond
	DefaultStopGrace   = 3 * time.Second

	dhcpFirstHost = 100
	dhcpLastHost  = 200
)

// ErrConfig reports an unusable access point configuration.
var ErrConfig = errors.New("hotspot: invalid configuration")

// Config describes the access point.
type Config struct {
	Interface string
	SSID      string

	// Passphrase secures the access point with WPA2-PSK. Empty means open.
	Passphrase string

	// GatewayCIDR is the interface address and prefix, e.g. 192.168.4.1/24.
	GatewayCIDR string

	Channel     int
	HWMode      string
	CountryCode string

	// DHCPStart and DHCPEnd default to .100 and .200 of the gateway network.
	DHCPStart string
	DHCPEnd   string
	Lease     string

	HostapdPath string
	DnsmasqPath string

	// RuntimeDir holds generated helper configuration.
	RuntimeDir string

	// LaunchGrace is how long a helper must stay up to count as started.
	LaunchGrace time.Duration

	// StopGrace is how long a helper may take to exit after SIGTERM.
	StopGrace time.Duration

	Logger *slog.Logger
	Trace  log.Logger
}

func (c *Config) applyDefaults() {
	if c.Channel == 0 {
		c.Channel = DefaultChannel
	}
	if c.HWMode == "" {
		c.HWMode = DefaultHWMode
	}
	if c.Lease == "" {
		c.Lease = DefaultLease
	}
	if c.HostapdPath == "" {
		c.HostapdPath = DefaultHostapd
	}
	if c.DnsmasqPath == "" {
		c.DnsmasqPath = DefaultDnsmasq
	}
	if c.RuntimeDir == "" {
		c.RuntimeDir = DefaultRuntimeDir
	}
	if c.LaunchGrace <= 0 {
		c.LaunchGrace = DefaultLaunchGrace
	}
	if c.StopGrace <= 0 {
		c.StopGrace = DefaultStopGrace
	}
}

// network is the resolved addressing plan.
type network struct {
	prefix    netip.Prefix
	gateway   netip.Addr
	dhcpStart netip.Addr
	dhcpEnd   netip.Addr
}

func (c *Config) resolve() (network, error) {
	var n network

	if c.Interface == "" {
		return n, fmt.Errorf("%w: interface required", ErrConfig)
	}
	if l := len(c.SSID); l == 0 || l > 32 {
		return n, fmt.Errorf("%w: SSID must be 1-32 bytes", ErrConfig)
	}
	if p := c.Passphrase; p != "" && (len(p) < 8 || len(p) > 63) {
		return n, fmt.Errorf("%w: passphrase must be 8-63 characters", ErrConfig)
	}
	if strings.ContainsAny(c.Passphrase, "\n\r") {
		return n, fmt.Errorf("%w: passphrase contains a line break", ErrConfig)
	}

	prefix, err := netip.ParsePrefix(c.GatewayCIDR)
	if err != nil {
		return n, fmt.Errorf("%w: gateway %q: %v", ErrConfig, c.GatewayCIDR, err)
	}
	if !prefix.Addr().Is4() || prefix.Bits() > 30 {
		return n, fmt.Errorf("%w: gateway %q must be IPv4 with room for clients", ErrConfig, c.GatewayCIDR)
	}
	n.prefix = prefix
	n.gateway = prefix.Addr()

	n.dhcpStart, err = hostOrDefault(prefix, c.DHCPStart, dhcpFirstHost)
	if err != nil {
		return n, err
	}
	n.dhcpEnd, err = hostOrDefault(prefix, c.DHCPEnd, dhcpLastHost)
	if err != nil {
		return n, err
	}
	if n.dhcpEnd.Less(n.dhcpStart) {
		return n, fmt.Errorf("%w: DHCP range %s-%s is reversed", ErrConfig, n.dhcpStart, n.dhcpEnd)
	}
	return n, nil
}

func hostOrDefault(prefix netip.Prefix, s string, host byte) (netip.Addr, error) {
	var addr netip.Addr
	if s != "" {
		a, err := netip.ParseAddr(s)
		if err != nil {
			return addr, fmt.Errorf("%w: DHCP address %q: %v", ErrConfig, s, err)
		}
		addr = a
	} else {
		b := prefix.Masked().Addr().As4()
		b[3] = host
		addr = netip.AddrFrom4(b)
	}
	if !prefix.Contains(addr) {
		return addr, fmt.Errorf("%w: DHCP address %s outside %s", ErrConfig, addr, prefix.Masked())
	}
	return addr, nil
}

// Validate checks the configuration without touching the system.
func (c Config) Validate() error {
	c.applyDefaults()
	_, err := c.resolve()
	return err
}

// HostapdConfig renders hostapd.conf.
func HostapdConfig(c Config) (string, error) {
	c.applyDefaults()
	if _, err := c.resolve(); err != nil {
		return "", err
	}

	var b strings.Builder
	line := func(k, v string) { b.WriteString(k + "=" + v + "\n") }

	line("interface", c.Interface)
	line("driver", "nl80211")
	line("ssid2", hex.EncodeToString([]byte(c.SSID)))
	line("utf8_ssid", "1")
	line("hw_mode", c.HWMode)
	line("channel", strconv.Itoa(c.Channel))
	if c.CountryCode != "" {
		line("country_code", c.CountryCode)
		line("ieee80211d", "1")
	}
	line("auth_algs", "1")
	line("ignore_broadcast_ssid", "0")
	line("wmm_enabled", "1")
	if c.Passphrase != "" {
		line("wpa", "2")
		line("wpa_key_mgmt", "WPA-PSK")
		line("rsn_pairwise", "CCMP")
		line("wpa_passphrase", c.Passphrase)
	}
	return b.String(), nil
}

// DnsmasqConfig renders dnsmasq.conf: DHCP on the access point network and
// a wildcard DNS answer pointing at the gateway for the captive portal.
func DnsmasqConfig(c Config) (string, error) {
	c.applyDefaults()
	n, err := c.resolve()
	if err != nil {
		return "", err
	}

	mask := netmask(n.prefix.Bits())
	gw := n.gateway.String()

	var b strings.Builder
	line := func(s string) { b.WriteString(s + "\n") }

	line("interface=" + c.Interface)
	line("bind-interfaces")
	line("listen-address=" + gw)
	line("no-resolv")
	line("no-hosts")
	line("dhcp-authoritative")
	line(fmt.Sprintf("dhcp-range=%s,%s,%s,%s", n.dhcpStart, n.dhcpEnd, mask, c.Lease))
	line("dhcp-option=option:router," + gw)
	line("dhcp-option=option:dns-server," + gw)
	line("dhcp-leasefile=" + leaseFile(c))
	line("address=/#/" + gw)
	return b.String(), nil
}

func netmask(bits int) string {
	m := uint32(0xffffffff) << (32 - bits)
	return netip.AddrFrom4([4]byte{byte(m >> 24), byte(m >> 16), byte(m >> 8), byte(m)}).String()
}

func leaseFile(c Config) string {
	return strings.TrimSuffix(c.RuntimeDir, "/") + "/dnsmasq.leases"
}
