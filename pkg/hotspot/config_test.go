package hotspot_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wifiprov/wifiprov-go/pkg/hotspot"
)

func baseConfig() hotspot.Config {
	return hotspot.Config{
		Interface:   "wlan0",
		SSID:        "Setup-1234",
		GatewayCIDR: "192.168.4.1/24",
	}
}

func TestHostapdConfigOpen(t *testing.T) {
	conf, err := hotspot.HostapdConfig(baseConfig())
	require.NoError(t, err)

	assert.Contains(t, conf, "interface=wlan0\n")
	assert.Contains(t, conf, "ssid2=53657475702d31323334\n")
	assert.Contains(t, conf, "hw_mode=g\n")
	assert.Contains(t, conf, "channel=6\n")
	assert.NotContains(t, conf, "wpa=")
	assert.NotContains(t, conf, "country_code")
}

func TestHostapdConfigSecured(t *testing.T) {
	cfg := baseConfig()
	cfg.Passphrase = "provision-me"
	cfg.Channel = 11
	cfg.CountryCode = "DE"

	conf, err := hotspot.HostapdConfig(cfg)
	require.NoError(t, err)

	assert.Contains(t, conf, "channel=11\n")
	assert.Contains(t, conf, "country_code=DE\n")
	assert.Contains(t, conf, "wpa=2\n")
	assert.Contains(t, conf, "wpa_key_mgmt=WPA-PSK\n")
	assert.Contains(t, conf, "wpa_passphrase=provision-me\n")
}

func TestDnsmasqConfig(t *testing.T) {
	cfg := baseConfig()
	cfg.RuntimeDir = "/tmp/wp"

	conf, err := hotspot.DnsmasqConfig(cfg)
	require.NoError(t, err)

	for _, want := range []string{
		"interface=wlan0",
		"bind-interfaces",
		"listen-address=192.168.4.1",
		"no-resolv",
		"no-hosts",
		"dhcp-range=192.168.4.100,192.168.4.200,255.255.255.0,12h",
		"dhcp-option=option:router,192.168.4.1",
		"dhcp-leasefile=/tmp/wp/dnsmasq.leases",
		"address=/#/192.168.4.1",
	} {
		assert.Contains(t, strings.Split(conf, "\n"), want)
	}
}

func TestDnsmasqConfigExplicitRange(t *testing.T) {
	cfg := baseConfig()
	cfg.GatewayCIDR = "10.0.0.1/16"
	cfg.DHCPStart = "10.0.1.10"
	cfg.DHCPEnd = "10.0.1.50"
	cfg.Lease = "1h"

	conf, err := hotspot.DnsmasqConfig(cfg)
	require.NoError(t, err)
	assert.Contains(t, conf, "dhcp-range=10.0.1.10,10.0.1.50,255.255.0.0,1h\n")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*hotspot.Config)
	}{
		{"no interface", func(c *hotspot.Config) { c.Interface = "" }},
		{"empty SSID", func(c *hotspot.Config) { c.SSID = "" }},
		{"long SSID", func(c *hotspot.Config) { c.SSID = strings.Repeat("a", 33) }},
		{"short passphrase", func(c *hotspot.Config) { c.Passphrase = "short" }},
		{"passphrase newline", func(c *hotspot.Config) { c.Passphrase = "abc\ndefghi" }},
		{"bad gateway", func(c *hotspot.Config) { c.GatewayCIDR = "192.168.4.1" }},
		{"ipv6 gateway", func(c *hotspot.Config) { c.GatewayCIDR = "fd00::1/64" }},
		{"tiny prefix", func(c *hotspot.Config) { c.GatewayCIDR = "192.168.4.1/31" }},
		{"range outside", func(c *hotspot.Config) { c.DHCPStart = "192.168.5.10" }},
		{"reversed range", func(c *hotspot.Config) {
			c.DHCPStart = "192.168.4.150"
			c.DHCPEnd = "192.168.4.120"
		}},
		{"default range outside prefix", func(c *hotspot.Config) { c.GatewayCIDR = "192.168.4.1/26" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, hotspot.ErrConfig) {
				t.Errorf("Validate() = %v, want ErrConfig", err)
			}
		})
	}

	if err := baseConfig().Validate(); err != nil {
		t.Errorf("Validate() on base config = %v", err)
	}
}
