package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wifiprov/wifiprov-go/pkg/policy"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestParseOverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
interface: wlp2s0
backend: bus
ap:
  ssid: Setup-1234
  passphrase: provision-me
timeouts:
  connect: 45s
  dhcp: 20s
station:
  dhcp_client: /sbin/udhcpc
policy:
  kind: daemon_if_disconnected
  threshold: 5
log_level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, "wlp2s0", cfg.Interface)
	assert.Equal(t, BackendBus, cfg.Backend)
	assert.Equal(t, "Setup-1234", cfg.AP.SSID)
	assert.Equal(t, 45*time.Second, cfg.Timeouts.Connect)
	assert.Equal(t, 15*time.Second, cfg.Timeouts.Scan, "untouched keys keep defaults")
	assert.Equal(t, "192.168.4.1/24", cfg.AP.GatewayCIDR)
	assert.Equal(t, 20*time.Second, cfg.Timeouts.DHCP)
	assert.Equal(t, "/sbin/udhcpc", cfg.Station.DHCPClient)

	kind, err := cfg.PolicyKind()
	require.NoError(t, err)
	assert.Equal(t, policy.KindDaemonIfDisconnected, kind)
	assert.Equal(t, 5, cfg.Policy.Threshold)

	hs := cfg.Hotspot()
	assert.Equal(t, "wlp2s0", hs.Interface)
	assert.Equal(t, "provision-me", hs.Passphrase)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no interface", func(c *Config) { c.Interface = "" }},
		{"bad backend", func(c *Config) { c.Backend = "nmcli" }},
		{"bad gateway", func(c *Config) { c.AP.GatewayCIDR = "nope" }},
		{"short ap passphrase", func(c *Config) { c.AP.Passphrase = "1234" }},
		{"bad bind", func(c *Config) { c.Web.BindAddr = "localhost" }},
		{"zero port", func(c *Config) { c.Web.BindAddr = ":0" }},
		{"zero scan timeout", func(c *Config) { c.Timeouts.Scan = 0 }},
		{"zero dhcp timeout", func(c *Config) { c.Timeouts.DHCP = 0 }},
		{"negative settle", func(c *Config) { c.Timeouts.Settle = -time.Second }},
		{"bad policy", func(c *Config) { c.Policy.Kind = "sometimes" }},
		{"zero interval", func(c *Config) { c.Policy.Interval = 0 }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestParseRejectsBadYAML(t *testing.T) {
	_, err := Parse([]byte("interface: [unterminated"))
	assert.Error(t, err)

	_, err = Parse([]byte("timeouts:\n  scan: fast\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wifiprov.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: fake\nweb:\n  bind_addr: \":8080\"\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendFake, cfg.Backend)

	port, err := cfg.WebPort()
	require.NoError(t, err)
	assert.Equal(t, uint16(8080), port)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	data, err := Default().Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "connect: 30s")

	cfg, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
