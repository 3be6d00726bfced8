// Package config loads the daemon configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wifiprov/wifiprov-go/pkg/hotspot"
	"github.com/wifiprov/wifiprov-go/pkg/policy"
)

// Backends.
const (
	BackendCtrl = "ctrl"
	BackendBus  = "bus"
	BackendFake = "fake"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the daemon configuration.
type Config struct {
	Interface string         `yaml:"interface"`
	Backend   string         `yaml:"backend"`
	Ctrl      CtrlConfig     `yaml:"ctrl"`
	AP        APConfig       `yaml:"ap"`
	Web       WebConfig      `yaml:"web"`
	Timeouts  TimeoutsConfig `yaml:"timeouts"`
	Policy    PolicyConfig   `yaml:"policy"`
	MDNS      MDNSConfig     `yaml:"mdns"`
	Station   StationConfig  `yaml:"station"`

	// StateFile holds the session history. Empty disables it.
	StateFile string `yaml:"state_file"`

	// TraceFile receives the binary protocol trace. Empty disables it.
	TraceFile string `yaml:"trace_file"`

	LogLevel string `yaml:"log_level"`
}

// CtrlConfig locates the supplicant control sockets.
type CtrlConfig struct {
	Dir      string `yaml:"dir"`
	LocalDir string `yaml:"local_dir"`
}

// APConfig describes the provisioning access point.
type APConfig struct {
	SSID        string `yaml:"ssid"`
	Passphrase  string `yaml:"passphrase"`
	GatewayCIDR string `yaml:"gateway_cidr"`
	Channel     int    `yaml:"channel"`
	CountryCode string `yaml:"country_code"`
	DHCPStart   string `yaml:"dhcp_start"`
	DHCPEnd     string `yaml:"dhcp_end"`
	Lease       string `yaml:"lease"`
	Hostapd     string `yaml:"hostapd"`
	Dnsmasq     string `yaml:"dnsmasq"`
	RuntimeDir  string `yaml:"runtime_dir"`
}

// WebConfig is where the portal listens. The core does not serve HTTP; the
// address is advertised over mDNS.
type WebConfig struct {
	BindAddr string `yaml:"bind_addr"`
	Path     string `yaml:"path"`
}

// TimeoutsConfig bounds every wait. Values are Go duration strings.
type TimeoutsConfig struct {
	Command   time.Duration `yaml:"command"`
	Scan      time.Duration `yaml:"scan"`
	Connect   time.Duration `yaml:"connect"`
	Settle    time.Duration `yaml:"settle"`
	Restore   time.Duration `yaml:"restore"`
	Reconnect time.Duration `yaml:"reconnect"`
	DHCP      time.Duration `yaml:"dhcp"`
}

// PolicyConfig selects when provisioning starts.
type PolicyConfig struct {
	Kind      string        `yaml:"kind"`
	Interval  time.Duration `yaml:"interval"`
	Threshold int           `yaml:"threshold"`
}

// StationConfig controls what happens after joining the target network.
type StationConfig struct {
	// DHCPClient is the udhcpc-compatible client run after association.
	// Empty disables it.
	DHCPClient string `yaml:"dhcp_client"`
}

// MDNSConfig controls the portal advertisement.
type MDNSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Interface: "wlan0",
		Backend:   BackendCtrl,
		Ctrl: CtrlConfig{
			Dir: "/var/run/wpa_supplicant",
		},
		AP: APConfig{
			SSID:        "Wi-Fi Setup",
			GatewayCIDR: "192.168.4.1/24",
			Channel:     hotspot.DefaultChannel,
			Lease:       hotspot.DefaultLease,
			Hostapd:     hotspot.DefaultHostapd,
			Dnsmasq:     hotspot.DefaultDnsmasq,
			RuntimeDir:  hotspot.DefaultRuntimeDir,
		},
		Web: WebConfig{
			BindAddr: "0.0.0.0:80",
			Path:     "/",
		},
		Timeouts: TimeoutsConfig{
			Command:   5 * time.Second,
			Scan:      15 * time.Second,
			Connect:   30 * time.Second,
			Settle:    time.Second,
			Restore:   15 * time.Second,
			Reconnect: 2 * time.Second,
			DHCP:      15 * time.Second,
		},
		Policy: PolicyConfig{
			Kind:      "on_start",
			Interval:  10 * time.Second,
			Threshold: policy.DefaultThreshold,
		},
		MDNS: MDNSConfig{
			Enabled:  true,
			Instance: "Wi-Fi Setup",
		},
		Station: StationConfig{
			DHCPClient: "udhcpc",
		},
		StateFile: "/var/lib/wifiprov/sessions.json",
		LogLevel:  "info",
	}
}

// Parse reads YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Interface == "" {
		return fmt.Errorf("%w: interface is required", ErrInvalid)
	}
	switch c.Backend {
	case BackendCtrl, BackendBus, BackendFake:
	default:
		return fmt.Errorf("%w: backend %q (want ctrl, bus or fake)", ErrInvalid, c.Backend)
	}
	if err := c.Hotspot().Validate(); err != nil {
		return fmt.Errorf("%w: ap: %v", ErrInvalid, err)
	}
	if _, err := c.WebPort(); err != nil {
		return fmt.Errorf("%w: web.bind_addr: %v", ErrInvalid, err)
	}

	t := c.Timeouts
	for name, d := range map[string]time.Duration{
		"command":   t.Command,
		"scan":      t.Scan,
		"connect":   t.Connect,
		"restore":   t.Restore,
		"reconnect": t.Reconnect,
		"dhcp":      t.DHCP,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: timeouts.%s must be positive", ErrInvalid, name)
		}
	}
	if t.Settle < 0 {
		return fmt.Errorf("%w: timeouts.settle must not be negative", ErrInvalid)
	}

	if _, err := c.PolicyKind(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Policy.Interval <= 0 {
		return fmt.Errorf("%w: policy.interval must be positive", ErrInvalid)
	}
	if c.Policy.Threshold < 0 {
		return fmt.Errorf("%w: policy.threshold must not be negative", ErrInvalid)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Hotspot returns the access point settings.
func (c *Config) Hotspot() hotspot.Config {
	return hotspot.Config{
		Interface:   c.Interface,
		SSID:        c.AP.SSID,
		Passphrase:  c.AP.Passphrase,
		GatewayCIDR: c.AP.GatewayCIDR,
		Channel:     c.AP.Channel,
		CountryCode: c.AP.CountryCode,
		DHCPStart:   c.AP.DHCPStart,
		DHCPEnd:     c.AP.DHCPEnd,
		Lease:       c.AP.Lease,
		HostapdPath: c.AP.Hostapd,
		DnsmasqPath: c.AP.Dnsmasq,
		RuntimeDir:  c.AP.RuntimeDir,
	}
}

// PolicyKind parses policy.kind.
func (c *Config) PolicyKind() (policy.Kind, error) {
	return policy.ParseKind(c.Policy.Kind)
}

// WebPort returns the port of web.bind_addr.
func (c *Config) WebPort() (uint16, error) {
	_, port, err := net.SplitHostPort(c.Web.BindAddr)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(port, 10, 16)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid port %q", port)
	}
	return uint16(n), nil
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}
