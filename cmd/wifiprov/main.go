// Command wifiprov runs the Wi-Fi provisioning daemon.
//
// When the policy asks for it, the daemon scans once, brings up a setup
// access point with DHCP and captive DNS, advertises the portal over mDNS,
// and waits for a network to be chosen through the web layer or the
// interactive console.
//
// Usage:
//
//	wifiprov [flags]
//
// Flags:
//
//	-c, --config string      Configuration file (YAML)
//	-i, --interface string   Wireless interface (overrides config)
//	    --backend string     Supplicant backend: ctrl, bus, fake
//	    --log-level string   Log level: debug, info, warn, error
//	    --trace string       Binary trace file (overrides config)
//	    --interactive        Start the interactive console
//	    --print-config       Print the effective configuration and exit
//
// Examples:
//
//	# Run with the control socket backend and default settings
//	wifiprov -c /etc/wifiprov/wifiprov.yaml
//
//	# Try the console without a radio
//	wifiprov --backend fake --interactive --log-level debug
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/wifiprov/wifiprov-go/cmd/wifiprov/interactive"
	"github.com/wifiprov/wifiprov-go/pkg/config"
	"github.com/wifiprov/wifiprov-go/pkg/connect"
	"github.com/wifiprov/wifiprov-go/pkg/discovery"
	"github.com/wifiprov/wifiprov-go/pkg/hotspot"
	hsfake "github.com/wifiprov/wifiprov-go/pkg/hotspot/fake"
	"github.com/wifiprov/wifiprov-go/pkg/log"
	"github.com/wifiprov/wifiprov-go/pkg/persistence"
	"github.com/wifiprov/wifiprov-go/pkg/policy"
	"github.com/wifiprov/wifiprov-go/pkg/provisioner"
	"github.com/wifiprov/wifiprov-go/pkg/supplicant"
	"github.com/wifiprov/wifiprov-go/pkg/supplicant/bus"
	"github.com/wifiprov/wifiprov-go/pkg/supplicant/ctrl"
	"github.com/wifiprov/wifiprov-go/pkg/supplicant/fake"
)

// Options are the command-line flags.
type Options struct {
	ConfigFile  string
	Interface   string
	Backend     string
	LogLevel    string
	TraceFile   string
	Interactive bool
	PrintConfig bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "wifiprov: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var opts Options
	fs := flag.NewFlagSet("wifiprov", flag.ContinueOnError)
	fs.StringVarP(&opts.ConfigFile, "config", "c", "", "Configuration file (YAML)")
	fs.StringVarP(&opts.Interface, "interface", "i", "", "Wireless interface (overrides config)")
	fs.StringVar(&opts.Backend, "backend", "", "Supplicant backend: ctrl, bus, fake")
	fs.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&opts.TraceFile, "trace", "", "Binary trace file (overrides config)")
	fs.BoolVar(&opts.Interactive, "interactive", false, "Start the interactive console")
	fs.BoolVar(&opts.PrintConfig, "print-config", false, "Print the effective configuration and exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if opts.PrintConfig {
		out, err := cfg.Marshal()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var console *interactive.Console
	var logOut io.Writer = os.Stderr
	if opts.Interactive {
		console, err = interactive.New(cfg.AP.SSID, cfg.AP.Passphrase)
		if err != nil {
			return err
		}
		logOut = console.Stderr()
	}

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))

	trace, closeTrace, err := openTrace(cfg, logger)
	if err != nil {
		return err
	}
	defer closeTrace()

	svc, err := build(ctx, cfg, logger, trace)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()
	svc.OnEvent(func(ev provisioner.Event) {
		logger.Info("provisioning event",
			"event", ev.Type.String(),
			"session", ev.SessionID,
			"ssid", ev.SSID,
			"outcome", ev.Outcome)
	})

	if err := svc.Start(ctx); err != nil {
		return err
	}

	kind, err := cfg.PolicyKind()
	if err != nil {
		return err
	}
	pol, err := policy.New(kind, svc, cfg.Policy.Threshold, logger)
	if err != nil {
		return err
	}
	logger.Info("wifiprov running",
		"interface", cfg.Interface,
		"backend", cfg.Backend,
		"policy", kind.String(),
		"ap_ssid", cfg.AP.SSID)

	go func() {
		if err := svc.Run(ctx, pol, cfg.Policy.Interval); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("policy loop stopped", "error", err)
		}
	}()

	if console != nil {
		console.Attach(svc)
		console.Run(ctx, cancel)
	} else {
		<-ctx.Done()
	}
	logger.Info("shutting down")
	return nil
}

func loadConfig(opts Options) (*config.Config, error) {
	cfg := config.Default()
	if opts.ConfigFile != "" {
		loaded, err := config.Load(opts.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if opts.Interface != "" {
		cfg.Interface = opts.Interface
	}
	if opts.Backend != "" {
		cfg.Backend = opts.Backend
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if opts.TraceFile != "" {
		cfg.TraceFile = opts.TraceFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openTrace sends trace events to the debug log and, when configured, to the
// binary trace file.
func openTrace(cfg *config.Config, logger *slog.Logger) (log.Logger, func(), error) {
	adapter := log.NewSlogAdapter(logger)
	if cfg.TraceFile == "" {
		return adapter, func() {}, nil
	}
	file, err := log.NewFileLogger(cfg.TraceFile)
	if err != nil {
		return nil, nil, fmt.Errorf("open trace file: %w", err)
	}
	logger.Info("tracing to file", "path", file.Path())
	return log.NewMultiLogger(adapter, file), func() { file.Close() }, nil
}

func build(ctx context.Context, cfg *config.Config, logger *slog.Logger, trace log.Logger) (*provisioner.Service, error) {
	transport, err := dialBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	hsCfg := cfg.Hotspot()
	hsCfg.Logger = logger
	hsCfg.Trace = trace
	var (
		launcher  hotspot.Launcher
		addresser hotspot.Addresser
	)
	if cfg.Backend == config.BackendFake {
		launcher, addresser = hsfake.NewLauncher(), hsfake.NewAddresser()
	}
	ap, err := hotspot.NewManager(hsCfg, launcher, addresser)
	if err != nil {
		transport.Close()
		return nil, err
	}

	pcfg := provisioner.Config{
		Interface:         cfg.Interface,
		CommandTimeout:    cfg.Timeouts.Command,
		ScanTimeout:       cfg.Timeouts.Scan,
		ConnectTimeout:    cfg.Timeouts.Connect,
		SettleDelay:       cfg.Timeouts.Settle,
		RestoreTimeout:    cfg.Timeouts.Restore,
		ReconnectInterval: cfg.Timeouts.Reconnect,
		DHCPTimeout:       cfg.Timeouts.DHCP,
		Logger:            logger,
		Trace:             trace,
	}
	switch {
	case cfg.Backend == config.BackendFake:
		pcfg.DHCP = fake.NewDHCP()
	case cfg.Station.DHCPClient != "":
		pcfg.DHCP = connect.UDHCPC{Path: cfg.Station.DHCPClient}
	}
	if cfg.StateFile != "" {
		pcfg.Store = persistence.NewSessionStore(cfg.StateFile, 0)
	}
	if cfg.MDNS.Enabled && cfg.Backend != config.BackendFake {
		announcer, err := newAnnouncer(cfg, logger)
		if err != nil {
			logger.Warn("mDNS disabled", "error", err)
		} else {
			pcfg.Announcer = announcer
		}
	}
	return provisioner.New(transport, ap, pcfg), nil
}

func dialBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (supplicant.Transport, error) {
	switch cfg.Backend {
	case config.BackendCtrl:
		return ctrl.Dial(ctrl.Config{
			Interface: cfg.Interface,
			Dir:       cfg.Ctrl.Dir,
			LocalDir:  cfg.Ctrl.LocalDir,
			Logger:    logger,
		})
	case config.BackendBus:
		return bus.Dial(ctx, bus.Config{Interface: cfg.Interface, Logger: logger})
	case config.BackendFake:
		logger.Warn("using the simulated supplicant; no radio is touched")
		return demoRadio().T, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func newAnnouncer(cfg *config.Config, logger *slog.Logger) (*discovery.Announcer, error) {
	port, err := cfg.WebPort()
	if err != nil {
		return nil, err
	}
	adv, err := discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{
		Interface: cfg.Interface,
		TTL:       discovery.DefaultTTL,
	})
	if err != nil {
		return nil, err
	}
	base := discovery.PortalInfo{
		Instance: cfg.MDNS.Instance,
		Port:     port,
		Path:     cfg.Web.Path,
		SSID:     cfg.AP.SSID,
	}
	return discovery.NewAnnouncer(adv, base, logger), nil
}

// demoRadio is the simulated supplicant behind --backend fake. HomeNet
// accepts "correct-horse".
func demoRadio() *fake.Radio {
	table := supplicant.ScanTableHeader + "\n" +
		"02:00:00:00:01:01\t2437\t-48\t[WPA2-PSK-CCMP][ESS]\tHomeNet\n" +
		"02:00:00:00:01:02\t2412\t-67\t[WPA-PSK-TKIP][WPA2-PSK-CCMP][ESS]\tNeighbour\n" +
		"02:00:00:00:01:03\t5180\t-81\t[ESS]\tCafe Guest\n"
	return fake.NewRadio(map[string]string{"HomeNet": "correct-horse", "Cafe Guest": ""}, table)
}
