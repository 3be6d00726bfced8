// Package interactive provides the operator console of wifiprov.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/chzyer/readline"
	"github.com/dustin/go-humanize"

	"github.com/wifiprov/wifiprov-go/pkg/connect"
	"github.com/wifiprov/wifiprov-go/pkg/discovery"
	"github.com/wifiprov/wifiprov-go/pkg/provisioner"
	"github.com/wifiprov/wifiprov-go/pkg/supplicant"
)

// browseWindow bounds the "browse" command.
const browseWindow = 3 * time.Second

// Console is a readline command loop over a provisioning service.
type Console struct {
	svc  *provisioner.Service
	rl   *readline.Instance
	apQR *discovery.WiFiQR
}

// New creates the console. The access point credentials feed the "qr"
// command.
func New(apSSID, apPassphrase string) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "wifiprov> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	qr, err := discovery.NewWiFiQR(apSSID, apPassphrase)
	if err != nil {
		rl.Close()
		return nil, err
	}
	return &Console{rl: rl, apQR: qr}, nil
}

// Stdout returns a writer that keeps the prompt intact.
func (c *Console) Stdout() io.Writer { return c.rl.Stdout() }

// Stderr returns a writer that keeps the prompt intact. Use it for logs.
func (c *Console) Stderr() io.Writer { return c.rl.Stderr() }

// Attach sets the service the commands act on.
func (c *Console) Attach(svc *provisioner.Service) {
	c.svc = svc
	svc.OnConnectPhase(func(_, p connect.Phase) {
		fmt.Fprintf(c.rl.Stdout(), "  [connect] %s\n", p)
	})
}

// Run reads commands until quit, EOF or ctx ends.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		args, err := splitArgs(line)
		if err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		cmd := strings.ToLower(args[0])
		args = args[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()
		case "status", "st":
			c.cmdStatus()
		case "enter":
			c.cmdEnter(ctx)
		case "exit-prov", "leave":
			c.cmdLeave(ctx)
		case "scan", "s":
			c.cmdScan(ctx)
		case "connect", "c":
			c.cmdConnect(ctx, args)
		case "qr":
			fmt.Fprintln(c.rl.Stdout(), c.apQR.String())
		case "browse":
			c.cmdBrowse(ctx, args)
		case "quit", "exit", "q":
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
wifiprov Commands:
  Provisioning:
    enter                        - Scan and start the setup access point
    leave                        - End the session and stop the access point
    scan                         - List the networks captured at entry
    connect <ssid> [passphrase]  - Join a network (quote names with spaces)

  Information:
    status                       - Access point, listener and session state
    qr                           - Wi-Fi join payload for the access point
    browse [ssid]                - Look for provisioning portals over mDNS

  General:
    help                         - Show this help
    quit                         - Exit`)
}

func (c *Console) cmdStatus() {
	out := c.rl.Stdout()
	fmt.Fprintf(out, "Access point: %s\n", c.svc.Status())
	fmt.Fprintf(out, "Supplicant events: %s\n", c.svc.Listener().State())

	info, ok := c.svc.Session()
	if !ok {
		fmt.Fprintln(out, "Session: none")
		return
	}
	fmt.Fprintf(out, "Session: %s (started %s)\n", info.ID, humanize.Time(info.StartedAt))
	fmt.Fprintf(out, "  networks: %d, attempts: %d\n", info.Networks, info.Attempts)
	if info.ScanError != "" {
		fmt.Fprintf(out, "  scan error: %s\n", info.ScanError)
	}
}

func (c *Console) cmdEnter(ctx context.Context) {
	info, err := c.svc.EnterProvisioning(ctx)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Provisioning active: session %s, %d networks\n", info.ID, info.Networks)
}

func (c *Console) cmdLeave(ctx context.Context) {
	if err := c.svc.ExitProvisioning(ctx); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintln(c.rl.Stdout(), "Provisioning ended")
}

func (c *Console) cmdScan(ctx context.Context) {
	records, err := c.svc.Scan(ctx)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprint(c.rl.Stdout(), formatNetworks(records))
}

func (c *Console) cmdConnect(ctx context.Context, args []string) {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: connect <ssid> [passphrase]")
		return
	}
	req := connect.Request{SSID: args[0]}
	if len(args) == 2 {
		req.Passphrase = args[1]
	}

	res, err := c.svc.ConnectResult(ctx, req)
	out := c.rl.Stdout()
	if err != nil {
		fmt.Fprintf(out, "Connect failed: %v\n", err)
		if res.Restored {
			fmt.Fprintln(out, "Access point restored")
		}
		return
	}
	fmt.Fprintf(out, "Connected to %q in %s\n", res.SSID, res.Duration.Round(time.Millisecond))
}

func (c *Console) cmdBrowse(ctx context.Context, args []string) {
	ctx, cancel := context.WithTimeout(ctx, browseWindow)
	defer cancel()

	browser := discovery.NewMDNSBrowser(discovery.BrowserConfig{})
	out := c.rl.Stdout()

	if len(args) == 1 {
		portal, err := browser.FindPortal(ctx, args[0])
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return
		}
		fmt.Fprintf(out, "%s  %s\n", portal.InstanceName, portal.URL())
		return
	}

	found, err := browser.BrowsePortals(ctx)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	n := 0
	for portal := range found {
		n++
		fmt.Fprintf(out, "%s  ssid=%s  %s\n", portal.InstanceName, portal.SSID, portal.URL())
	}
	fmt.Fprintf(out, "%d portal(s) found\n", n)
}

// formatNetworks renders records as an aligned table.
func formatNetworks(records []supplicant.NetworkRecord) string {
	if len(records) == 0 {
		return "No networks\n"
	}
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SSID\tSIGNAL\tSECURITY")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%d%% (%d dBm)\t%s\n", r.DisplaySSID(), r.SignalPercent(), r.Signal, r.Security)
	}
	tw.Flush()
	fmt.Fprintf(&b, "%s network(s)\n", humanize.Comma(int64(len(records))))
	return b.String()
}

// splitArgs splits a console line on spaces, keeping double-quoted runs
// together.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		quoted  bool
		pending bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
			pending = true
		case (r == ' ' || r == '\t') && !quoted:
			if pending {
				args = append(args, cur.String())
				cur.Reset()
				pending = false
			}
		default:
			cur.WriteRune(r)
			pending = true
		}
	}
	if quoted {
		return nil, errors.New("unterminated quote")
	}
	if pending {
		args = append(args, cur.String())
	}
	return args, nil
}
