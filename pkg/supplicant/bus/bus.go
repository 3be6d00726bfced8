// Package bus implements supplicant.Transport over the wpa_supplicant D-Bus
// API (fi.w1.wpa_supplicant1).
//
// Scan results are rendered into the control-interface table so callers parse
// one format. Events come from a private bus connection per source, which
// lets a source be dropped and reopened without disturbing commands.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/wifiprov/wifiprov-go/pkg/supplicant"
)

// Bus names.
const (
	Service  = "fi.w1.wpa_supplicant1"
	RootPath = dbus.ObjectPath("/fi/w1/wpa_supplicant1")

	ifaceInterface = Service + ".Interface"
	bssInterface   = Service + ".BSS"

	propertiesInterface = "org.freedesktop.DBus.Properties"
	propertiesChanged   = propertiesInterface + ".PropertiesChanged"
	nameOwnerChanged    = "org.freedesktop.DBus.NameOwnerChanged"
)

// Config configures a bus transport.
type Config struct {
	// Interface is the wireless interface, e.g. "wlan0".
	Interface string

	// Dial opens a private bus connection. Defaults to dbus.ConnectSystemBus.
	Dial func(opts ...dbus.ConnOption) (*dbus.Conn, error)

	// Logger receives debug output. Nil disables it.
	Logger *slog.Logger
}

// Transport talks to one supplicant interface object.
//
// The interface object path is resolved again after a command fails with
// supplicant.ErrDisconnected and whenever events are reopened, since a
// restarted supplicant registers a new object. The failing call is not
// retried.
type Transport struct {
	cfg Config

	mu     sync.Mutex
	conn   *dbus.Conn      // nil after the connection was lost
	path   dbus.ObjectPath // empty until resolved
	closed bool
}

var _ supplicant.Transport = (*Transport)(nil)

// Dial connects to the bus and resolves the interface object.
func Dial(ctx context.Context, cfg Config) (*Transport, error) {
	if cfg.Interface == "" {
		return nil, errors.New("bus: interface required")
	}
	if cfg.Dial == nil {
		cfg.Dial = dbus.ConnectSystemBus
	}

	t := &Transport{cfg: cfg}
	if err := t.resolve(ctx); err != nil {
		if t.conn != nil {
			t.conn.Close()
		}
		return nil, err
	}
	return t, nil
}

// resolve dials the bus if needed and looks up the interface object.
// Callers hold t.mu.
func (t *Transport) resolve(ctx context.Context) error {
	if t.conn == nil {
		conn, err := t.cfg.Dial()
		if err != nil {
			return fmt.Errorf("%w: %v", supplicant.ErrDisconnected, err)
		}
		t.conn = conn
	}

	var path dbus.ObjectPath
	call := t.conn.Object(Service, RootPath).CallWithContext(ctx, Service+".GetInterface", 0, t.cfg.Interface)
	if err := call.Store(&path); err != nil {
		t.path = ""
		if errors.Is(err, dbus.ErrClosed) {
			t.conn = nil
		}
		return mapError(ctx, supplicant.OpPing, err)
	}
	if t.path != "" && t.path != path {
		t.debug("bus: interface object moved", "old", t.path, "new", path)
	}
	t.path = path
	return nil
}

// Path returns the interface object path, or "" while unresolved.
func (t *Transport) Path() dbus.ObjectPath {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.path
}

func (t *Transport) debug(msg string, args ...any) {
	if t.cfg.Logger != nil {
		t.cfg.Logger.Debug(msg, args...)
	}
}

// Send performs one operation.
func (t *Transport) Send(ctx context.Context, cmd supplicant.Command) (supplicant.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return supplicant.Response{}, fmt.Errorf("%w: transport closed", supplicant.ErrDisconnected)
	}
	if t.conn == nil || t.path == "" {
		if err := t.resolve(ctx); err != nil {
			return supplicant.Response{}, err
		}
	}

	resp, err := t.send(ctx, cmd)
	if errors.Is(err, supplicant.ErrDisconnected) {
		t.path = ""
		if t.conn != nil && !t.conn.Connected() {
			t.conn.Close()
			t.conn = nil
		}
	}
	return resp, err
}

func (t *Transport) send(ctx context.Context, cmd supplicant.Command) (supplicant.Response, error) {
	iface := t.conn.Object(Service, t.path)

	switch cmd.Op {
	case supplicant.OpPing:
		err := t.conn.Object(Service, RootPath).CallWithContext(ctx, "org.freedesktop.DBus.Peer.Ping", 0).Err
		if err != nil {
			return supplicant.Response{}, mapError(ctx, cmd.Op, err)
		}
		return supplicant.Response{Raw: "PONG"}, nil

	case supplicant.OpScan:
		args := map[string]dbus.Variant{"Type": dbus.MakeVariant("active")}
		if err := iface.CallWithContext(ctx, ifaceInterface+".Scan", 0, args).Err; err != nil {
			return supplicant.Response{}, mapError(ctx, cmd.Op, err)
		}
		return supplicant.Response{Raw: "OK"}, nil

	case supplicant.OpScanResults:
		table, err := t.scanTable(ctx)
		if err != nil {
			return supplicant.Response{}, mapError(ctx, cmd.Op, err)
		}
		return supplicant.Response{Raw: table}, nil

	case supplicant.OpAddNetwork:
		if len(cmd.Profile.SSID) == 0 {
			return supplicant.Response{}, &supplicant.CommandError{Op: cmd.Op, Reason: "empty SSID"}
		}
		var path dbus.ObjectPath
		err := iface.CallWithContext(ctx, ifaceInterface+".AddNetwork", 0, networkArgs(cmd.Profile)).Store(&path)
		if err != nil {
			return supplicant.Response{}, mapError(ctx, cmd.Op, err)
		}
		return supplicant.Response{Raw: string(path), NetworkID: string(path)}, nil

	case supplicant.OpSelectNetwork, supplicant.OpRemoveNetwork:
		path := dbus.ObjectPath(cmd.NetworkID)
		if !path.IsValid() {
			return supplicant.Response{}, fmt.Errorf("%w: network path %q", supplicant.ErrMalformed, cmd.NetworkID)
		}
		method := ifaceInterface + ".SelectNetwork"
		if cmd.Op == supplicant.OpRemoveNetwork {
			method = ifaceInterface + ".RemoveNetwork"
		}
		if err := iface.CallWithContext(ctx, method, 0, path).Err; err != nil {
			return supplicant.Response{}, mapError(ctx, cmd.Op, err)
		}
		return supplicant.Response{Raw: "OK"}, nil

	case supplicant.OpStatus:
		v, err := getProperty(ctx, iface, ifaceInterface, "State")
		if err != nil {
			return supplicant.Response{}, mapError(ctx, cmd.Op, err)
		}
		state, ok := v.Value().(string)
		if !ok {
			return supplicant.Response{}, fmt.Errorf("%w: State is %s", supplicant.ErrMalformed, v.Signature())
		}
		return supplicant.Response{
			Raw:    "wpa_state=" + state,
			Status: map[string]string{"wpa_state": state},
		}, nil
	}

	return supplicant.Response{}, fmt.Errorf("bus: unsupported operation %s", cmd.Op)
}

// networkArgs builds the AddNetwork dictionary. The supplicant quotes psk
// itself and validates the passphrase length.
func networkArgs(p supplicant.Profile) map[string]dbus.Variant {
	args := map[string]dbus.Variant{
		"ssid":     dbus.MakeVariant(p.SSID),
		"key_mgmt": dbus.MakeVariant(p.KeyMgmt()),
	}
	if p.Passphrase != "" {
		args["psk"] = dbus.MakeVariant(p.Passphrase)
	}
	return args
}

func (t *Transport) scanTable(ctx context.Context) (string, error) {
	v, err := getProperty(ctx, t.conn.Object(Service, t.path), ifaceInterface, "BSSs")
	if err != nil {
		return "", err
	}
	paths, ok := v.Value().([]dbus.ObjectPath)
	if !ok {
		return "", fmt.Errorf("%w: BSSs is %s", supplicant.ErrMalformed, v.Signature())
	}

	var sb strings.Builder
	sb.WriteString(supplicant.ScanTableHeader)
	sb.WriteByte('\n')
	for _, p := range paths {
		var props map[string]dbus.Variant
		err := t.conn.Object(Service, p).CallWithContext(ctx, propertiesInterface+".GetAll", 0, bssInterface).Store(&props)
		if err != nil {
			if ctx.Err() != nil {
				return "", err
			}
			// BSS expired between listing and reading.
			t.debug("bus: skipping BSS", "path", p, "error", err)
			continue
		}
		sb.WriteString(renderBSS(props))
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// OpenEvents opens a private connection subscribed to the interface's
// signals. The interface object is resolved first.
func (t *Transport) OpenEvents(ctx context.Context) (supplicant.EventSource, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: transport closed", supplicant.ErrDisconnected)
	}
	err := t.resolve(ctx)
	path := t.path
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}

	conn, err := t.cfg.Dial()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", supplicant.ErrDisconnected, err)
	}

	matches := [][]dbus.MatchOption{
		{dbus.WithMatchObjectPath(path), dbus.WithMatchInterface(ifaceInterface), dbus.WithMatchMember("ScanDone")},
		{dbus.WithMatchObjectPath(path), dbus.WithMatchInterface(ifaceInterface), dbus.WithMatchMember("PropertiesChanged")},
		{dbus.WithMatchObjectPath(path), dbus.WithMatchInterface(propertiesInterface), dbus.WithMatchMember("PropertiesChanged")},
		{dbus.WithMatchInterface("org.freedesktop.DBus"), dbus.WithMatchMember("NameOwnerChanged"), dbus.WithMatchArg(0, Service)},
	}
	for _, m := range matches {
		if err := conn.AddMatchSignalContext(ctx, m...); err != nil {
			conn.Close()
			return nil, mapError(ctx, supplicant.OpPing, err)
		}
	}

	ch := make(chan *dbus.Signal, 32)
	conn.Signal(ch)
	return &eventSource{conn: conn, ch: ch, path: path}, nil
}

// Close closes the command connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}

type eventSource struct {
	conn *dbus.Conn
	ch   chan *dbus.Signal
	path dbus.ObjectPath
	once sync.Once
}

func (s *eventSource) Receive() (supplicant.Event, error) {
	for sig := range s.ch {
		if sig == nil {
			continue
		}
		ev, lost := classifySignal(sig, s.path)
		if lost {
			return supplicant.Event{}, fmt.Errorf("%w: %s left the bus", supplicant.ErrDisconnected, Service)
		}
		return ev, nil
	}
	return supplicant.Event{}, fmt.Errorf("%w: bus connection closed", supplicant.ErrDisconnected)
}

// Close closes the private connection, which closes the signal channel.
func (s *eventSource) Close() error {
	var err error
	s.once.Do(func() {
		err = s.conn.Close()
	})
	return err
}

func getProperty(ctx context.Context, obj dbus.BusObject, iface, name string) (dbus.Variant, error) {
	var v dbus.Variant
	err := obj.CallWithContext(ctx, propertiesInterface+".Get", 0, iface, name).Store(&v)
	return v, err
}

// mapError translates bus and context failures into transport errors.
func mapError(ctx context.Context, op supplicant.Op, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %v", supplicant.ErrTimeout, op, err)
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, dbus.ErrClosed):
		return fmt.Errorf("%w: %v", supplicant.ErrDisconnected, err)
	}

	name, reason, ok := errorName(err)
	if !ok {
		return fmt.Errorf("bus: %s: %w", op, err)
	}

	switch {
	case strings.HasPrefix(name, Service):
		return &supplicant.CommandError{Op: op, Reason: strings.TrimSpace(name + " " + reason)}
	case name == "org.freedesktop.DBus.Error.NoReply", name == "org.freedesktop.DBus.Error.Timeout":
		return fmt.Errorf("%w: %s: %s", supplicant.ErrTimeout, op, name)
	case name == "org.freedesktop.DBus.Error.ServiceUnknown",
		name == "org.freedesktop.DBus.Error.NameHasNoOwner",
		name == "org.freedesktop.DBus.Error.UnknownObject",
		name == "org.freedesktop.DBus.Error.Disconnected":
		return fmt.Errorf("%w: %s", supplicant.ErrDisconnected, name)
	case name == "org.freedesktop.DBus.Error.InvalidArgs":
		return &supplicant.CommandError{Op: op, Reason: strings.TrimSpace(name + " " + reason)}
	}
	return fmt.Errorf("bus: %s: %w", op, err)
}

func errorName(err error) (name, reason string, ok bool) {
	var de dbus.Error
	if errors.As(err, &de) {
		return de.Name, bodyText(de.Body), true
	}
	var dp *dbus.Error
	if errors.As(err, &dp) {
		return dp.Name, bodyText(dp.Body), true
	}
	return "", "", false
}

func bodyText(body []interface{}) string {
	if len(body) == 0 {
		return ""
	}
	if s, ok := body[0].(string); ok {
		return s
	}
	return ""
}
