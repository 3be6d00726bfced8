package ctrl

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/wifiprov/wifiprov-go/pkg/supplicant"
)

// Default locations.
const (
	DefaultDir = "/var/run/wpa_supplicant"

	// DefaultIdleProbe is how long an event socket may stay silent before
	// the supplicant is pinged.
	DefaultIdleProbe = 10 * time.Second

	// maxDatagram bounds one reply; scan tables are the largest.
	maxDatagram = 64 * 1024
)

// Config configures a control-socket transport.
type Config struct {
	// Interface is the wireless interface, e.g. "wlan0".
	Interface string

	// Dir is the supplicant control directory. Defaults to DefaultDir.
	Dir string

	// LocalDir holds the client sockets. Defaults to os.TempDir().
	LocalDir string

	// IdleProbe overrides DefaultIdleProbe.
	IdleProbe time.Duration

	// Logger receives debug output. Nil discards.
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.Dir == "" {
		c.Dir = DefaultDir
	}
	if c.LocalDir == "" {
		c.LocalDir = os.TempDir()
	}
	if c.IdleProbe <= 0 {
		c.IdleProbe = DefaultIdleProbe
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// Transport is a control-socket connection to one interface.
//
// A command that fails with supplicant.ErrDisconnected drops the socket and
// the next Send dials a new one, so a restarted supplicant is picked up
// without re-creating the Transport. The failing call is not retried.
type Transport struct {
	cfg Config

	mu     sync.Mutex
	sock   *socket // nil after a disconnect until the next Send
	closed bool
}

// Compile-time interface check.
var _ supplicant.Transport = (*Transport)(nil)

// Dial connects to the control socket of cfg.Interface.
func Dial(cfg Config) (*Transport, error) {
	if cfg.Interface == "" {
		return nil, errors.New("ctrl: interface required")
	}
	cfg.applyDefaults()

	sock, err := openSocket(cfg)
	if err != nil {
		return nil, err
	}
	return &Transport{cfg: cfg, sock: sock}, nil
}

// Send performs one logical operation. OpAddNetwork issues several requests
// and removes the half-configured network if any of them fails.
func (t *Transport) Send(ctx context.Context, cmd supplicant.Command) (supplicant.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return supplicant.Response{}, fmt.Errorf("%w: transport closed", supplicant.ErrDisconnected)
	}
	if t.sock == nil {
		sock, err := openSocket(t.cfg)
		if err != nil {
			return supplicant.Response{}, err
		}
		t.cfg.Logger.Debug("ctrl: command socket re-dialed", "interface", t.cfg.Interface)
		t.sock = sock
	}

	resp, err := t.send(ctx, cmd)
	if errors.Is(err, supplicant.ErrDisconnected) {
		_ = t.sock.close()
		t.sock = nil
	}
	return resp, err
}

func (t *Transport) send(ctx context.Context, cmd supplicant.Command) (supplicant.Response, error) {
	switch cmd.Op {
	case supplicant.OpPing:
		reply, err := t.sock.request(ctx, "PING")
		if err != nil {
			return supplicant.Response{}, err
		}
		if reply != "PONG" {
			return supplicant.Response{}, fmt.Errorf("%w: PING answered %q", supplicant.ErrMalformed, reply)
		}
		return supplicant.Response{Raw: reply}, nil

	case supplicant.OpScan:
		return t.expectOK(ctx, cmd.Op, "SCAN")

	case supplicant.OpScanResults:
		reply, err := t.sock.request(ctx, "SCAN_RESULTS")
		if err != nil {
			return supplicant.Response{}, err
		}
		if isFail(reply) {
			return supplicant.Response{}, &supplicant.CommandError{Op: cmd.Op, Reason: reply}
		}
		return supplicant.Response{Raw: reply}, nil

	case supplicant.OpAddNetwork:
		return t.addNetwork(ctx, cmd.Profile)

	case supplicant.OpSelectNetwork:
		if err := checkID(cmd.NetworkID); err != nil {
			return supplicant.Response{}, err
		}
		return t.expectOK(ctx, cmd.Op, "SELECT_NETWORK "+cmd.NetworkID)

	case supplicant.OpRemoveNetwork:
		if err := checkID(cmd.NetworkID); err != nil {
			return supplicant.Response{}, err
		}
		return t.expectOK(ctx, cmd.Op, "REMOVE_NETWORK "+cmd.NetworkID)

	case supplicant.OpStatus:
		reply, err := t.sock.request(ctx, "STATUS")
		if err != nil {
			return supplicant.Response{}, err
		}
		if isFail(reply) {
			return supplicant.Response{}, &supplicant.CommandError{Op: cmd.Op, Reason: reply}
		}
		status := supplicant.ParseStatus(reply)
		if _, ok := status["wpa_state"]; !ok {
			return supplicant.Response{}, fmt.Errorf("%w: STATUS without wpa_state", supplicant.ErrMalformed)
		}
		return supplicant.Response{Raw: reply, Status: status}, nil
	}

	return supplicant.Response{}, fmt.Errorf("ctrl: unsupported operation %s", cmd.Op)
}

func (t *Transport) expectOK(ctx context.Context, op supplicant.Op, text string) (supplicant.Response, error) {
	reply, err := t.sock.request(ctx, text)
	if err != nil {
		return supplicant.Response{}, err
	}
	switch {
	case reply == "OK":
		return supplicant.Response{Raw: reply}, nil
	case isFail(reply):
		return supplicant.Response{}, &supplicant.CommandError{Op: op, Reason: reply}
	default:
		return supplicant.Response{}, fmt.Errorf("%w: %s answered %q", supplicant.ErrMalformed, op, reply)
	}
}

func (t *Transport) addNetwork(ctx context.Context, p supplicant.Profile) (supplicant.Response, error) {
	if len(p.SSID) == 0 {
		return supplicant.Response{}, &supplicant.CommandError{Op: supplicant.OpAddNetwork, Reason: "empty SSID"}
	}

	reply, err := t.sock.request(ctx, "ADD_NETWORK")
	if err != nil {
		return supplicant.Response{}, err
	}
	if isFail(reply) {
		return supplicant.Response{}, &supplicant.CommandError{Op: supplicant.OpAddNetwork, Reason: reply}
	}
	id := reply
	if checkID(id) != nil {
		return supplicant.Response{}, fmt.Errorf("%w: ADD_NETWORK answered %q", supplicant.ErrMalformed, reply)
	}

	settings := [][2]string{
		{"ssid", hex.EncodeToString(p.SSID)},
		{"key_mgmt", p.KeyMgmt()},
	}
	if psk := p.RawPSK(); psk != "" {
		settings = append(settings, [2]string{"psk", psk})
	}

	for _, kv := range settings {
		if _, err := t.expectOK(ctx, supplicant.OpAddNetwork, "SET_NETWORK "+id+" "+kv[0]+" "+kv[1]); err != nil {
			t.cfg.Logger.Debug("ctrl: SET_NETWORK failed, removing network", "id", id, "field", kv[0], "error", err)
			_, _ = t.sock.request(context.WithoutCancel(ctx), "REMOVE_NETWORK "+id)
			return supplicant.Response{}, err
		}
	}

	return supplicant.Response{Raw: id, NetworkID: id}, nil
}

// OpenEvents binds a new socket and attaches it for notifications.
func (t *Transport) OpenEvents(ctx context.Context) (supplicant.EventSource, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("%w: transport closed", supplicant.ErrDisconnected)
	}

	sock, err := openSocket(t.cfg)
	if err != nil {
		return nil, err
	}

	reply, err := sock.request(ctx, "ATTACH")
	if err == nil && reply != "OK" {
		err = fmt.Errorf("%w: ATTACH answered %q", supplicant.ErrMalformed, reply)
	}
	if err != nil {
		sock.close()
		return nil, err
	}

	return &eventSource{sock: sock, idle: t.cfg.IdleProbe, logger: t.cfg.Logger}, nil
}

// Close releases the command socket. It is safe to call more than once.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.sock == nil {
		return nil
	}
	return t.sock.close()
}

func isFail(reply string) bool {
	return strings.HasPrefix(reply, "FAIL")
}

func checkID(id string) error {
	if _, err := strconv.Atoi(id); err != nil {
		return fmt.Errorf("%w: network id %q", supplicant.ErrMalformed, id)
	}
	return nil
}

// eventSource is an attached socket.
type eventSource struct {
	sock   *socket
	idle   time.Duration
	logger *slog.Logger

	closeOnce sync.Once
	closed    atomic.Bool
}

func (s *eventSource) Receive() (supplicant.Event, error) {
	buf := make([]byte, maxDatagram)
	pinged := false

	for {
		if s.closed.Load() {
			return supplicant.Event{}, fmt.Errorf("%w: event source closed", supplicant.ErrDisconnected)
		}

		_ = s.sock.conn.SetReadDeadline(time.Now().Add(s.idle))
		n, err := s.sock.conn.Read(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) && !s.closed.Load() {
				if pinged {
					return supplicant.Event{}, fmt.Errorf("%w: no answer to PING", supplicant.ErrDisconnected)
				}
				if _, werr := s.sock.conn.Write([]byte("PING")); werr != nil {
					return supplicant.Event{}, mapError(werr)
				}
				pinged = true
				continue
			}
			return supplicant.Event{}, mapError(err)
		}

		line := strings.TrimRight(string(buf[:n]), "\n")
		if !supplicant.IsUnsolicited(line) {
			// PONG and stray replies only prove liveness.
			pinged = false
			continue
		}
		pinged = false
		return supplicant.ClassifyCtrlEvent(line), nil
	}
}

func (s *eventSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		_ = s.sock.conn.SetWriteDeadline(time.Now().Add(100 * time.Millisecond))
		if _, werr := s.sock.conn.Write([]byte("DETACH")); werr != nil {
			s.logger.Debug("ctrl: DETACH failed", "error", werr)
		}
		err = s.sock.close()
	})
	return err
}

// socket is one bound and connected datagram socket.
type socket struct {
	conn  *net.UnixConn
	local string
}

var socketSeq atomic.Uint64

func openSocket(cfg Config) (*socket, error) {
	local := filepath.Join(cfg.LocalDir, fmt.Sprintf("wifiprov-%d-%d", os.Getpid(), socketSeq.Add(1)))
	_ = os.Remove(local)

	laddr := &net.UnixAddr{Name: local, Net: "unixgram"}
	raddr := &net.UnixAddr{Name: filepath.Join(cfg.Dir, cfg.Interface), Net: "unixgram"}

	conn, err := net.DialUnix("unixgram", laddr, raddr)
	if err != nil {
		_ = os.Remove(local)
		return nil, mapError(err)
	}
	return &socket{conn: conn, local: local}, nil
}

// request writes text and returns the first reply that is not a
// notification, with a single trailing newline removed.
func (s *socket) request(ctx context.Context, text string) (string, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetDeadline(deadline)
	} else {
		_ = s.conn.SetDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetDeadline(time.Now())
	})
	defer stop()

	s.drain()
	if _, err := s.conn.Write([]byte(text)); err != nil {
		return "", ctxError(ctx, err)
	}

	buf := make([]byte, maxDatagram)
	for {
		n, err := s.conn.Read(buf)
		if err != nil {
			return "", ctxError(ctx, err)
		}
		reply := strings.TrimSuffix(string(buf[:n]), "\n")
		if supplicant.IsUnsolicited(reply) {
			continue
		}
		return reply, nil
	}
}

// drain discards datagrams already queued, such as the late reply to a
// request whose caller gave up, so they are not taken for the next reply.
func (s *socket) drain() {
	rc, err := s.conn.SyscallConn()
	if err != nil {
		return
	}
	buf := make([]byte, maxDatagram)
	_ = rc.Read(func(fd uintptr) bool {
		for {
			if _, _, err := syscall.Recvfrom(int(fd), buf, syscall.MSG_DONTWAIT); err != nil {
				return true
			}
		}
	})
}

func (s *socket) close() error {
	err := s.conn.Close()
	_ = os.Remove(s.local)
	return err
}

func ctxError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return mapError(err)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		return fmt.Errorf("%w: %v", supplicant.ErrTimeout, err)
	case errors.Is(err, net.ErrClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ENOENT),
		errors.Is(err, syscall.ENOTCONN):
		return fmt.Errorf("%w: %v", supplicant.ErrDisconnected, err)
	default:
		return fmt.Errorf("ctrl: %w", err)
	}
}
