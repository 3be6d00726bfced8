package connect

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wifiprov/wifiprov-go/pkg/command"
	"github.com/wifiprov/wifiprov-go/pkg/events"
	"github.com/wifiprov/wifiprov-go/pkg/supplicant"
	"github.com/wifiprov/wifiprov-go/pkg/supplicant/fake"
)

// stubHotspot records Start and Stop calls.
type stubHotspot struct {
	mu        sync.Mutex
	running   bool
	starts    int
	stops     int
	startErr  error
	stoppedAt time.Time
}

func (h *stubHotspot) Start(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.starts++
	if h.startErr != nil {
		return h.startErr
	}
	h.running = true
	return nil
}

func (h *stubHotspot) Stop(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stops++
	h.running = false
	h.stoppedAt = time.Now()
	return nil
}

func (h *stubHotspot) snapshot() (running bool, starts, stops int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running, h.starts, h.stops
}

type harness struct {
	tr      *fake.Transport
	hotspot *stubHotspot
	mgr     *Manager
}

func newHarness(t *testing.T, tr *fake.Transport, cfg Config) *harness {
	t.Helper()

	ch := command.New(tr, command.Config{Timeout: time.Second})
	t.Cleanup(func() { ch.Close() })

	l := events.NewListener(tr, events.ListenerConfig{})
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(func() { l.Close() })

	h := &stubHotspot{running: true}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = 200 * time.Millisecond
	}
	return &harness{tr: tr, hotspot: h, mgr: New(ch, l, h, cfg)}
}

func homeRadio() *fake.Radio {
	return fake.NewRadio(map[string]string{"HomeNet": "correct-horse"}, supplicant.ScanTableHeader+"\n")
}

func TestConnectSuccess(t *testing.T) {
	r := homeRadio()
	h := newHarness(t, r.T, Config{})

	var mu sync.Mutex
	var phases []Phase
	h.mgr.OnPhase(func(_, p Phase) {
		mu.Lock()
		phases = append(phases, p)
		mu.Unlock()
	})

	res, err := h.mgr.Connect(context.Background(), Request{SSID: "HomeNet", Passphrase: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeConnected, res.Outcome)
	assert.False(t, res.Restored)

	running, starts, stops := h.hotspot.snapshot()
	assert.False(t, running, "access point stays down after success")
	assert.Equal(t, 0, starts)
	assert.Equal(t, 1, stops)

	assert.Equal(t, PhaseCompleted, h.mgr.Phase())
	mu.Lock()
	assert.Equal(t, []Phase{PhaseStoppingAP, PhaseConfiguring, PhaseSelecting, PhaseAwaitingState, PhaseCompleted}, phases)
	mu.Unlock()

	ops := r.T.SentOps()
	assert.Contains(t, ops, supplicant.OpAddNetwork)
	assert.NotContains(t, ops, supplicant.OpRemoveNetwork)
}

func TestConnectStationCommandsFollowAPStop(t *testing.T) {
	var (
		mu      sync.Mutex
		addedAt time.Time
	)
	var tr *fake.Transport
	tr = fake.New(func(_ context.Context, cmd supplicant.Command) (supplicant.Response, error) {
		switch cmd.Op {
		case supplicant.OpStatus:
			return supplicant.Response{Status: map[string]string{"wpa_state": "DISCONNECTED"}}, nil
		case supplicant.OpAddNetwork:
			mu.Lock()
			if addedAt.IsZero() {
				addedAt = time.Now()
			}
			mu.Unlock()
			return supplicant.Response{NetworkID: "0"}, nil
		case supplicant.OpSelectNetwork:
			go tr.EmitLine("<3>CTRL-EVENT-CONNECTED - Connection to 00:11:22:33:44:55 completed")
		}
		return supplicant.Response{Raw: "OK"}, nil
	})
	h := newHarness(t, tr, Config{})

	_, err := h.mgr.Connect(context.Background(), Request{SSID: "HomeNet", Passphrase: "correct-horse"})
	require.NoError(t, err)

	h.hotspot.mu.Lock()
	stoppedAt := h.hotspot.stoppedAt
	h.hotspot.mu.Unlock()
	mu.Lock()
	defer mu.Unlock()

	require.False(t, stoppedAt.IsZero(), "access point was stopped")
	require.False(t, addedAt.IsZero(), "network was added")
	assert.False(t, addedAt.Before(stoppedAt), "ADD_NETWORK sent at %v, before the AP stopped at %v", addedAt, stoppedAt)
}

func TestConnectTimeoutRestoresAP(t *testing.T) {
	r := homeRadio()
	h := newHarness(t, r.T, Config{Timeout: 100 * time.Millisecond})

	start := time.Now()
	res, err := h.mgr.Connect(context.Background(), Request{SSID: "Ghost", Passphrase: "whatever1"})
	elapsed := time.Since(start)
	require.ErrorIs(t, err, ErrTimedOut)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond, "gave up before the bound")
	assert.Less(t, elapsed, 2*time.Second)

	assert.Equal(t, OutcomeTimedOut, res.Outcome)
	assert.True(t, res.Restored)
	assert.Equal(t, PhaseTimedOut, h.mgr.Phase())

	running, starts, _ := h.hotspot.snapshot()
	assert.True(t, running, "access point is back after a timeout")
	assert.Equal(t, 1, starts)

	ops := r.T.SentOps()
	assert.Equal(t, supplicant.OpRemoveNetwork, ops[len(ops)-1])
}

func TestConnectBusy(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	tr := fake.New(func(_ context.Context, cmd supplicant.Command) (supplicant.Response, error) {
		if cmd.Op == supplicant.OpAddNetwork {
			entered <- struct{}{}
			<-release
			return supplicant.Response{}, &supplicant.CommandError{Op: cmd.Op, Reason: "FAIL"}
		}
		return supplicant.Response{Raw: "OK"}, nil
	})
	h := newHarness(t, tr, Config{})

	done := make(chan error, 1)
	go func() {
		_, err := h.mgr.Connect(context.Background(), Request{SSID: "HomeNet", Passphrase: "correct-horse"})
		done <- err
	}()
	<-entered
	assert.True(t, h.mgr.Busy())

	start := time.Now()
	_, err := h.mgr.Connect(context.Background(), Request{SSID: "Other", Passphrase: "whatever1"})
	assert.ErrorIs(t, err, ErrBusy)
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	close(release)
	assert.ErrorIs(t, <-done, ErrRejected)
}

func TestConnectRejected(t *testing.T) {
	t.Run("SelectRefused", func(t *testing.T) {
		tr := fake.New(func(_ context.Context, cmd supplicant.Command) (supplicant.Response, error) {
			switch cmd.Op {
			case supplicant.OpAddNetwork:
				return supplicant.Response{NetworkID: "0"}, nil
			case supplicant.OpSelectNetwork:
				return supplicant.Response{}, &supplicant.CommandError{Op: cmd.Op, Reason: "FAIL"}
			}
			return supplicant.Response{Raw: "OK"}, nil
		})
		h := newHarness(t, tr, Config{})

		res, err := h.mgr.Connect(context.Background(), Request{SSID: "HomeNet", Passphrase: "wrong-pass"})
		var re *RejectedError
		require.True(t, errors.As(err, &re))
		assert.Contains(t, re.Reason, "select network")
		assert.Equal(t, OutcomeRejected, res.Outcome)

		running, _, _ := h.hotspot.snapshot()
		assert.True(t, running)
		assert.Contains(t, tr.SentOps(), supplicant.OpRemoveNetwork)
	})

	t.Run("WrongKeyEndsWaitEarly", func(t *testing.T) {
		var tr *fake.Transport
		tr = fake.New(func(_ context.Context, cmd supplicant.Command) (supplicant.Response, error) {
			switch cmd.Op {
			case supplicant.OpAddNetwork:
				return supplicant.Response{NetworkID: "0"}, nil
			case supplicant.OpSelectNetwork:
				go tr.EmitLine(`<3>CTRL-EVENT-SSID-TEMP-DISABLED id=0 ssid="HomeNet" auth_failures=1 duration=10 reason=WRONG_KEY`)
			}
			return supplicant.Response{Raw: "OK"}, nil
		})
		h := newHarness(t, tr, Config{Timeout: 5 * time.Second})

		start := time.Now()
		_, err := h.mgr.Connect(context.Background(), Request{SSID: "HomeNet", Passphrase: "wrong-pass"})
		require.ErrorIs(t, err, ErrRejected)
		assert.Contains(t, err.Error(), supplicant.ReasonWrongKey)
		assert.Less(t, time.Since(start), 2*time.Second)
	})
}

func TestConnectStatusPollAfterDroppedEvent(t *testing.T) {
	tr := fake.New(func(_ context.Context, cmd supplicant.Command) (supplicant.Response, error) {
		switch cmd.Op {
		case supplicant.OpAddNetwork:
			return supplicant.Response{NetworkID: "0"}, nil
		case supplicant.OpStatus:
			return supplicant.Response{Status: map[string]string{"wpa_state": "COMPLETED"}}, nil
		}
		return supplicant.Response{Raw: "OK"}, nil
	})
	h := newHarness(t, tr, Config{Timeout: 50 * time.Millisecond})

	_, err := h.mgr.Connect(context.Background(), Request{SSID: "HomeNet", Passphrase: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, PhaseCompleted, h.mgr.Phase())
}

func TestConnectTransportFailure(t *testing.T) {
	tr := fake.New(func(_ context.Context, cmd supplicant.Command) (supplicant.Response, error) {
		if cmd.Op == supplicant.OpAddNetwork {
			return supplicant.Response{}, supplicant.ErrDisconnected
		}
		return supplicant.Response{Raw: "OK"}, nil
	})
	h := newHarness(t, tr, Config{})

	res, err := h.mgr.Connect(context.Background(), Request{SSID: "HomeNet"})
	require.ErrorIs(t, err, supplicant.ErrDisconnected)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, PhaseFailed, h.mgr.Phase())

	running, _, _ := h.hotspot.snapshot()
	assert.True(t, running)
	assert.NotContains(t, tr.SentOps(), supplicant.OpRemoveNetwork, "nothing to remove")
}

func TestConnectRestoreFailureJoined(t *testing.T) {
	r := homeRadio()
	h := newHarness(t, r.T, Config{Timeout: 50 * time.Millisecond})
	h.hotspot.startErr = errors.New("hostapd missing")

	res, err := h.mgr.Connect(context.Background(), Request{SSID: "Ghost", Passphrase: "whatever1"})
	assert.ErrorIs(t, err, ErrTimedOut)
	assert.Contains(t, err.Error(), "hostapd missing")
	assert.False(t, res.Restored)
}

func TestConnectIgnoresCallerCancellation(t *testing.T) {
	r := homeRadio()
	h := newHarness(t, r.T, Config{Timeout: 150 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := h.mgr.Connect(ctx, Request{SSID: "Ghost", Passphrase: "whatever1"})
	require.ErrorIs(t, err, ErrTimedOut, "attempt runs to its own timeout")

	running, _, _ := h.hotspot.snapshot()
	assert.True(t, running)
}

func TestConnectSettle(t *testing.T) {
	var polls atomic.Int32
	var tr *fake.Transport
	tr = fake.New(func(_ context.Context, cmd supplicant.Command) (supplicant.Response, error) {
		switch cmd.Op {
		case supplicant.OpStatus:
			state := "INTERFACE_DISABLED"
			if polls.Add(1) > 2 {
				state = "DISCONNECTED"
			}
			return supplicant.Response{Status: map[string]string{"wpa_state": state}}, nil
		case supplicant.OpAddNetwork:
			return supplicant.Response{NetworkID: "0"}, nil
		case supplicant.OpSelectNetwork:
			go tr.EmitLine("<3>CTRL-EVENT-CONNECTED - Connection to 00:11:22:33:44:55 completed")
		}
		return supplicant.Response{Raw: "OK"}, nil
	})
	h := newHarness(t, tr, Config{SettleDelay: time.Second})

	_, err := h.mgr.Connect(context.Background(), Request{SSID: "HomeNet", Passphrase: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), polls.Load())

	ops := tr.SentOps()
	assert.Equal(t, []supplicant.Op{supplicant.OpStatus, supplicant.OpStatus, supplicant.OpStatus, supplicant.OpAddNetwork, supplicant.OpSelectNetwork}, ops)
}

func TestConnectInvalidRequest(t *testing.T) {
	h := newHarness(t, fake.New(nil), Config{})

	_, err := h.mgr.Connect(context.Background(), Request{SSID: ""})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = h.mgr.Connect(context.Background(), Request{SSID: "0123456789abcdef0123456789abcdefX"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	for _, pass := range []string{"x", "short12", strings.Repeat("p", 64)} {
		_, err = h.mgr.Connect(context.Background(), Request{SSID: "HomeNet", Passphrase: pass})
		assert.ErrorIs(t, err, ErrInvalidRequest, "passphrase of %d bytes", len(pass))
	}

	_, _, stops := h.hotspot.snapshot()
	assert.Zero(t, stops, "invalid requests never take the radio")
}

func TestConnectAcquiresAddress(t *testing.T) {
	t.Run("Lease", func(t *testing.T) {
		r := homeRadio()
		dhcp := fake.NewDHCP()
		h := newHarness(t, r.T, Config{Interface: "wlan0", DHCP: dhcp})

		res, err := h.mgr.Connect(context.Background(), Request{SSID: "HomeNet", Passphrase: "correct-horse"})
		require.NoError(t, err)
		assert.True(t, res.Addressed)
		assert.Equal(t, []string{"wlan0"}, dhcp.Calls())
		assert.Equal(t, PhaseCompleted, h.mgr.Phase())
	})

	t.Run("FailureKeepsAssociation", func(t *testing.T) {
		r := homeRadio()
		dhcp := fake.NewDHCP()
		dhcp.Fail(errors.New("no lease"))
		h := newHarness(t, r.T, Config{Interface: "wlan0", DHCP: dhcp})

		res, err := h.mgr.Connect(context.Background(), Request{SSID: "HomeNet", Passphrase: "correct-horse"})
		require.NoError(t, err)
		assert.Equal(t, OutcomeConnected, res.Outcome)
		assert.False(t, res.Addressed)
		assert.Equal(t, []string{"wlan0"}, dhcp.Calls())

		running, starts, _ := h.hotspot.snapshot()
		assert.False(t, running, "access point stays down")
		assert.Zero(t, starts)
		assert.NotContains(t, r.T.SentOps(), supplicant.OpRemoveNetwork)
	})

	t.Run("NotRunAfterTimeout", func(t *testing.T) {
		r := homeRadio()
		dhcp := fake.NewDHCP()
		h := newHarness(t, r.T, Config{Interface: "wlan0", DHCP: dhcp, Timeout: 50 * time.Millisecond})

		_, err := h.mgr.Connect(context.Background(), Request{SSID: "Ghost", Passphrase: "whatever1"})
		require.ErrorIs(t, err, ErrTimedOut)
		assert.Empty(t, dhcp.Calls())
	})
}

func TestUDHCPCReportsOutput(t *testing.T) {
	err := UDHCPC{Path: "/nonexistent/udhcpc"}.Acquire(context.Background(), "wlan0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/nonexistent/udhcpc -i wlan0")
}

func TestPhaseAndOutcomeStrings(t *testing.T) {
	assert.Equal(t, "AWAITING_STATE", PhaseAwaitingState.String())
	assert.True(t, PhaseTimedOut.Terminal())
	assert.False(t, PhaseSelecting.Terminal())
	assert.Equal(t, "REJECTED", OutcomeRejected.String())
	assert.Equal(t, OutcomeFailed, OutcomeOf(errors.New("x")))
}
