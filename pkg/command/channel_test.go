package command

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wifiprov/wifiprov-go/pkg/log"
	"github.com/wifiprov/wifiprov-go/pkg/supplicant"
	"github.com/wifiprov/wifiprov-go/pkg/supplicant/fake"
)

type traceRecorder struct {
	mu     sync.Mutex
	events []log.Event
}

func (r *traceRecorder) Log(ev log.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *traceRecorder) all() []log.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]log.Event(nil), r.events...)
}

func TestDo(t *testing.T) {
	ctx := context.Background()

	t.Run("PassesResponse", func(t *testing.T) {
		tr := fake.New(func(_ context.Context, cmd supplicant.Command) (supplicant.Response, error) {
			return supplicant.Response{Raw: "PONG"}, nil
		})
		c := New(tr, Config{})
		defer c.Close()

		resp, err := c.Do(ctx, supplicant.Command{Op: supplicant.OpPing})
		require.NoError(t, err)
		assert.Equal(t, "PONG", resp.Raw)
	})

	t.Run("PassesRejection", func(t *testing.T) {
		tr := fake.New(func(_ context.Context, cmd supplicant.Command) (supplicant.Response, error) {
			return supplicant.Response{}, &supplicant.CommandError{Op: cmd.Op, Reason: "FAIL-BUSY"}
		})
		c := New(tr, Config{})
		defer c.Close()

		_, err := c.Do(ctx, supplicant.Command{Op: supplicant.OpScan})
		assert.True(t, supplicant.IsCommandError(err))
		assert.Len(t, tr.Sent(), 1, "commands are not retried")
	})

	t.Run("TimeoutWithoutReply", func(t *testing.T) {
		release := make(chan struct{})
		tr := fake.New(func(ctx context.Context, cmd supplicant.Command) (supplicant.Response, error) {
			<-release
			return supplicant.Response{Raw: "OK"}, nil
		})
		c := New(tr, Config{Timeout: 30 * time.Millisecond})

		start := time.Now()
		_, err := c.Do(ctx, supplicant.Command{Op: supplicant.OpScan})
		assert.ErrorIs(t, err, supplicant.ErrTimeout)
		assert.Less(t, time.Since(start), time.Second)

		close(release)
		c.Close()
	})

	t.Run("GateHeldUntilTransportReturns", func(t *testing.T) {
		release := make(chan struct{})
		var inFlight, maxInFlight atomic.Int32
		tr := fake.New(func(ctx context.Context, cmd supplicant.Command) (supplicant.Response, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			if n > maxInFlight.Load() {
				maxInFlight.Store(n)
			}
			if cmd.Op == supplicant.OpScan {
				<-release
			}
			return supplicant.Response{Raw: "OK"}, nil
		})
		c := New(tr, Config{Timeout: 30 * time.Millisecond})
		defer c.Close()

		_, err := c.Do(ctx, supplicant.Command{Op: supplicant.OpScan})
		require.ErrorIs(t, err, supplicant.ErrTimeout)
		assert.True(t, c.Busy(), "worker still holds the gate")

		// The slow SCAN is still with the transport: a new command cannot
		// get in and times out waiting for the gate.
		_, err = c.Do(ctx, supplicant.Command{Op: supplicant.OpPing})
		require.ErrorIs(t, err, supplicant.ErrTimeout)
		assert.Equal(t, []supplicant.Op{supplicant.OpScan}, tr.SentOps())

		close(release)
		require.Eventually(t, func() bool { return !c.Busy() }, time.Second, 5*time.Millisecond)

		_, err = c.Do(ctx, supplicant.Command{Op: supplicant.OpPing})
		require.NoError(t, err)
		assert.Equal(t, int32(1), maxInFlight.Load())
	})

	t.Run("CallerCancel", func(t *testing.T) {
		tr := fake.New(func(ctx context.Context, cmd supplicant.Command) (supplicant.Response, error) {
			<-ctx.Done()
			return supplicant.Response{}, ctx.Err()
		})
		c := New(tr, Config{Timeout: time.Second})
		defer c.Close()

		cctx, cancel := context.WithCancel(ctx)
		time.AfterFunc(20*time.Millisecond, cancel)

		_, err := c.Do(cctx, supplicant.Command{Op: supplicant.OpStatus})
		assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	})

	t.Run("Closed", func(t *testing.T) {
		c := New(fake.New(nil), Config{})
		require.NoError(t, c.Close())

		_, err := c.Do(ctx, supplicant.Command{Op: supplicant.OpPing})
		assert.ErrorIs(t, err, ErrClosed)
	})
}

func TestTrace(t *testing.T) {
	rec := &traceRecorder{}
	tr := fake.New(func(_ context.Context, cmd supplicant.Command) (supplicant.Response, error) {
		if cmd.Op == supplicant.OpAddNetwork {
			return supplicant.Response{Raw: "0", NetworkID: "0"}, nil
		}
		return supplicant.Response{}, &supplicant.CommandError{Op: cmd.Op, Reason: "FAIL"}
	})
	c := New(tr, Config{Trace: rec, Interface: "wlan0"})
	defer c.Close()
	c.SetSession("s-42")

	ctx := context.Background()
	_, err := c.Do(ctx, supplicant.Command{Op: supplicant.OpAddNetwork, Profile: supplicant.NewProfile("HomeNet", "hunter22")})
	require.NoError(t, err)
	_, err = c.Do(ctx, supplicant.Command{Op: supplicant.OpSelectNetwork, NetworkID: "0"})
	require.Error(t, err)

	events := rec.all()
	require.Len(t, events, 2)

	add := events[0]
	assert.Equal(t, "s-42", add.SessionID)
	assert.Equal(t, log.LayerCommand, add.Layer)
	assert.Equal(t, "wlan0", add.Interface)
	require.NotNil(t, add.Command)
	assert.Equal(t, "ADD_NETWORK", add.Command.Op)
	assert.Equal(t, "HomeNet", add.Command.SSID)
	assert.Equal(t, "0", add.Command.NetworkID)
	assert.Equal(t, log.ResultOK, add.Command.Result)

	sel := events[1]
	assert.Equal(t, log.CategoryError, sel.Category)
	assert.Equal(t, log.ResultRejected, sel.Command.Result)

	for _, ev := range events {
		enc, err := log.EncodeEvent(ev)
		require.NoError(t, err)
		assert.NotContains(t, string(enc), "hunter22")
	}
}
