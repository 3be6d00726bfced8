package hotspot_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wifiprov/wifiprov-go/pkg/hotspot"
	"github.com/wifiprov/wifiprov-go/pkg/hotspot/fake"
)

type rig struct {
	launcher  *fake.Launcher
	addresser *fake.Addresser
	mgr       *hotspot.Manager
	dir       string

	mu     sync.Mutex
	states []hotspot.State
}

func newRig(t *testing.T) *rig {
	t.Helper()

	r := &rig{
		launcher:  fake.NewLauncher(),
		addresser: fake.NewAddresser(),
		dir:       t.TempDir(),
	}
	cfg := baseConfig()
	cfg.Passphrase = "provision-me"
	cfg.RuntimeDir = r.dir
	cfg.HostapdPath = "/usr/sbin/hostapd"
	cfg.DnsmasqPath = "/usr/sbin/dnsmasq"
	cfg.LaunchGrace = 50 * time.Millisecond
	cfg.StopGrace = 50 * time.Millisecond

	mgr, err := hotspot.NewManager(cfg, r.launcher, r.addresser)
	require.NoError(t, err)
	mgr.OnStateChange(func(_, s hotspot.State) {
		r.mu.Lock()
		r.states = append(r.states, s)
		r.mu.Unlock()
	})
	r.mgr = mgr
	return r
}

func (r *rig) transitions() []hotspot.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]hotspot.State(nil), r.states...)
}

func TestStart(t *testing.T) {
	r := newRig(t)

	require.NoError(t, r.mgr.Start(context.Background()))

	assert.Equal(t, hotspot.StateRunning, r.mgr.State())
	assert.True(t, r.mgr.Healthy())
	assert.Equal(t, []hotspot.State{hotspot.StateStarting, hotspot.StateRunning}, r.transitions())

	prefix, ok := r.addresser.Assigned("wlan0")
	require.True(t, ok)
	assert.Equal(t, "192.168.4.1/24", prefix.String())

	launches := r.launcher.Launches()
	require.Len(t, launches, 2)
	assert.Equal(t, "hostapd", launches[0].Name)
	assert.Equal(t, "/usr/sbin/hostapd", launches[0].Path)
	assert.Equal(t, []string{filepath.Join(r.dir, "hostapd.conf")}, launches[0].Args)
	assert.Equal(t, "dnsmasq", launches[1].Name)
	assert.Equal(t, []string{
		"--keep-in-foreground",
		"--log-facility=-",
		"--conf-file=" + filepath.Join(r.dir, "dnsmasq.conf"),
	}, launches[1].Args)

	info, err := os.Stat(filepath.Join(r.dir, "hostapd.conf"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	assert.Equal(t, "192.168.4.1", r.mgr.Gateway())
}

func TestStartIdempotent(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	require.NoError(t, r.mgr.Start(ctx))
	require.NoError(t, r.mgr.Start(ctx))

	if n := len(r.launcher.Launches()); n != 2 {
		t.Errorf("launches = %d, want 2", n)
	}
}

func TestStartRelaunchesDeadHelper(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	require.NoError(t, r.mgr.Start(ctx))
	oldHostapd := r.launcher.Last("hostapd")
	r.launcher.Last("dnsmasq").Exit(errors.New("exit status 2"))

	assert.False(t, r.mgr.Healthy())
	require.NoError(t, r.mgr.Start(ctx))

	assert.Equal(t, []string{"hostapd", "dnsmasq", "hostapd", "dnsmasq"}, r.launcher.Names())
	assert.Equal(t, []os.Signal{syscall.SIGTERM}, oldHostapd.Signals())
	assert.True(t, r.mgr.Healthy())
}

func TestStartAddressFailure(t *testing.T) {
	r := newRig(t)
	r.addresser.FailAdd(errors.New("RTNETLINK answers: Operation not permitted"))

	err := r.mgr.Start(context.Background())

	assert.ErrorIs(t, err, hotspot.ErrAddress)
	assert.Empty(t, r.launcher.Launches())
	assert.Equal(t, hotspot.StateStopped, r.mgr.State())
}

func TestStartRollsBackWhenHostapdExits(t *testing.T) {
	r := newRig(t)
	r.launcher.ExitOnStart("hostapd", errors.New("exit status 1"))

	err := r.mgr.Start(context.Background())

	assert.ErrorIs(t, err, hotspot.ErrLaunch)
	assert.Equal(t, hotspot.StateStopped, r.mgr.State())
	assert.Equal(t, []hotspot.State{
		hotspot.StateStarting,
		hotspot.StateStoppingOnError,
		hotspot.StateStopped,
	}, r.transitions())
	assert.Equal(t, []string{"hostapd"}, r.launcher.Names())

	_, assigned := r.addresser.Assigned("wlan0")
	assert.False(t, assigned, "address should be removed")
	_, statErr := os.Stat(filepath.Join(r.dir, "hostapd.conf"))
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestStartRollsBackWhenDnsmasqFails(t *testing.T) {
	r := newRig(t)
	r.launcher.FailLaunch("dnsmasq", errors.New("exec: not found"))

	err := r.mgr.Start(context.Background())

	assert.ErrorIs(t, err, hotspot.ErrLaunch)
	hostapd := r.launcher.Last("hostapd")
	require.NotNil(t, hostapd)
	assert.Equal(t, []os.Signal{syscall.SIGTERM}, hostapd.Signals())
	assert.Equal(t, []string{
		"add wlan0 192.168.4.1/24",
		"del wlan0 192.168.4.1/24",
	}, r.addresser.Calls())

	// A later start works once the helper is available.
	r.launcher.Reset()
	require.NoError(t, r.mgr.Start(context.Background()))
	assert.Equal(t, hotspot.StateRunning, r.mgr.State())
}

func TestStop(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	require.NoError(t, r.mgr.Start(ctx))
	hostapd := r.launcher.Last("hostapd")
	dnsmasq := r.launcher.Last("dnsmasq")

	require.NoError(t, r.mgr.Stop(ctx))

	assert.Equal(t, hotspot.StateStopped, r.mgr.State())
	assert.Equal(t, []os.Signal{syscall.SIGTERM}, hostapd.Signals())
	assert.Equal(t, []os.Signal{syscall.SIGTERM}, dnsmasq.Signals())
	_, assigned := r.addresser.Assigned("wlan0")
	assert.False(t, assigned)
	_, statErr := os.Stat(filepath.Join(r.dir, "dnsmasq.conf"))
	assert.ErrorIs(t, statErr, os.ErrNotExist)

	// Second stop is a no-op.
	calls := len(r.addresser.Calls())
	require.NoError(t, r.mgr.Stop(ctx))
	assert.Len(t, r.addresser.Calls(), calls)
}

func TestStopWhenNeverStarted(t *testing.T) {
	r := newRig(t)

	require.NoError(t, r.mgr.Stop(context.Background()))
	assert.Empty(t, r.addresser.Calls())
	assert.Empty(t, r.transitions())
}

func TestStopKillsStubbornHelper(t *testing.T) {
	r := newRig(t)
	r.launcher.IgnoreTerm("hostapd")
	ctx := context.Background()

	require.NoError(t, r.mgr.Start(ctx))
	require.NoError(t, r.mgr.Stop(ctx))

	hostapd := r.launcher.Last("hostapd")
	assert.True(t, hostapd.Killed())
	assert.False(t, r.launcher.Last("dnsmasq").Killed())
}

func TestStopReportsCleanupErrors(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	require.NoError(t, r.mgr.Start(ctx))
	r.addresser.FailRemove(errors.New("device busy"))

	err := r.mgr.Stop(ctx)

	assert.ErrorContains(t, err, "device busy")
	assert.Equal(t, hotspot.StateStopped, r.mgr.State())
	assert.False(t, r.mgr.Healthy())
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	cfg := baseConfig()
	cfg.GatewayCIDR = "nonsense"

	_, err := hotspot.NewManager(cfg, fake.NewLauncher(), fake.NewAddresser())
	assert.ErrorIs(t, err, hotspot.ErrConfig)
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    hotspot.State
		want string
	}{
		{hotspot.StateStopped, "STOPPED"},
		{hotspot.StateStarting, "STARTING"},
		{hotspot.StateRunning, "RUNNING"},
		{hotspot.StateStoppingOnError, "STOPPING_ON_ERROR"},
		{hotspot.State(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
