// Package fake provides in-memory hotspot.Launcher and hotspot.Addresser
// implementations for tests.
package fake

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"sync"
	"syscall"

	"github.com/wifiprov/wifiprov-go/pkg/hotspot"
)

// ErrKilled is the exit error of a killed process.
var ErrKilled = errors.New("fake: killed")

// Process is a simulated helper. It exits on SIGTERM unless told to ignore
// it, and always on Kill.
type Process struct {
	pid  int
	done chan struct{}

	mu         sync.Mutex
	err        error
	exitedOnce bool
	ignoreTerm bool
	killed     bool
	signals    []os.Signal
}

var _ hotspot.Process = (*Process)(nil)

// NewProcess returns a running process.
func NewProcess(pid int) *Process {
	return &Process{pid: pid, done: make(chan struct{})}
}

func (p *Process) Pid() int              { return p.pid }
func (p *Process) Done() <-chan struct{} { return p.done }

func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Exit ends the process with err. Later calls are ignored.
func (p *Process) Exit(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exitedOnce {
		return
	}
	p.exitedOnce = true
	p.err = err
	close(p.done)
}

// IgnoreTerm makes the process survive SIGTERM.
func (p *Process) IgnoreTerm() {
	p.mu.Lock()
	p.ignoreTerm = true
	p.mu.Unlock()
}

func (p *Process) Signal(sig os.Signal) error {
	p.mu.Lock()
	p.signals = append(p.signals, sig)
	ignore := p.ignoreTerm
	p.mu.Unlock()
	if sig == syscall.SIGTERM && !ignore {
		p.Exit(nil)
	}
	return nil
}

func (p *Process) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.Exit(ErrKilled)
	return nil
}

// Signals returns the signals received.
func (p *Process) Signals() []os.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]os.Signal(nil), p.signals...)
}

// Killed reports whether Kill was called.
func (p *Process) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// Launch records one Launch call.
type Launch struct {
	Name    string
	Path    string
	Args    []string
	Process *Process
}

// Launcher records launches and hands out simulated processes.
type Launcher struct {
	mu          sync.Mutex
	launches    []Launch
	nextPid     int
	failLaunch  map[string]error
	exitOnStart map[string]error
	ignoreTerm  map[string]bool
}

var _ hotspot.Launcher = (*Launcher)(nil)

// NewLauncher creates a launcher whose helpers start and stay up.
func NewLauncher() *Launcher {
	return &Launcher{
		nextPid:     1000,
		failLaunch:  make(map[string]error),
		exitOnStart: make(map[string]error),
		ignoreTerm:  make(map[string]bool),
	}
}

// FailLaunch makes launches of name fail with err.
func (l *Launcher) FailLaunch(name string, err error) {
	l.mu.Lock()
	l.failLaunch[name] = err
	l.mu.Unlock()
}

// ExitOnStart makes name exit with err right after it is launched.
func (l *Launcher) ExitOnStart(name string, err error) {
	l.mu.Lock()
	l.exitOnStart[name] = err
	l.mu.Unlock()
}

// IgnoreTerm makes future processes named name survive SIGTERM.
func (l *Launcher) IgnoreTerm(name string) {
	l.mu.Lock()
	l.ignoreTerm[name] = true
	l.mu.Unlock()
}

// Reset clears scripted failures.
func (l *Launcher) Reset() {
	l.mu.Lock()
	clear(l.failLaunch)
	clear(l.exitOnStart)
	clear(l.ignoreTerm)
	l.mu.Unlock()
}

func (l *Launcher) Launch(ctx context.Context, name, path string, args ...string) (hotspot.Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err, ok := l.failLaunch[name]; ok {
		return nil, err
	}
	l.nextPid++
	p := NewProcess(l.nextPid)
	if l.ignoreTerm[name] {
		p.IgnoreTerm()
	}
	if err, ok := l.exitOnStart[name]; ok {
		p.Exit(err)
	}
	l.launches = append(l.launches, Launch{
		Name:    name,
		Path:    path,
		Args:    append([]string(nil), args...),
		Process: p,
	})
	return p, nil
}

// Launches returns every launch so far.
func (l *Launcher) Launches() []Launch {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Launch(nil), l.launches...)
}

// Names returns the launched helper names in order.
func (l *Launcher) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, len(l.launches))
	for i, launch := range l.launches {
		names[i] = launch.Name
	}
	return names
}

// Last returns the most recent process launched as name, or nil.
func (l *Launcher) Last(name string) *Process {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.launches) - 1; i >= 0; i-- {
		if l.launches[i].Name == name {
			return l.launches[i].Process
		}
	}
	return nil
}

// Addresser tracks interface addresses in memory.
type Addresser struct {
	mu        sync.Mutex
	assigned  map[string]netip.Prefix
	calls     []string
	addErr    error
	removeErr error
}

var _ hotspot.Addresser = (*Addresser)(nil)

// NewAddresser creates an addresser with no addresses assigned.
func NewAddresser() *Addresser {
	return &Addresser{assigned: make(map[string]netip.Prefix)}
}

// FailAdd makes AddAddress fail with err.
func (a *Addresser) FailAdd(err error) {
	a.mu.Lock()
	a.addErr = err
	a.mu.Unlock()
}

// FailRemove makes RemoveAddress fail with err.
func (a *Addresser) FailRemove(err error) {
	a.mu.Lock()
	a.removeErr = err
	a.mu.Unlock()
}

func (a *Addresser) AddAddress(_ context.Context, iface string, prefix netip.Prefix) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, fmt.Sprintf("add %s %s", iface, prefix))
	if a.addErr != nil {
		return a.addErr
	}
	a.assigned[iface] = prefix
	return nil
}

func (a *Addresser) RemoveAddress(_ context.Context, iface string, prefix netip.Prefix) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, fmt.Sprintf("del %s %s", iface, prefix))
	if a.removeErr != nil {
		return a.removeErr
	}
	delete(a.assigned, iface)
	return nil
}

// Assigned returns the address on iface.
func (a *Addresser) Assigned(iface string) (netip.Prefix, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.assigned[iface]
	return p, ok
}

// Calls returns the add and del calls in order.
func (a *Addresser) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}
