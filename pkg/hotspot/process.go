package hotspot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
)

// Process is a running helper.
type Process interface {
	Pid() int

	// Done is closed once the process has exited.
	Done() <-chan struct{}

	// Err is the exit error. Valid after Done is closed.
	Err() error

	Signal(sig os.Signal) error
	Kill() error
}

// Launcher starts helpers. The returned process must outlive ctx, which
// only bounds the launch itself.
type Launcher interface {
	Launch(ctx context.Context, name, path string, args ...string) (Process, error)
}

// ExecLauncher starts helpers with os/exec and forwards their output to the
// logger at debug level.
type ExecLauncher struct {
	Logger *slog.Logger
}

var _ Launcher = ExecLauncher{}

// Launch starts path with args.
func (l ExecLauncher) Launch(ctx context.Context, name, path string, args ...string) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("helper", name)

	cmd := exec.Command(path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}

	p := &execProcess{cmd: cmd, done: make(chan struct{})}

	var readers sync.WaitGroup
	for _, r := range []io.Reader{stdout, stderr} {
		readers.Add(1)
		go func() {
			defer readers.Done()
			sc := bufio.NewScanner(r)
			for sc.Scan() {
				logger.Debug("helper output", "line", sc.Text())
			}
		}()
	}

	go func() {
		// Wait closes the pipes, so the readers have to drain first.
		readers.Wait()
		p.err = cmd.Wait()
		logger.Debug("helper exited", "pid", p.Pid(), "error", p.err)
		close(p.done)
	}()

	logger.Info("helper started", "pid", p.Pid(), "path", path)
	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (p *execProcess) Pid() int              { return p.cmd.Process.Pid }
func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

func (p *execProcess) Signal(sig os.Signal) error { return p.cmd.Process.Signal(sig) }
func (p *execProcess) Kill() error                { return p.cmd.Process.Kill() }

func exited(p Process) bool {
	select {
	case <-p.Done():
		return true
	default:
		return false
	}
}
