package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/rtbox/rtbox/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Spawner starts an invocation and reports the exit code it ends with.
type Spawner interface {
	Spawn(ctx context.Context, inv *Invocation) (int, error)
}

// ForkSpawner runs the child as a subprocess sharing this process's stdio
// and waits for it.
type ForkSpawner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// forwarded signals are relayed to the child. SIGINT is not: the terminal
// already delivers it to the whole foreground process group.
var forwarded = []os.Signal{syscall.SIGTERM, syscall.SIGHUP}

// Spawn implements Spawner.
func (s ForkSpawner) Spawn(ctx context.Context, inv *Invocation) (int, error) {
	cmd := &exec.Cmd{
		Path:   inv.Path,
		Args:   inv.Args,
		Env:    inv.Env,
		Dir:    inv.Dir,
		Stdin:  s.Stdin,
		Stdout: s.Stdout,
		Stderr: s.Stderr,
	}
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		return 0, models.NewError(models.ErrSpawnFailed, "", "starting %s: %w", inv.Path, err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, forwarded...)
	defer signal.Stop(sigs)

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case sig := <-sigs:
				logrus.Debugf("Forwarding %v to child %d", sig, cmd.Process.Pid)
				_ = cmd.Process.Signal(sig)
			case <-done:
				return
			}
		}
	}()

	err := cmd.Wait()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return 0, models.NewError(models.ErrSpawnFailed, "", "waiting for %s: %w", inv.Path, err)
	}
	return ExitCode(cmd.ProcessState), nil
}

// ExitCode converts a finished process state to a shell style exit code:
// the child's own status, or 128 plus the signal number that killed it.
func ExitCode(state *os.ProcessState) int {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok {
		if ws.Signaled() {
			return models.SignalExitBase + int(ws.Signal())
		}
		return ws.ExitStatus()
	}
	return state.ExitCode()
}

// ExecSpawner replaces the current process with the child. Spawn only
// returns when the replacement fails.
type ExecSpawner struct{}

// Spawn implements Spawner.
func (ExecSpawner) Spawn(ctx context.Context, inv *Invocation) (int, error) {
	if inv.Dir != "" {
		if err := unix.Chdir(inv.Dir); err != nil {
			return 0, models.NewError(models.ErrSpawnFailed, "", "changing directory to %s: %w", inv.Dir, err)
		}
	}
	logrus.Debugf("Replacing process with %s", inv.Path)
	err := unix.Exec(inv.Path, inv.Args, inv.Env)
	return 0, models.NewError(models.ErrSpawnFailed, "", "exec %s: %w", inv.Path, err)
}
