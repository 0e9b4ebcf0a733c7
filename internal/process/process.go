//go:build darwin || linux

// Package process starts and stops the auxiliary programs a browser session
// depends on: the virtual display, the remote-frame server and the driver.
package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/xkilldash9x/ebaybot/internal/failure"
)

// Spec describes one program to run in the background.
type Spec struct {
	// Role is a short label used in errors and logs ("display", "driver", ...).
	Role string
	Path string
	Args []string
	// Env is appended to the current environment.
	Env []string
}

func (s Spec) String() string {
	return fmt.Sprintf("%s %v", s.Path, s.Args)
}

// Handle is a started background process.
type Handle interface {
	PID() int
	// Kill force-terminates the process and its group.
	Kill() error
	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}
}

// Spawner starts background processes.
type Spawner interface {
	Spawn(ctx context.Context, spec Spec) (Handle, error)
}

// ExecSpawner runs programs with os/exec. Each child gets its own process
// group and has stdin, stdout and stderr attached to the null device.
type ExecSpawner struct {
	killer Killer
}

// NewExecSpawner returns a Spawner backed by os/exec.
func NewExecSpawner() *ExecSpawner {
	return &ExecSpawner{killer: NewGroupKiller()}
}

// Spawn starts spec. ctx only bounds the start itself: the child is not tied to
// ctx and keeps running until killed, so a detached session survives the CLI.
func (s *ExecSpawner) Spawn(ctx context.Context, spec Spec) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, failure.New(failure.CodeProcessSpawnFailed, spec.Role, err)
	}

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Env = append(os.Environ(), spec.Env...)
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, failure.New(failure.CodeProcessSpawnFailed, spec.Role, err)
	}

	h := &execHandle{
		cmd:    cmd,
		killer: s.killer,
		done:   make(chan struct{}),
	}
	go func() {
		_ = cmd.Wait()
		close(h.done)
	}()
	return h, nil
}

type execHandle struct {
	cmd    *exec.Cmd
	killer Killer
	done   chan struct{}
	once   sync.Once
	err    error
}

func (h *execHandle) PID() int {
	return h.cmd.Process.Pid
}

func (h *execHandle) Kill() error {
	h.once.Do(func() {
		select {
		case <-h.done:
			return
		default:
		}
		h.err = h.killer.Kill(h.PID())
	})
	return h.err
}

func (h *execHandle) Done() <-chan struct{} {
	return h.done
}
