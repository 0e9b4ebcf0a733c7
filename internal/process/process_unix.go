//go:build darwin || linux

package process

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Killer sends a forced termination request to a PID.
type Killer interface {
	Kill(pid int) error
}

// GroupKiller sends SIGKILL to the process group led by pid, falling back to
// the PID alone when it does not lead a group.
type GroupKiller struct{}

// NewGroupKiller returns the default Killer.
func NewGroupKiller() *GroupKiller {
	return &GroupKiller{}
}

func (GroupKiller) Kill(pid int) error {
	if pid <= 0 {
		return unix.EINVAL
	}
	err := unix.Kill(-pid, unix.SIGKILL)
	if err == nil {
		return nil
	}
	if errors.Is(err, unix.ESRCH) || errors.Is(err, unix.EPERM) {
		return unix.Kill(pid, unix.SIGKILL)
	}
	return err
}

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
