//go:build !windows

package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// groupTerminator signals the process group the shell leads.
type groupTerminator struct{}

func newTerminator() Terminator {
	return groupTerminator{}
}

func shellCommand(command string) *exec.Cmd {
	return exec.Command("sh", "-c", command)
}

// configure starts the shell in its own process group so its children can
// be signalled together.
func configure(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

func (groupTerminator) Terminate(proc *os.Process, exited <-chan struct{}, grace time.Duration) error {
	// The shell leads its own group, so the group id is its pid.
	pgid := proc.Pid

	if err := unix.Kill(-pgid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return fmt.Errorf("sigterm group %d: %w", pgid, err)
	}

	select {
	case <-exited:
		// The shell is gone but descendants may still be running.
		_ = unix.Kill(-pgid, unix.SIGKILL)
		return nil
	case <-time.After(grace):
	}

	if err := unix.Kill(-pgid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("sigkill group %d: %w", pgid, err)
	}

	return nil
}
