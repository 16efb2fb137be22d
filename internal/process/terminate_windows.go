//go:build windows

package process

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"
)

// taskkillTerminator stops the tree with taskkill, which has no polite
// phase; grace is unused.
type taskkillTerminator struct{}

func newTerminator() Terminator {
	return taskkillTerminator{}
}

func shellCommand(command string) *exec.Cmd {
	return exec.Command("cmd", "/C", command)
}

func configure(*exec.Cmd) {}

func (taskkillTerminator) Terminate(proc *os.Process, exited <-chan struct{}, _ time.Duration) error {
	select {
	case <-exited:
		return nil
	default:
	}

	out, err := exec.Command("taskkill", "/pid", strconv.Itoa(proc.Pid), "/T", "/F").CombinedOutput()
	if err != nil {
		return fmt.Errorf("taskkill %d: %w: %s", proc.Pid, err, out)
	}

	return nil
}
