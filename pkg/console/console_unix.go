//go:build !windows
// +build !windows

package console

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// setProcAttr puts the console in its own process group, so that the
// helper processes it spawns (hw_server, the TCF agents) can be signalled
// together with it.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// startPTY starts cmd attached to a new pseudo-terminal. The child becomes
// a session leader, so its pid is also its process group id.
func startPTY(cmd *exec.Cmd) (*os.File, error) {
	return pty.Start(cmd)
}

func terminate(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return unix.Kill(-cmd.Process.Pid, unix.SIGTERM)
}
