package console

import (
	"errors"
	"os"
	"os/exec"
)

func setProcAttr(cmd *exec.Cmd) {}

func startPTY(cmd *exec.Cmd) (*os.File, error) {
	return nil, errors.New("pseudo-terminal mode is not supported on windows")
}

func terminate(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
