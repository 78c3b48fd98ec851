//go:build !unix

package runner

import (
	"os/exec"
	"strconv"
)

func configureProcAttr(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func signalName(sig int) string {
	return "signal " + strconv.Itoa(sig)
}
