//go:build !windows
// +build !windows

package dispatch

import "os/exec"

// ShellRunner executes command lines through the system shell.
type ShellRunner struct{}

func (ShellRunner) Run(command string) ([]byte, error) {
	return exec.Command("sh", "-c", command).CombinedOutput()
}
