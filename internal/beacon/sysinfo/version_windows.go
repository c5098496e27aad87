//go:build windows
// +build windows

package sysinfo

import (
	"os/exec"
	"strings"
)

// osVersion reports the Windows version string.
func osVersion() string {
	out, err := exec.Command("cmd", "/c", "ver").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}
