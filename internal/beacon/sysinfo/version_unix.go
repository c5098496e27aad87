//go:build !windows
// +build !windows

package sysinfo

import (
	"os"
	"strings"
)

// osVersion reports the kernel release on Unix-like systems.
func osVersion() string {
	if data, err := os.ReadFile("/proc/sys/kernel/osrelease"); err == nil {
		return strings.TrimSpace(string(data))
	}
	return "unknown"
}
