package sysinfo

import (
	"net"
	"os"
	"os/user"
	"runtime"
	"strings"

	"ghostbeacon/pkg/shared"
)

// Collector produces the host snapshot sent on the first check-in. The engine
// only depends on this interface, so tests can substitute a fixed snapshot.
type Collector interface {
	Collect() (*shared.SystemInfo, error)
}

// SystemCollector reads the snapshot from the running host.
type SystemCollector struct{}

func (SystemCollector) Collect() (*shared.SystemInfo, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "/"
	}

	return &shared.SystemInfo{
		Hostname:     hostname,
		Username:     currentUsername(),
		OSName:       runtime.GOOS,
		OSVersion:    osVersion(),
		Architecture: runtime.GOARCH,
		PID:          os.Getpid(),
		CWD:          cwd,
		IPAddresses:  localAddresses(),
	}, nil
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if v := os.Getenv("USER"); v != "" {
		return v
	}
	return os.Getenv("USERNAME")
}

// localAddresses returns the host's non-loopback addresses, comma separated.
func localAddresses() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}

	var out []string
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		out = append(out, ipNet.IP.String())
	}

	return strings.Join(out, ",")
}
