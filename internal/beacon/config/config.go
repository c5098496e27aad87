package config

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultSleepInterval = 60
	DefaultJitterPercent = 10
	MaxJitterPercent     = 50

	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// ConfigError reports a bad or missing startup parameter. It is fatal: the
// process exits with status 1 before the loop starts.
type ConfigError struct {
	Param  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Param, e.Reason)
}

// Config holds the immutable run parameters for one beacon session.
type Config struct {
	ServerURL string
	Scheme    string
	Host      string
	Port      int
	Path      string

	BeaconID      string
	UserAgent     string
	SleepInterval int // seconds
	JitterPercent int
	VerifySSL     bool
	ProxyURL      string
}

// Parse builds a Config from command-line arguments (excluding the program
// name). The first argument is the required server URL; the rest are
// flag/value pairs, except --verify-ssl which takes no value.
func Parse(args []string) (*Config, error) {
	if len(args) < 1 || strings.HasPrefix(args[0], "--") {
		return nil, &ConfigError{Param: "server_url", Reason: "required"}
	}

	cfg := &Config{
		ServerURL:     args[0],
		UserAgent:     DefaultUserAgent,
		SleepInterval: DefaultSleepInterval,
		JitterPercent: DefaultJitterPercent,
	}

	for i := 1; i < len(args); i++ {
		flag := args[i]

		if flag == "--verify-ssl" {
			cfg.VerifySSL = true
			continue
		}

		if i+1 >= len(args) {
			return nil, &ConfigError{Param: flag, Reason: "missing value"}
		}
		value := args[i+1]
		i++

		switch flag {
		case "--sleep":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return nil, &ConfigError{Param: flag, Reason: "must be a positive number of seconds"}
			}
			cfg.SleepInterval = n
		case "--jitter":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, &ConfigError{Param: flag, Reason: "must be a percentage"}
			}
			cfg.JitterPercent = clampJitter(n)
		case "--user-agent":
			cfg.UserAgent = value
		case "--proxy":
			if _, err := url.Parse(value); err != nil {
				return nil, &ConfigError{Param: flag, Reason: "invalid proxy URL"}
			}
			cfg.ProxyURL = value
		case "--beacon-id":
			cfg.BeaconID = value
		default:
			return nil, &ConfigError{Param: flag, Reason: "unknown option"}
		}
	}

	if err := cfg.parseServerURL(); err != nil {
		return nil, err
	}

	if cfg.BeaconID == "" {
		cfg.BeaconID = uuid.NewString()
	}

	return cfg, nil
}

func clampJitter(pct int) int {
	if pct < 0 {
		return 0
	}
	if pct > MaxJitterPercent {
		return MaxJitterPercent
	}
	return pct
}

func (c *Config) parseServerURL() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return &ConfigError{Param: "server_url", Reason: "not a valid URL"}
	}

	switch u.Scheme {
	case "http", "https":
	default:
		return &ConfigError{Param: "server_url", Reason: "scheme must be http or https"}
	}
	if u.Hostname() == "" {
		return &ConfigError{Param: "server_url", Reason: "host required"}
	}

	c.Scheme = u.Scheme
	c.Host = u.Hostname()

	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return &ConfigError{Param: "server_url", Reason: "invalid port"}
		}
		c.Port = port
	} else if u.Scheme == "https" {
		c.Port = 443
	} else {
		c.Port = 80
	}

	c.Path = u.Path
	if c.Path == "" {
		c.Path = "/"
	}

	return nil
}

// Usage writes the command-line help block.
func Usage(w io.Writer, prog string) {
	fmt.Fprintf(w, "Usage: %s <server_url> [options]\n", prog)
	fmt.Fprintln(w, "Options:")
	fmt.Fprintln(w, "  --sleep <seconds>     Sleep interval (default: 60)")
	fmt.Fprintln(w, "  --jitter <percent>    Jitter percentage, max 50 (default: 10)")
	fmt.Fprintln(w, "  --user-agent <ua>     HTTP User-Agent string")
	fmt.Fprintln(w, "  --proxy <url>         Proxy URL")
	fmt.Fprintln(w, "  --verify-ssl          Verify SSL certificates")
	fmt.Fprintln(w, "  --beacon-id <id>      Custom beacon ID (generated if absent)")
}
