package config

import (
	"errors"
	"strings"
	"testing"
)

// TestParse_Defaults tests that a bare server URL yields the documented defaults
func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]string{"http://controller.example.com/checkin"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.SleepInterval != 60 {
		t.Errorf("Expected default sleep 60, got: %d", cfg.SleepInterval)
	}
	if cfg.JitterPercent != 10 {
		t.Errorf("Expected default jitter 10, got: %d", cfg.JitterPercent)
	}
	if cfg.UserAgent != DefaultUserAgent {
		t.Errorf("Expected default user agent, got: %s", cfg.UserAgent)
	}
	if cfg.VerifySSL {
		t.Error("Expected VerifySSL=false by default")
	}
	if cfg.BeaconID == "" {
		t.Error("Expected a generated beacon ID")
	}
	if cfg.Scheme != "http" || cfg.Host != "controller.example.com" || cfg.Port != 80 || cfg.Path != "/checkin" {
		t.Errorf("Unexpected URL parts: scheme=%s host=%s port=%d path=%s",
			cfg.Scheme, cfg.Host, cfg.Port, cfg.Path)
	}
}

// TestParse_URLForms tests scheme/port/path extraction for various URL shapes
func TestParse_URLForms(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		scheme string
		host   string
		port   int
		path   string
	}{
		{"https default port", "https://c2.example.com", "https", "c2.example.com", 443, "/"},
		{"http explicit port", "http://10.0.0.5:8080", "http", "10.0.0.5", 8080, "/"},
		{"https with path", "https://c2.example.com:8443/api/beacon", "https", "c2.example.com", 8443, "/api/beacon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]string{tt.url})
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if cfg.Scheme != tt.scheme || cfg.Host != tt.host || cfg.Port != tt.port || cfg.Path != tt.path {
				t.Errorf("got scheme=%s host=%s port=%d path=%s, want %s/%s/%d/%s",
					cfg.Scheme, cfg.Host, cfg.Port, cfg.Path,
					tt.scheme, tt.host, tt.port, tt.path)
			}
		})
	}
}

// TestParse_InvalidInput tests that bad startup parameters produce ConfigError
func TestParse_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no arguments", []string{}},
		{"flag before URL", []string{"--sleep", "10"}},
		{"bad scheme", []string{"ftp://host"}},
		{"no host", []string{"http://"}},
		{"bad sleep", []string{"http://host", "--sleep", "zero"}},
		{"zero sleep", []string{"http://host", "--sleep", "0"}},
		{"missing value", []string{"http://host", "--sleep"}},
		{"unknown flag", []string{"http://host", "--frequency", "10"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.args)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Errorf("Expected ConfigError, got: %T", err)
			}
		})
	}
}

// TestParse_JitterClamp tests that jitter above 50 is always clamped to 50
func TestParse_JitterClamp(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"0", 0},
		{"25", 25},
		{"50", 50},
		{"51", 50},
		{"100", 50},
		{"9999", 50},
		{"-5", 0},
	}

	for _, tt := range tests {
		cfg, err := Parse([]string{"http://host", "--jitter", tt.in})
		if err != nil {
			t.Fatalf("jitter=%s: unexpected error: %v", tt.in, err)
		}
		if cfg.JitterPercent != tt.want {
			t.Errorf("jitter=%s: expected %d, got %d", tt.in, tt.want, cfg.JitterPercent)
		}
	}
}

// TestParse_AllOptions tests a full command line
func TestParse_AllOptions(t *testing.T) {
	cfg, err := Parse([]string{
		"https://c2.example.com/b",
		"--sleep", "30",
		"--jitter", "20",
		"--user-agent", "curl/8.0",
		"--proxy", "http://proxy.local:3128",
		"--verify-ssl",
		"--beacon-id", "beacon-007",
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.SleepInterval != 30 || cfg.JitterPercent != 20 {
		t.Errorf("Unexpected timing: sleep=%d jitter=%d", cfg.SleepInterval, cfg.JitterPercent)
	}
	if cfg.UserAgent != "curl/8.0" {
		t.Errorf("Unexpected user agent: %s", cfg.UserAgent)
	}
	if cfg.ProxyURL != "http://proxy.local:3128" {
		t.Errorf("Unexpected proxy: %s", cfg.ProxyURL)
	}
	if !cfg.VerifySSL {
		t.Error("Expected VerifySSL=true")
	}
	if cfg.BeaconID != "beacon-007" {
		t.Errorf("Expected explicit beacon ID, got: %s", cfg.BeaconID)
	}
}

// TestUsage tests that the usage block names every option
func TestUsage(t *testing.T) {
	var sb strings.Builder
	Usage(&sb, "beacon")
	out := sb.String()

	for _, opt := range []string{"--sleep", "--jitter", "--user-agent", "--proxy", "--verify-ssl", "--beacon-id"} {
		if !strings.Contains(out, opt) {
			t.Errorf("Usage output missing %s", opt)
		}
	}
}
