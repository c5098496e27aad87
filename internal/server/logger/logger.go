package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// Level controls which messages are emitted
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Category tags each message with the subsystem it came from
type Category string

const (
	CategoryStartup    Category = "STARTUP"
	CategoryBeacon     Category = "BEACON"
	CategoryCommand    Category = "COMMAND"
	CategoryResult     Category = "RESULT"
	CategoryStorage    Category = "STORAGE"
	CategoryDatabase   Category = "DATABASE"
	CategoryWebSocket  Category = "WEBSOCKET"
	CategoryBackground Category = "BACKGROUND"
	CategoryCleanup    Category = "CLEANUP"
	CategoryAPI        Category = "API"
	CategorySync       Category = "SYNC"
	CategorySuccess    Category = "SUCCESS"
	CategoryWarning    Category = "WARNING"
	CategoryError      Category = "ERROR"
)

// Logger writes leveled, categorized log lines
type Logger struct {
	level Level
	mu    sync.Mutex
	out   *os.File
}

// New creates a logger from a level name ("debug", "info", "warn", "error").
// Unknown names default to info.
func New(levelName string) *Logger {
	return &Logger{
		level: parseLevel(levelName),
		out:   os.Stdout,
	}
}

func parseLevel(name string) Level {
	switch strings.ToLower(name) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l *Logger) write(level Level, levelTag string, cat Category, format string, args ...interface{}) {
	if level < l.level {
		return
	}

	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("%s %-5s [%s] %s\n",
		time.Now().Format("2006-01-02 15:04:05"), levelTag, cat, msg)

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.WriteString(line)
}

// Debug logs a debug-level message
func (l *Logger) Debug(cat Category, format string, args ...interface{}) {
	l.write(LevelDebug, "DEBUG", cat, format, args...)
}

// Info logs an info-level message
func (l *Logger) Info(cat Category, format string, args ...interface{}) {
	l.write(LevelInfo, "INFO", cat, format, args...)
}

// Warn logs a warning-level message
func (l *Logger) Warn(cat Category, format string, args ...interface{}) {
	l.write(LevelWarn, "WARN", cat, format, args...)
}

// Error logs an error-level message
func (l *Logger) Error(cat Category, format string, args ...interface{}) {
	l.write(LevelError, "ERROR", cat, format, args...)
}
