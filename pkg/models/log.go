package models

import "fmt"

// LogLevel is the severity of a log entry.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Valid reports whether l is a known level.
func (l LogLevel) Valid() bool {
	switch l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return true
	}
	return false
}

// LevelValidator returns an error for unknown levels.
func LevelValidator(l LogLevel) error {
	if !l.Valid() {
		return fmt.Errorf("invalid log level: %q", l)
	}
	return nil
}

// LogEntry is one entry in an agent's bounded log ring. ID, Timestamp,
// and Sequence are assigned by the registry at append time; producer
// timestamps are kept in Metadata under "client_time" for forensics.
type LogEntry struct {
	ID        string         `json:"id"`
	Timestamp string         `json:"timestamp"` // RFC3339Nano, strictly increasing per agent
	Sequence  int64          `json:"sequence"`
	Level     LogLevel       `json:"level"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
