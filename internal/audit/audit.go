// Package audit records security relevant file operations.
package audit

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"orgsafe/internal/logging"
	"orgsafe/pkg/fileops"
)

// Outcome of an audited operation.
type Outcome string

const (
	OutcomeStart   Outcome = "start"
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is one audit record.
type Event struct {
	Operation string
	Path      string
	Outcome   Outcome
	Context   map[string]any
	Time      time.Time
}

// Sink accepts audit events. Implementations must be safe for concurrent use.
type Sink interface {
	Record(event Event)
}

// LogSink writes events through the application logger after redaction.
type LogSink struct {
	logger *logging.AppLogger
	home   string
}

// NewLogSink creates a sink logging at info level, failures at warn level.
func NewLogSink(logger *logging.AppLogger) *LogSink {
	if logger == nil {
		logger = logging.Discard()
	}
	home, _ := os.UserHomeDir()
	return &LogSink{logger: logger.With("component", "audit"), home: home}
}

// Record implements Sink.
func (s *LogSink) Record(event Event) {
	event = Redact(event, s.home)

	keyvals := []interface{}{
		"op", event.Operation,
		"path", event.Path,
		"outcome", string(event.Outcome),
	}
	for _, key := range slices.Sorted(maps.Keys(event.Context)) {
		keyvals = append(keyvals, key, event.Context[key])
	}

	if event.Outcome == OutcomeFailure {
		s.logger.Warn("audit", keyvals...)
		return
	}
	s.logger.Info("audit", keyvals...)
}

// Redact returns a copy of event with sensitive paths masked, the home
// directory shortened to "~" and payload fields summarized.
func Redact(event Event, home string) Event {
	event.Path = RedactPath(event.Path, home)
	if event.Context == nil {
		return event
	}

	cloned := make(map[string]any, len(event.Context))
	for key, value := range event.Context {
		switch key {
		case "content", "data":
			cloned[key] = summarize(value)
		default:
			if s, ok := value.(string); ok && looksLikePath(s) {
				cloned[key] = RedactPath(s, home)
			} else {
				cloned[key] = value
			}
		}
	}
	event.Context = cloned
	return event
}

// RedactPath masks the base name of sensitive paths and replaces a leading
// home directory with "~".
func RedactPath(path, home string) string {
	if path == "" {
		return path
	}
	if fileops.IsSensitivePath(path) {
		path = filepath.Join(filepath.Dir(path), "[REDACTED]")
	}
	if home != "" && fileops.IsWithin(home, path) {
		rel, err := filepath.Rel(home, path)
		if err == nil {
			if rel == "." {
				return "~"
			}
			return "~" + string(filepath.Separator) + rel
		}
	}
	return path
}

func looksLikePath(s string) bool {
	return filepath.IsAbs(s) || strings.HasPrefix(s, "~")
}

func summarize(value any) string {
	switch v := value.(type) {
	case string:
		return fmt.Sprintf("<redacted:%d>", len(v))
	case []byte:
		return fmt.Sprintf("<redacted:%d>", len(v))
	default:
		return "<redacted>"
	}
}

// MemorySink keeps events in memory. Tests use it to assert on audit trails.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// Record implements Sink.
func (m *MemorySink) Record(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

// Events returns a copy of the recorded events.
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Record(Event) {}
