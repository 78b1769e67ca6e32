package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// AppLogger is the structured logger handed to every service. It is built
// once in main and passed down explicitly.
type AppLogger struct {
	logger *log.Logger
	debug  bool
	closer io.Closer
}

// Options controls how New builds a logger.
type Options struct {
	// Verbose enables debug level output with caller information.
	Verbose bool
	// LogFile, when set, receives log output instead of Writer. The file is
	// truncated on open.
	LogFile string
	// Writer defaults to os.Stderr.
	Writer io.Writer
}

// NewAppLogger builds a logger from the environment: DEBUG enables debug
// output, ORGSAFE_LOG_FILE redirects it to a file.
func NewAppLogger() (*AppLogger, error) {
	return New(Options{
		Verbose: os.Getenv("DEBUG") != "",
		LogFile: os.Getenv("ORGSAFE_LOG_FILE"),
	})
}

// New builds a logger from explicit options.
func New(opts Options) (*AppLogger, error) {
	out := opts.Writer
	if out == nil {
		out = os.Stderr
	}

	var closer io.Closer
	if opts.LogFile != "" {
		logFile, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = logFile
		closer = logFile
	}

	var logger *log.Logger
	if opts.Verbose {
		logger = log.NewWithOptions(out, log.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.Kitchen,
			Prefix:          "orgsafe",
		})
		logger.SetLevel(log.DebugLevel)
		logger.Debug("Debug logging enabled", "log_file", opts.LogFile)
	} else {
		logger = log.NewWithOptions(out, log.Options{
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          "orgsafe",
		})
		logger.SetLevel(log.WarnLevel)
	}

	return &AppLogger{
		logger: logger,
		debug:  opts.Verbose,
		closer: closer,
	}, nil
}

// Close releases the log file, if any.
func (al *AppLogger) Close() error {
	if al.closer == nil {
		return nil
	}
	err := al.closer.Close()
	al.closer = nil
	return err
}

// Discard returns a logger that drops everything. Useful as a default for
// optional logger arguments.
func Discard() *AppLogger {
	logger := log.NewWithOptions(io.Discard, log.Options{})
	logger.SetLevel(log.FatalLevel)
	return &AppLogger{logger: logger}
}

// With returns a child logger that always carries keyvals.
func (al *AppLogger) With(keyvals ...interface{}) *AppLogger {
	return &AppLogger{
		logger: al.logger.With(keyvals...),
		debug:  al.debug,
	}
}

func (al *AppLogger) Info(msg string, keyvals ...interface{}) {
	al.logger.Info(msg, keyvals...)
}

func (al *AppLogger) Warn(msg string, keyvals ...interface{}) {
	al.logger.Warn(msg, keyvals...)
}

func (al *AppLogger) Error(msg string, keyvals ...interface{}) {
	al.logger.Error(msg, keyvals...)
}

func (al *AppLogger) Debug(msg string, keyvals ...interface{}) {
	if al.debug {
		al.logger.Debug(msg, keyvals...)
	}
}

// DebugObject dumps any value at debug level.
func (al *AppLogger) DebugObject(name string, obj interface{}) {
	if al.debug {
		al.logger.Debug("Object dump", "name", name, "object", fmt.Sprintf("%+v", obj))
	}
}

// LogPerformance logs how long operation took since start.
func (al *AppLogger) LogPerformance(operation string, start time.Time) {
	if al.debug {
		al.logger.Debug("Performance",
			"operation", operation,
			"duration", time.Since(start),
		)
	}
}

// Testing Helper - NewTestLogger creates a logger that writes to a buffer for testing
func NewTestLogger() (*AppLogger, *bytes.Buffer) {
	var buf bytes.Buffer

	logger := log.NewWithOptions(&buf, log.Options{
		ReportTimestamp: false, // Easier to test without timestamps
		ReportCaller:    false,
		Prefix:          "Test",
	})
	logger.SetLevel(log.DebugLevel)

	return &AppLogger{
		logger: logger,
		debug:  true,
	}, &buf
}
