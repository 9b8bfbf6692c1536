// Package logging writes component logs for an autopilot run to a run-specific
// file in ~/.autopilot/logs/.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Level is a log verbosity threshold.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int32(l))
	}
}

// ParseLevel parses "debug", "info", "warn" or "error" (case-insensitive).
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger provides leveled logging for autopilot components. All loggers of a
// run append to the same file, each line tagged with its component.
type Logger struct {
	runID     string
	component string
	file      *os.File
	logger    *log.Logger
	mu        sync.Mutex
	logPath   string
	closeOnce sync.Once
}

var (
	// Run ID shared by every logger of this process
	runID     string
	runIDOnce sync.Once

	// logDir is the directory where log files are stored
	logDir string

	// initOnce ensures directory initialization happens once
	initOnce sync.Once

	// initErr stores any error from directory initialization
	initErr error

	// threshold is the minimum level written by every logger
	threshold atomic.Int32
)

func init() {
	threshold.Store(int32(LevelInfo))
}

// SetLevel sets the minimum level written by every logger.
func SetLevel(level Level) {
	threshold.Store(int32(level))
}

// CurrentLevel returns the minimum level written by every logger.
func CurrentLevel() Level {
	return Level(threshold.Load())
}

func getRunID() string {
	runIDOnce.Do(func() {
		runID = uuid.New().String()
	})
	return runID
}

// initLogDirectory ensures the log directory exists. A directory set by
// SetDirectory before the first logger is created takes precedence.
func initLogDirectory() error {
	initOnce.Do(func() {
		if logDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				initErr = fmt.Errorf("failed to get home directory: %w", err)
				return
			}
			logDir = filepath.Join(homeDir, ".autopilot", "logs")
		}
		if err := os.MkdirAll(logDir, 0750); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
			return
		}
	})
	return initErr
}

// SetDirectory overrides the log directory. It only has an effect before the
// first logger is created.
func SetDirectory(dir string) {
	logDir = dir
}

// NewLogger creates a new logger for a specific component.
// The logger writes to ~/.autopilot/logs/<run-id>-autopilot.log
//
// If the log directory cannot be created or the log file cannot be opened,
// it returns a fallback logger that writes to stderr along with the error.
func NewLogger(component string) (*Logger, error) {
	if err := initLogDirectory(); err != nil {
		return newFallbackLogger(component, err), err
	}

	id := getRunID()
	logPath := filepath.Join(logDir, fmt.Sprintf("%s-autopilot.log", id))

	// Append mode: several components share the run's file
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		err = fmt.Errorf("failed to open log file: %w", err)
		return newFallbackLogger(component, err), err
	}

	return &Logger{
		runID:     id,
		component: component,
		file:      file,
		logger:    log.New(file, "", 0),
		logPath:   logPath,
	}, nil
}

// NewWriterLogger creates a logger writing to w instead of the run file.
func NewWriterLogger(component string, w io.Writer) *Logger {
	return &Logger{
		runID:     getRunID(),
		component: component,
		logger:    log.New(w, "", 0),
	}
}

// newFallbackLogger creates a logger that writes to stderr when file logging fails
func newFallbackLogger(component string, err error) *Logger {
	l := NewWriterLogger(component, os.Stderr)
	l.log(LevelWarn, "failed to initialize file logging, falling back to stderr: %v", err)
	return l
}

// formatLogEntry creates a log line with timestamp, component, and level
func (l *Logger) formatLogEntry(level Level, message string) string {
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	return fmt.Sprintf("[%s] [%s] [%s] %s", timestamp, l.component, level, message)
}

func (l *Logger) log(level Level, format string, v ...interface{}) {
	if level < CurrentLevel() {
		return
	}
	entry := l.formatLogEntry(level, fmt.Sprintf(format, v...))

	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Println(entry)
}

// Printf logs a formatted message at info level
func (l *Logger) Printf(format string, v ...interface{}) {
	l.log(LevelInfo, format, v...)
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.log(LevelDebug, format, v...)
}

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) {
	l.log(LevelInfo, format, v...)
}

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.log(LevelWarn, format, v...)
}

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.log(LevelError, format, v...)
}

// RunID returns the current run ID
func (l *Logger) RunID() string {
	return l.runID
}

// LogPath returns the path to the log file, empty when not logging to a file
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}

// GetRunID returns the current global run ID
func GetRunID() string {
	return getRunID()
}

// GetLogDirectory returns the directory where logs are stored
func GetLogDirectory() (string, error) {
	if err := initLogDirectory(); err != nil {
		return "", err
	}
	return logDir, nil
}
