package logging

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
)

// Level represents logging severity.
type Level int32

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

var (
	currentLevel     atomic.Int32
	currentVerbosity atomic.Int32
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
	currentLevel.Store(int32(LevelWarn))
}

// SetVerbosity configures logger output from count of -v flags (0-4).
// Engines log from ticker goroutines, so level state is atomic.
func SetVerbosity(count int) {
	if count < 0 {
		count = 0
	}
	if count > 4 {
		count = 4
	}
	currentVerbosity.Store(int32(count))
	switch count {
	case 0:
		currentLevel.Store(int32(LevelWarn))
	case 1:
		currentLevel.Store(int32(LevelInfo))
	case 2:
		currentLevel.Store(int32(LevelDebug))
	default:
		currentLevel.Store(int32(LevelTrace))
	}
}

// Verbosity returns the stored -v count.
func Verbosity() int {
	return int(currentVerbosity.Load())
}

// LevelName returns current level label.
func LevelName() string {
	return LevelToString(Level(currentLevel.Load()))
}

// LevelToString converts a Level to human readable text.
func LevelToString(l Level) string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarn:
		return "warn"
	case LevelInfo:
		return "info"
	case LevelDebug:
		return "debug"
	case LevelTrace:
		return "trace"
	default:
		return "unknown"
	}
}

// ParseLevel returns Level + verbosity count from string.
func ParseLevel(s string) (Level, int, error) {
	switch strings.ToLower(s) {
	case "error":
		return LevelError, 0, nil
	case "warn", "warning":
		return LevelWarn, 0, nil
	case "info":
		return LevelInfo, 1, nil
	case "debug":
		return LevelDebug, 2, nil
	case "trace":
		return LevelTrace, 4, nil
	default:
		return LevelWarn, Verbosity(), fmt.Errorf("unknown level %s", s)
	}
}

func shouldLog(l Level) bool {
	return l <= Level(currentLevel.Load())
}

func logf(l Level, prefix, component, format string, args ...any) {
	if !shouldLog(l) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if component != "" {
		log.Printf("[%s] %s: %s", strings.ToUpper(prefix), component, msg)
		return
	}
	log.Printf("[%s] %s", strings.ToUpper(prefix), msg)
}

// Errorf always prints.
func Errorf(format string, args ...any) {
	logf(LevelError, "err", "", format, args...)
}

func Warnf(format string, args ...any) {
	logf(LevelWarn, "warn", "", format, args...)
}

func Infof(format string, args ...any) {
	logf(LevelInfo, "info", "", format, args...)
}

func Debugf(format string, args ...any) {
	logf(LevelDebug, "dbg", "", format, args...)
}

func Tracef(format string, args ...any) {
	logf(LevelTrace, "trc", "", format, args...)
}

// Logger tags every line with a component name, e.g. "gate" or "playback".
type Logger struct {
	component string
}

// For returns a Logger for component.
func For(component string) Logger {
	return Logger{component: component}
}

func (l Logger) Errorf(format string, args ...any) {
	logf(LevelError, "err", l.component, format, args...)
}

func (l Logger) Warnf(format string, args ...any) {
	logf(LevelWarn, "warn", l.component, format, args...)
}

func (l Logger) Infof(format string, args ...any) {
	logf(LevelInfo, "info", l.component, format, args...)
}

func (l Logger) Debugf(format string, args ...any) {
	logf(LevelDebug, "dbg", l.component, format, args...)
}

func (l Logger) Tracef(format string, args ...any) {
	logf(LevelTrace, "trc", l.component, format, args...)
}
