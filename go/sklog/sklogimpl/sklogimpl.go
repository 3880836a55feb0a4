// Package sklogimpl holds the pluggable logger behind the sklog functions.
package sklogimpl

import (
	"fmt"
	"sync"
)

// Severity of a log line.
type Severity int

const (
	Debug Severity = iota
	Info
	Warning
	Error
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	case Fatal:
		return "FATAL"
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// Logger is implemented by every log destination.
type Logger interface {
	// Log writes a single line. If format is empty the args are joined with
	// fmt.Sprint, otherwise fmt.Sprintf is used. depth is the number of stack
	// frames between the caller of sklog and Log.
	Log(depth int, severity Severity, format string, args ...interface{})

	// Flush writes out any buffered lines.
	Flush()
}

var (
	mtx    sync.RWMutex
	logger Logger
)

// SetLogger replaces the active logger.
func SetLogger(l Logger) {
	mtx.Lock()
	defer mtx.Unlock()
	logger = l
}

// Log sends a line to the active logger.
func Log(depth int, severity Severity, format string, args ...interface{}) {
	mtx.RLock()
	l := logger
	mtx.RUnlock()
	if l == nil {
		return
	}
	l.Log(depth+1, severity, format, args...)
}

// Flush flushes the active logger.
func Flush() {
	mtx.RLock()
	l := logger
	mtx.RUnlock()
	if l != nil {
		l.Flush()
	}
}
