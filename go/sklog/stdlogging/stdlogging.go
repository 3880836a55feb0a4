// Package stdlogging implements sklogimpl.Logger and logs to either stderr or stdout.
package stdlogging

import (
	logger "github.com/jcgregorio/logger"
	"go.skia.org/culprit/go/sklog/sklogimpl"
)

type stdlog struct {
	logger *logger.Logger
}

// New returns a sklogimpl.Logger that writes to a SyncWriter, such as
// os.Stdout or os.Stderr.
func New(dst logger.SyncWriter, includeDebug bool) sklogimpl.Logger {
	return &stdlog{
		logger: logger.NewFromOptions(&logger.Options{
			SyncWriter:   dst,
			DepthDelta:   3,
			IncludeDebug: includeDebug,
		}),
	}
}

// Log implements sklogimpl.Logger.
func (s stdlog) Log(_ int, severity sklogimpl.Severity, format string, args ...interface{}) {
	type logFuncs struct {
		plain     func(...interface{})
		formatted func(string, ...interface{})
	}
	var f logFuncs
	switch severity {
	case sklogimpl.Debug:
		f = logFuncs{s.logger.Debug, s.logger.Debugf}
	case sklogimpl.Info:
		f = logFuncs{s.logger.Info, s.logger.Infof}
	case sklogimpl.Warning:
		f = logFuncs{s.logger.Warning, s.logger.Warningf}
	case sklogimpl.Fatal:
		f = logFuncs{s.logger.Fatal, s.logger.Fatalf}
	default:
		f = logFuncs{s.logger.Error, s.logger.Errorf}
	}
	if format == "" {
		f.plain(args...)
	} else {
		f.formatted(format, args...)
	}
}

// Flush implements sklogimpl.Logger.
func (s stdlog) Flush() {}
