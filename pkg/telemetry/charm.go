package telemetry

import (
	"os"

	"github.com/charmbracelet/log"
)

// CharmLogger backs Logger with charmbracelet/log, giving the core leveled,
// colorized, key=value terminal output matching the style used by the
// robot-facing CLIs this module was modeled on.
type CharmLogger struct {
	inner *log.Logger
}

// NewCharmLogger builds a CharmLogger writing to stderr with the given
// minimum level ("debug", "info", "warn", "error"; defaults to info).
func NewCharmLogger(prefix string, level string) *CharmLogger {
	l := log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          prefix,
		ReportTimestamp: true,
	})
	l.SetLevel(parseLevel(level))
	return &CharmLogger{inner: l}
}

func parseLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

func (c *CharmLogger) Debug(msg string, args ...interface{}) { c.inner.Debug(msg, args...) }
func (c *CharmLogger) Info(msg string, args ...interface{})  { c.inner.Info(msg, args...) }
func (c *CharmLogger) Warn(msg string, args ...interface{})  { c.inner.Warn(msg, args...) }
func (c *CharmLogger) Error(msg string, args ...interface{}) { c.inner.Error(msg, args...) }
