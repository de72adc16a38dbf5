package logging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pion/logging"
)

// LevelTrace sits below debug for pion's chattiest output.
const LevelTrace = slog.LevelDebug - 4

// PionFactory routes pion's internal logging into slog.
type PionFactory struct {
	Logger *slog.Logger
}

// NewLogger implements logging.LoggerFactory.
func (f PionFactory) NewLogger(scope string) logging.LeveledLogger {
	base := f.Logger
	if base == nil {
		base = slog.Default()
	}
	return &pionLogger{l: base.With("component", "pion", "scope", scope)}
}

type pionLogger struct {
	l *slog.Logger
}

func (p *pionLogger) log(level slog.Level, msg string) {
	p.l.Log(context.Background(), level, msg)
}

func (p *pionLogger) logf(level slog.Level, format string, args ...interface{}) {
	if !p.l.Enabled(context.Background(), level) {
		return
	}
	p.l.Log(context.Background(), level, fmt.Sprintf(format, args...))
}

func (p *pionLogger) Trace(msg string)                          { p.log(LevelTrace, msg) }
func (p *pionLogger) Tracef(format string, args ...interface{}) { p.logf(LevelTrace, format, args...) }
func (p *pionLogger) Debug(msg string)                          { p.log(slog.LevelDebug, msg) }
func (p *pionLogger) Debugf(format string, args ...interface{}) { p.logf(slog.LevelDebug, format, args...) }
func (p *pionLogger) Info(msg string)                           { p.log(slog.LevelInfo, msg) }
func (p *pionLogger) Infof(format string, args ...interface{})  { p.logf(slog.LevelInfo, format, args...) }
func (p *pionLogger) Warn(msg string)                           { p.log(slog.LevelWarn, msg) }
func (p *pionLogger) Warnf(format string, args ...interface{})  { p.logf(slog.LevelWarn, format, args...) }
func (p *pionLogger) Error(msg string)                          { p.log(slog.LevelError, msg) }
func (p *pionLogger) Errorf(format string, args ...interface{}) { p.logf(slog.LevelError, format, args...) }
