package peer

import (
	"fmt"
	"log/slog"

	"github.com/pion/logging"
)

// slogLoggerFactory routes pion's internal logging through slog so ICE and
// DTLS noise lands in the same stream as everything else.
type slogLoggerFactory struct{}

func (slogLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &slogLeveledLogger{scope: scope}
}

type slogLeveledLogger struct {
	scope string
}

func (l *slogLeveledLogger) Trace(msg string) { slog.Debug(msg, "pion_scope", l.scope) }
func (l *slogLeveledLogger) Tracef(format string, args ...any) {
	slog.Debug(fmt.Sprintf(format, args...), "pion_scope", l.scope)
}

func (l *slogLeveledLogger) Debug(msg string) { slog.Debug(msg, "pion_scope", l.scope) }
func (l *slogLeveledLogger) Debugf(format string, args ...any) {
	slog.Debug(fmt.Sprintf(format, args...), "pion_scope", l.scope)
}

func (l *slogLeveledLogger) Info(msg string) { slog.Info(msg, "pion_scope", l.scope) }
func (l *slogLeveledLogger) Infof(format string, args ...any) {
	slog.Info(fmt.Sprintf(format, args...), "pion_scope", l.scope)
}

func (l *slogLeveledLogger) Warn(msg string) { slog.Warn(msg, "pion_scope", l.scope) }
func (l *slogLeveledLogger) Warnf(format string, args ...any) {
	slog.Warn(fmt.Sprintf(format, args...), "pion_scope", l.scope)
}

func (l *slogLeveledLogger) Error(msg string) { slog.Error(msg, "pion_scope", l.scope) }
func (l *slogLeveledLogger) Errorf(format string, args ...any) {
	slog.Error(fmt.Sprintf(format, args...), "pion_scope", l.scope)
}
