package zap

import (
	"go.uber.org/zap"

	kvlog "github.com/unkn0wn-root/slotkv/log"
)

var _ kvlog.Logger = ZapLogger{}

// ZapLogger forwards slotkv logs to a *zap.Logger.
type ZapLogger struct{ L *zap.Logger }

// New wraps l, tagging every record with the component name.
func New(l *zap.Logger, component string) ZapLogger {
	if component != "" {
		l = l.With(zap.String("component", component))
	}
	return ZapLogger{L: l}
}

func (z ZapLogger) Debug(msg string, f kvlog.Fields) { z.L.Debug(msg, zf(f)...) }
func (z ZapLogger) Info(msg string, f kvlog.Fields)  { z.L.Info(msg, zf(f)...) }
func (z ZapLogger) Warn(msg string, f kvlog.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z ZapLogger) Error(msg string, f kvlog.Fields) { z.L.Error(msg, zf(f)...) }

func zf(f kvlog.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}
