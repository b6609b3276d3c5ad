package logrus

import (
	"github.com/sirupsen/logrus"

	kvlog "github.com/unkn0wn-root/slotkv/log"
)

var _ kvlog.Logger = LogrusLogger{}

// LogrusLogger forwards slotkv logs to a logrus entry.
type LogrusLogger struct{ E *logrus.Entry }

// New wraps a logrus logger; a nil logger uses logrus.StandardLogger.
func New(l *logrus.Logger) LogrusLogger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return LogrusLogger{E: logrus.NewEntry(l).WithField("lib", "slotkv")}
}

func (l LogrusLogger) Debug(msg string, f kvlog.Fields) { l.E.WithFields(logrus.Fields(f)).Debug(msg) }
func (l LogrusLogger) Info(msg string, f kvlog.Fields)  { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l LogrusLogger) Warn(msg string, f kvlog.Fields)  { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l LogrusLogger) Error(msg string, f kvlog.Fields) { l.E.WithFields(logrus.Fields(f)).Error(msg) }
