package slotkv

import "github.com/unkn0wn-root/slotkv/log"

// Fields is a minimal structured field map for logs.
type Fields = log.Fields

// Logger is a tiny leveled logger. Provide an adapter around your logging stack
// (see log/zap, log/logrus, log/slog). If Logger is nil in Options, logging is disabled.
type Logger = log.Logger

type NopLogger = log.Nop
