package core

import (
	"go.uber.org/zap"
)

// ConfigLogger is the key under which a configured Logger is stashed in a facts/config map,
// mirroring the teacher's convention of addressing cross-cutting collaborators by a constant
// string key.
const ConfigLogger = "Core.Logger"

// Logger defines the output interface used throughout the engine. The shape is carried
// verbatim from the teacher (Info/Warn/Error/Critical, each with an -f variant); only the
// default implementation's backing store changes, from the standard log package to
// go.uber.org/zap's structured logger.
type Logger interface {
	Info(...interface{})
	Infof(string, ...interface{})
	Warn(...interface{})
	Warnf(string, ...interface{})
	Error(...interface{})
	Errorf(string, ...interface{})
	Critical(...interface{})
	Criticalf(string, ...interface{})
}

// DefaultLogger is the default Logger, backed by a zap.SugaredLogger so callers keep the
// printf-style API while output gains structured fields (timestamp, level, caller) for free.
type DefaultLogger struct {
	sugar *zap.SugaredLogger
}

// NewLogger builds a production zap configuration (JSON to stderr, epoch-seconds timestamps) and
// wraps it as the default Logger. Falls back to a no-op logger if zap construction fails,
// which only happens on a malformed encoder config and should never occur with the defaults
// used here.
func NewLogger() *DefaultLogger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		logger = zap.NewNop()
	}
	return &DefaultLogger{sugar: logger.Sugar()}
}

// NewLoggerWith wraps a caller-supplied *zap.Logger, e.g. one pre-configured with additional
// fields (run_id, path) via With().
func NewLoggerWith(z *zap.Logger) *DefaultLogger {
	return &DefaultLogger{sugar: z.Sugar()}
}

// With returns a new Logger with the given structured key/value pairs attached to every
// subsequent message, e.g. NewLogger().With("tool", name, "run_id", id).
func (d *DefaultLogger) With(keysAndValues ...interface{}) *DefaultLogger {
	return &DefaultLogger{sugar: d.sugar.With(keysAndValues...)}
}

// Info logs at info level.
func (d *DefaultLogger) Info(v ...interface{}) { d.sugar.Info(v...) }

// Infof logs at info level with printf-style formatting.
func (d *DefaultLogger) Infof(f string, v ...interface{}) { d.sugar.Infof(f, v...) }

// Warn logs at warn level.
func (d *DefaultLogger) Warn(v ...interface{}) { d.sugar.Warn(v...) }

// Warnf logs at warn level with printf-style formatting.
func (d *DefaultLogger) Warnf(f string, v ...interface{}) { d.sugar.Warnf(f, v...) }

// Error logs at error level.
func (d *DefaultLogger) Error(v ...interface{}) { d.sugar.Error(v...) }

// Errorf logs at error level with printf-style formatting.
func (d *DefaultLogger) Errorf(f string, v ...interface{}) { d.sugar.Errorf(f, v...) }

// Critical logs at error level and additionally captures a stacktrace field, mirroring the
// teacher's Critical/Criticalf (which appended a manually-captured stack to a plain log line;
// zap's zap.Stack field does the same job structurally).
func (d *DefaultLogger) Critical(v ...interface{}) {
	d.sugar.Desugar().With(zapStack()).Sugar().Error(v...)
}

// Criticalf logs at error level with printf-style formatting and a stacktrace field.
func (d *DefaultLogger) Criticalf(f string, v ...interface{}) {
	d.sugar.Desugar().With(zapStack()).Sugar().Errorf(f, v...)
}

func zapStack() zap.Field {
	return zap.Stack("stacktrace")
}

// Sync flushes any buffered log entries; callers should defer this at shutdown.
func (d *DefaultLogger) Sync() error {
	return d.sugar.Sync()
}
