package log

import "go.uber.org/zap"

// LeveledLogger adapts the global zap logger to the key/value logger interface of http clients
// such as go-retryablehttp. Info messages are logged at debug level.
type LeveledLogger struct {
	log *zap.SugaredLogger
}

func NewLeveledLogger(name string) *LeveledLogger {
	return &LeveledLogger{log: zap.S().Named(name)}
}

func (l *LeveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, keysAndValues...)
}

func (l *LeveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l *LeveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l *LeveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warnw(msg, keysAndValues...)
}
