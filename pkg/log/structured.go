package log

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

// RequestIDKey is the context key under which the http layer stores the request id.
const RequestIDKey contextKey = "request_id"

// StructuredLogger traces service operations: one builder per call, steps and an outcome.
type StructuredLogger struct {
	name  string
	level zapcore.Level
}

// NewDebugLogger returns a logger tracing operations at debug level. Errors are always
// logged at error level.
func NewDebugLogger(name string) *StructuredLogger {
	return &StructuredLogger{name: name, level: zapcore.DebugLevel}
}

func (l *StructuredLogger) WithContext(ctx context.Context) *OperationBuilder {
	b := &OperationBuilder{logger: l}
	if ctx != nil {
		if id, ok := ctx.Value(RequestIDKey).(string); ok && id != "" {
			b.fields = append(b.fields, "request_id", id)
		}
	}
	return b
}

type OperationBuilder struct {
	logger    *StructuredLogger
	operation string
	fields    []any
}

func (b *OperationBuilder) Operation(name string) *OperationBuilder {
	b.operation = name
	return b
}

func (b *OperationBuilder) WithParam(key string, value any) *OperationBuilder {
	b.fields = append(b.fields, key, value)
	return b
}

func (b *OperationBuilder) WithString(key, value string) *OperationBuilder {
	return b.WithParam(key, value)
}

func (b *OperationBuilder) Build() *Tracer {
	fields := append([]any{"operation", b.operation}, b.fields...)
	return &Tracer{
		log:   zap.S().Named(b.logger.name).With(fields...),
		level: b.logger.level,
		start: time.Now(),
	}
}

type Tracer struct {
	log   *zap.SugaredLogger
	level zapcore.Level
	start time.Time
}

func (t *Tracer) Step(name string) *Event {
	return &Event{tracer: t, level: t.level, msg: "step", fields: []any{"step", name}}
}

func (t *Tracer) Success() *Event {
	return &Event{tracer: t, level: t.level, msg: "success", fields: []any{"duration", time.Since(t.start)}}
}

func (t *Tracer) Error(err error) *Event {
	return &Event{tracer: t, level: zapcore.ErrorLevel, msg: "failed", fields: []any{"error", err, "duration", time.Since(t.start)}}
}

type Event struct {
	tracer *Tracer
	level  zapcore.Level
	msg    string
	fields []any
}

func (e *Event) WithParam(key string, value any) *Event {
	e.fields = append(e.fields, key, value)
	return e
}

func (e *Event) WithString(key, value string) *Event {
	return e.WithParam(key, value)
}

func (e *Event) WithInt(key string, value int) *Event {
	return e.WithParam(key, value)
}

func (e *Event) WithBool(key string, value bool) *Event {
	return e.WithParam(key, value)
}

func (e *Event) Log() {
	if e.level >= zapcore.ErrorLevel {
		e.tracer.log.Errorw(e.msg, e.fields...)
		return
	}
	if e.level == zapcore.InfoLevel {
		e.tracer.log.Infow(e.msg, e.fields...)
		return
	}
	e.tracer.log.Debugw(e.msg, e.fields...)
}
