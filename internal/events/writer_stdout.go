package events

import (
	"context"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"go.uber.org/zap"
)

// StdoutWriter logs events, used in development.
type StdoutWriter struct{}

func (s *StdoutWriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	zap.S().Named("stdout_writer").Debugw("event written", "topic", topic, "type", e.Type(), "subject", e.Subject(), "data", string(e.Data()))
	return nil
}

func (s *StdoutWriter) Close(_ context.Context) error {
	return nil
}

type multiWriter struct {
	writers []Writer
}

// MultiWriter duplicates every event to all writers. The first error is returned after
// every writer was tried.
func MultiWriter(writers ...Writer) Writer {
	return &multiWriter{writers: writers}
}

func (m *multiWriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	var firstErr error
	for _, w := range m.writers {
		if err := w.Write(ctx, topic, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *multiWriter) Close(ctx context.Context) error {
	var firstErr error
	for _, w := range m.writers {
		if err := w.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
