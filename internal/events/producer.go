package events

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/maptoposter/poster-api/internal/jobs"
)

const (
	JobUpdateKind string = "maptoposter.jobs.update"
	defaultTopic  string = "maptoposter.jobs"
	defaultSource string = "maptoposter.poster-api"
)

// Writer is the interface to be implemented by the underlying writer.
type Writer interface {
	Write(ctx context.Context, topic string, e cloudevents.Event) error
	Close(ctx context.Context) error
}

// EventProducer is a wrapper around a Writer with a buffer, so callers are never blocked by a
// slow writer. Events are delivered in the order they were written.
type EventProducer struct {
	buffer    *buffer
	wakeCh    chan struct{}
	doneCh    chan struct{}
	stoppedCh chan struct{}
	closeOnce sync.Once
	writer    Writer
	topic     string
	source    string
}

func NewEventProducer(w Writer, opts ...ProducerOptions) *EventProducer {
	ep := &EventProducer{
		buffer:    newBuffer(),
		wakeCh:    make(chan struct{}, 1),
		doneCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
		writer:    w,
		topic:     defaultTopic,
		source:    defaultSource,
	}

	for _, o := range opts {
		o(ep)
	}

	go ep.run()
	return ep
}

// Publish queues a job snapshot for every subscriber of the job.
func (ep *EventProducer) Publish(ctx context.Context, job jobs.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return ep.Write(ctx, JobUpdateKind, job.ID, bytes.NewReader(data))
}

func (ep *EventProducer) Write(ctx context.Context, kind string, subject string, body io.Reader) error {
	d, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	ep.buffer.PushBack(&message{
		Kind:    kind,
		Subject: subject,
		Data:    d,
	})

	// wake the consumer, a pending wake up is enough
	select {
	case ep.wakeCh <- struct{}{}:
	default:
	}

	return nil
}

// Close stops the consumer, dropping undelivered events, and closes the writer.
func (ep *EventProducer) Close() error {
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	ep.closeOnce.Do(func() {
		g, ctx := errgroup.WithContext(closeCtx)
		g.Go(func() error {
			close(ep.doneCh)
			select {
			case <-ep.stoppedCh:
			case <-ctx.Done():
				return ctx.Err()
			}
			return ep.writer.Close(ctx)
		})
		err = g.Wait()
	})
	if err != nil {
		zap.S().Named("event_producer").Errorf("event producer closed with error: %s", err)
		return err
	}

	zap.S().Named("event_producer").Info("event producer closed")
	return nil
}

func (ep *EventProducer) run() {
	defer close(ep.stoppedCh)

	for {
		select {
		case <-ep.doneCh:
			return
		case <-ep.wakeCh:
		}

		for msg := ep.buffer.Pop(); msg != nil; msg = ep.buffer.Pop() {
			select {
			case <-ep.doneCh:
				return
			default:
			}

			e := ep.newEvent(msg)
			if err := ep.writer.Write(context.TODO(), ep.topic, e); err != nil {
				zap.S().Named("event_producer").Errorw("failed to send event", "error", err, "type", e.Type(), "subject", e.Subject())
			}
		}
	}
}

func (ep *EventProducer) newEvent(msg *message) cloudevents.Event {
	e := cloudevents.NewEvent()
	e.SetID(uuid.NewString())
	e.SetSource(ep.source)
	e.SetType(msg.Kind)
	e.SetSubject(msg.Subject)
	e.SetTime(time.Now().UTC())
	_ = e.SetData(*cloudevents.StringOfApplicationJSON(), msg.Data)
	return e
}
