package events

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/maptoposter/poster-api/internal/jobs"
)

var _ = Describe("producer", func() {
	It("delivers events in order", func() {
		w := newTestWriter()
		ep := NewEventProducer(w, WithOutputTopic("topic1"))
		defer ep.Close()

		Expect(ep.Write(context.TODO(), JobUpdateKind, "job1", bytes.NewReader([]byte(`{"n":1}`)))).To(Succeed())
		Expect(ep.Write(context.TODO(), JobUpdateKind, "job1", bytes.NewReader([]byte(`{"n":2}`)))).To(Succeed())

		Eventually(w.Len).Should(Equal(2))
		events := w.Events()
		Expect(events[0].Type()).To(Equal(JobUpdateKind))
		Expect(events[0].Subject()).To(Equal("job1"))
		Expect(string(events[0].Data())).To(Equal(`{"n":1}`))
		Expect(string(events[1].Data())).To(Equal(`{"n":2}`))
		Expect(w.Topics()).To(ConsistOf("topic1", "topic1"))
	})

	It("publishes job snapshots with the job id as subject", func() {
		w := newTestWriter()
		ep := NewEventProducer(w)
		defer ep.Close()

		job := jobs.Job{ID: "abc", Status: jobs.StatusProcessing, Progress: 40}
		Expect(ep.Publish(context.TODO(), job)).To(Succeed())

		Eventually(w.Len).Should(Equal(1))
		e := w.Events()[0]
		Expect(e.Subject()).To(Equal("abc"))
		Expect(e.Source()).To(Equal(defaultSource))

		var got jobs.Job
		Expect(json.Unmarshal(e.Data(), &got)).To(Succeed())
		Expect(got.Status).To(Equal(jobs.StatusProcessing))
		Expect(got.Progress).To(Equal(40))
	})

	It("closes the writer", func() {
		w := newTestWriter()
		ep := NewEventProducer(w)

		Expect(ep.Close()).To(Succeed())
		Expect(w.closed).To(BeTrue())
		// closing twice is harmless
		Expect(ep.Close()).To(Succeed())
	})
})

type testwriter struct {
	mu     sync.Mutex
	events []cloudevents.Event
	topics []string
	closed bool
}

func newTestWriter() *testwriter {
	return &testwriter{}
}

func (t *testwriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
	t.topics = append(t.topics, topic)
	return nil
}

func (t *testwriter) Close(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *testwriter) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}

func (t *testwriter) Events() []cloudevents.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]cloudevents.Event(nil), t.events...)
}

func (t *testwriter) Topics() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.topics...)
}
