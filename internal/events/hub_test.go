package events

import (
	"context"
	"encoding/json"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func newJobEvent(subject string, data string) cloudevents.Event {
	e := cloudevents.NewEvent()
	e.SetID("id-" + subject)
	e.SetSource(defaultSource)
	e.SetType(JobUpdateKind)
	e.SetSubject(subject)
	_ = e.SetData(*cloudevents.StringOfApplicationJSON(), []byte(data))
	return e
}

var _ = Describe("hub", func() {
	var hub *Hub

	BeforeEach(func() {
		hub = NewHub()
	})

	It("delivers events to subscribers of the subject only", func() {
		s1 := hub.Subscribe("job1")
		defer s1.Close()
		s2 := hub.Subscribe("job2")
		defer s2.Close()

		Expect(hub.Write(context.TODO(), defaultTopic, newJobEvent("job1", `{"progress":10}`))).To(Succeed())

		var frame []byte
		Eventually(s1.C).Should(Receive(&frame))
		raw := map[string]any{}
		Expect(json.Unmarshal(frame, &raw)).To(Succeed())
		Expect(raw["subject"]).To(Equal("job1"))
		Expect(raw["data"]).To(HaveKeyWithValue("progress", BeNumerically("==", 10)))

		Consistently(s2.C).ShouldNot(Receive())
	})

	It("forgets closed subscriptions", func() {
		s := hub.Subscribe("job1")
		Expect(hub.Subscribers("job1")).To(Equal(1))

		s.Close()
		Expect(hub.Subscribers("job1")).To(Equal(0))
		Eventually(s.C).Should(BeClosed())

		// closing again is harmless
		s.Close()
	})

	It("drops subscribers which do not keep up", func() {
		s := hub.Subscribe("job1")
		for i := 0; i <= subscriptionBuffer; i++ {
			Expect(hub.Write(context.TODO(), defaultTopic, newJobEvent("job1", `{}`))).To(Succeed())
		}
		Expect(hub.Subscribers("job1")).To(Equal(0))
		Expect(s.Dropped()).To(BeTrue())

		// the buffered frames are still delivered before the channel ends
		received := 0
		for range s.C {
			received++
		}
		Expect(received).To(Equal(subscriptionBuffer))
	})

	It("closes every subscription on close", func() {
		s := hub.Subscribe("job1")
		Expect(hub.Close(context.TODO())).To(Succeed())
		Eventually(s.C).Should(BeClosed())
		Expect(s.Dropped()).To(BeFalse())

		late := hub.Subscribe("job1")
		Eventually(late.C).Should(BeClosed())
	})
})
