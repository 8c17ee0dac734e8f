package eventbus

import (
	"sync"
	"testing"
	"time"
)

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	bus := New()
	sub1 := bus.Subscribe("job:1")
	sub2 := bus.Subscribe("job:1")
	defer sub1.Unsubscribe()
	defer sub2.Unsubscribe()

	bus.Publish("job:1", Message{Type: "agent_thought", JobID: "1"})

	for _, sub := range []*Subscription{sub1, sub2} {
		select {
		case msg := <-sub.Messages():
			if msg.Type != "agent_thought" {
				t.Errorf("unexpected type %q", msg.Type)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fan-out message")
		}
	}
}

func TestSubscriberOrderMatchesPublishOrder(t *testing.T) {
	bus := New()
	sub := bus.Subscribe("job:1")
	defer sub.Unsubscribe()

	for i := 0; i < 10; i++ {
		bus.Publish("job:1", Message{Type: "terminal_output", Payload: []byte{byte(i)}})
	}

	for i := 0; i < 10; i++ {
		msg := <-sub.Messages()
		if msg.Payload[0] != byte(i) {
			t.Fatalf("expected payload %d, got %d", i, msg.Payload[0])
		}
	}
}

func TestUnsubscribeRemovesFromTopic(t *testing.T) {
	bus := New()
	sub := bus.Subscribe("job:1")
	if bus.SubscriberCount("job:1") != 1 {
		t.Fatalf("expected 1 subscriber")
	}
	sub.Unsubscribe()
	if bus.SubscriberCount("job:1") != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe")
	}
	// Double unsubscribe must not panic.
	sub.Unsubscribe()
}

func TestPublishIsConcurrencySafe(t *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	subs := make([]*Subscription, 20)
	for i := range subs {
		subs[i] = bus.Subscribe("job:concurrent")
	}

	wg.Add(20)
	for i := 0; i < 20; i++ {
		go func() {
			defer wg.Done()
			bus.Publish("job:concurrent", Message{Type: "x"})
		}()
	}

	drain := make(chan struct{})
	go func() {
		for _, s := range subs {
			<-s.Messages()
		}
		close(drain)
	}()

	wg.Wait()
	select {
	case <-drain:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out draining subscribers")
	}
	for _, s := range subs {
		s.Unsubscribe()
	}
}
