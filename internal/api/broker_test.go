package api

import (
	"testing"
	"time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe(TopicPlans)
	b.Publish(TopicPlans, Event{Type: "plan.completed", Data: map[string]any{"planId": "p1"}})

	select {
	case evt := <-ch:
		if evt.Type != "plan.completed" {
			t.Fatalf("event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
	b.Unsubscribe(TopicPlans, ch)
	if _, open := <-ch; open {
		t.Fatal("channel must be closed after unsubscribe")
	}
}

func TestBrokerTopicsIsolated(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("other")
	b.Publish(TopicPlans, Event{Type: "plan.completed"})
	select {
	case evt := <-ch:
		t.Fatalf("leaked across topics: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
	b.Unsubscribe("other", ch)
}

func TestBrokerDoesNotBlockOnSlowSubscriber(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe(TopicPlans)
	// Fill the buffer and keep publishing; Publish must never stall.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(TopicPlans, Event{Type: "plan.completed"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	b.Unsubscribe(TopicPlans, ch)
}
