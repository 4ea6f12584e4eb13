package alert

import (
	"sync"
	"testing"
)

func TestPublish_DeliversInRegistrationOrder(t *testing.T) {
	bus := NewBus(nil, nil)

	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		bus.Subscribe(TopicAlertTriggered, func(topic string, payload any) {
			order = append(order, i)
		})
	}

	bus.Publish(TopicAlertTriggered, "payload")

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("delivery order = %v, want [1 2 3]", order)
	}
}

func TestPublish_NoSubscribersIsNoOp(t *testing.T) {
	bus := NewBus(nil, nil)
	bus.Publish(TopicAlertTriggered, "payload")
}

func TestPublish_TopicsAreIsolated(t *testing.T) {
	bus := NewBus(nil, nil)

	var hits int
	bus.Subscribe("OTHER_TOPIC", func(topic string, payload any) { hits++ })
	bus.Publish(TopicAlertTriggered, "payload")

	if hits != 0 {
		t.Fatal("subscriber on another topic must not receive the publication")
	}
}

func TestPublish_PanicIsolatedToOneSubscriber(t *testing.T) {
	bus := NewBus(nil, nil)

	var after bool
	bus.Subscribe(TopicAlertTriggered, func(topic string, payload any) {
		panic("subscriber bug")
	})
	bus.Subscribe(TopicAlertTriggered, func(topic string, payload any) {
		after = true
	})

	bus.Publish(TopicAlertTriggered, "payload")

	if !after {
		t.Fatal("a panicking subscriber must not block later subscribers")
	}
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	bus := NewBus(nil, nil)

	var hits int
	token := bus.Subscribe(TopicAlertTriggered, func(topic string, payload any) { hits++ })

	bus.Publish(TopicAlertTriggered, "one")
	bus.Unsubscribe(token)
	bus.Publish(TopicAlertTriggered, "two")

	if hits != 1 {
		t.Fatalf("hits = %d, want 1", hits)
	}
}

func TestUnsubscribe_UnknownTokenIgnored(t *testing.T) {
	bus := NewBus(nil, nil)
	bus.Unsubscribe(Token{topic: "nope", id: 42})
}

func TestSubscribe_NoReplayOfEarlierPublications(t *testing.T) {
	bus := NewBus(nil, nil)

	bus.Publish(TopicAlertTriggered, "before")

	var got []any
	bus.Subscribe(TopicAlertTriggered, func(topic string, payload any) {
		got = append(got, payload)
	})
	bus.Publish(TopicAlertTriggered, "after")

	if len(got) != 1 || got[0] != "after" {
		t.Fatalf("got = %v, want only the post-subscription payload", got)
	}
}

func TestPublish_ConcurrentUse(t *testing.T) {
	bus := NewBus(nil, nil)

	var mu sync.Mutex
	var hits int
	bus.Subscribe(TopicAlertTriggered, func(topic string, payload any) {
		mu.Lock()
		hits++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				bus.Publish(TopicAlertTriggered, j)
			}
		}()
	}
	wg.Wait()

	if hits != 200 {
		t.Fatalf("hits = %d, want 200", hits)
	}
}
