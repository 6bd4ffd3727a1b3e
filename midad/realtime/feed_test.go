package realtime

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestMemoryFeedDelivery(t *testing.T) {
	feed := NewMemoryFeed()
	ownerA, ownerB := uuid.New(), uuid.New()

	var receivedA, receivedB []Event
	subA, err := feed.Subscribe(ownerA, func(e Event) { receivedA = append(receivedA, e) })
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer subA.Cancel()

	subB, err := feed.Subscribe(ownerB, func(e Event) { receivedB = append(receivedB, e) })
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer subB.Cancel()

	if err := feed.Publish(Event{OwnerId: ownerA, Kind: KindNotifications}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if err := feed.Publish(Event{OwnerId: ownerA, Kind: KindResearch}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if len(receivedA) != 2 || receivedA[0].Kind != KindNotifications || receivedA[1].Kind != KindResearch {
		t.Fatalf("owner A received wrong events: %v", receivedA)
	}
	if len(receivedB) != 0 {
		t.Fatalf("owner B received another owner's events: %v", receivedB)
	}
}

func TestMemoryFeedCancelledSubscriptionIsInert(t *testing.T) {
	feed := NewMemoryFeed()
	owner := uuid.New()

	received := 0
	sub, err := feed.Subscribe(owner, func(e Event) { received++ })
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	if err := feed.Publish(Event{OwnerId: owner, Kind: KindNotifications}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	sub.Cancel()
	sub.Cancel() // repeated cancel is a no-op

	if err := feed.Publish(Event{OwnerId: owner, Kind: KindNotifications}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if received != 1 {
		t.Fatalf("expected 1 event before cancel, got %d", received)
	}
}

// Covers the identity switch scenario: events for a prior subscriber must not
// reach a session that has since resubscribed as someone else.
func TestMemoryFeedIdentitySwitch(t *testing.T) {
	feed := NewMemoryFeed()
	firstUser, secondUser := uuid.New(), uuid.New()

	var firstEvents, secondEvents []Event
	first, err := feed.Subscribe(firstUser, func(e Event) { firstEvents = append(firstEvents, e) })
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	// Sign out, sign in as a different user.
	first.Cancel()
	second, err := feed.Subscribe(secondUser, func(e Event) { secondEvents = append(secondEvents, e) })
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer second.Cancel()

	if err := feed.Publish(Event{OwnerId: firstUser, Kind: KindNotifications}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if err := feed.Publish(Event{OwnerId: secondUser, Kind: KindNotifications}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if len(firstEvents) != 0 {
		t.Fatalf("cancelled subscription received events: %v", firstEvents)
	}
	if len(secondEvents) != 1 || secondEvents[0].OwnerId != secondUser {
		t.Fatalf("expected exactly the second user's event, got %v", secondEvents)
	}
}

func waitForEvents(t *testing.T, events <-chan Event, n int) []Event {
	t.Helper()

	received := make([]Event, 0, n)
	timeout := time.After(5 * time.Second)
	for len(received) < n {
		select {
		case e := <-events:
			received = append(received, e)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %d of %d", len(received), n)
		}
	}
	return received
}

func TestRedisFeedDelivery(t *testing.T) {
	server := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	feed := NewRedisFeedFromClient(client)
	defer feed.Close()

	ownerA, ownerB := uuid.New(), uuid.New()

	eventsA := make(chan Event, 10)
	subA, err := feed.Subscribe(ownerA, func(e Event) { eventsA <- e })
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer subA.Cancel()

	eventsB := make(chan Event, 10)
	subB, err := feed.Subscribe(ownerB, func(e Event) { eventsB <- e })
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer subB.Cancel()

	if err := feed.Publish(Event{OwnerId: ownerA, Kind: KindNotifications}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	received := waitForEvents(t, eventsA, 1)
	if received[0].OwnerId != ownerA || received[0].Kind != KindNotifications {
		t.Fatalf("unexpected event: %v", received[0])
	}

	select {
	case e := <-eventsB:
		t.Fatalf("owner B received another owner's event: %v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRedisFeedCancelledSubscriptionIsInert(t *testing.T) {
	server := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	feed := NewRedisFeedFromClient(client)
	defer feed.Close()

	owner := uuid.New()

	events := make(chan Event, 10)
	sub, err := feed.Subscribe(owner, func(e Event) { events <- e })
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	sub.Cancel()
	sub.Cancel()

	if err := feed.Publish(Event{OwnerId: owner, Kind: KindNotifications}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case e := <-events:
		t.Fatalf("cancelled subscription received event: %v", e)
	case <-time.After(100 * time.Millisecond):
	}
}
