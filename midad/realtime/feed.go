package realtime

import (
	"sync"

	"midad_platform/midad/metrics"

	"github.com/google/uuid"
)

// Event signals that some of an owner's data changed. It carries no payload:
// consumers reload the affected category instead of applying patches, so a
// missed event degrades to a stale view rather than divergent state.
type Event struct {
	OwnerId uuid.UUID `json:"owner_id"`
	Kind    string    `json:"kind"`
}

const (
	KindNotifications = "notifications"
	KindResearch      = "research"
	KindSources       = "sources"
	KindSchedule      = "schedule"
	KindReview        = "review"
)

// Subscription is the handle returned by Feed.Subscribe. After Cancel returns
// the callback will never be invoked again, even if events for the owner keep
// arriving.
type Subscription interface {
	Cancel()
}

type Feed interface {
	Publish(event Event) error

	Subscribe(ownerId uuid.UUID, onChange func(Event)) (Subscription, error)

	Close() error
}

// MemoryFeed is an in-process broker for single binary deployments and tests.
// Delivery is synchronous with Publish.
type MemoryFeed struct {
	mu     sync.Mutex
	nextId int
	subs   map[uuid.UUID]map[int]func(Event)
	closed bool
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[uuid.UUID]map[int]func(Event))}
}

func (f *MemoryFeed) Publish(event Event) error {
	f.mu.Lock()
	callbacks := make([]func(Event), 0, len(f.subs[event.OwnerId]))
	for _, cb := range f.subs[event.OwnerId] {
		callbacks = append(callbacks, cb)
	}
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(event)
	}

	metrics.FeedEventsPublished.WithLabelValues(event.Kind).Inc()
	return nil
}

func (f *MemoryFeed) Subscribe(ownerId uuid.UUID, onChange func(Event)) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextId
	f.nextId++

	if f.subs[ownerId] == nil {
		f.subs[ownerId] = make(map[int]func(Event))
	}
	f.subs[ownerId][id] = onChange

	metrics.FeedSubscriptions.Inc()

	return &memorySubscription{feed: f, ownerId: ownerId, id: id}, nil
}

// Subscribers reports how many active subscriptions an owner has.
func (f *MemoryFeed) Subscribers(ownerId uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.subs[ownerId])
}

func (f *MemoryFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.closed {
		f.closed = true
		f.subs = make(map[uuid.UUID]map[int]func(Event))
	}
	return nil
}

type memorySubscription struct {
	feed    *MemoryFeed
	ownerId uuid.UUID
	id      int
	once    sync.Once
}

func (s *memorySubscription) Cancel() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		defer s.feed.mu.Unlock()

		if subs, ok := s.feed.subs[s.ownerId]; ok {
			delete(subs, s.id)
			if len(subs) == 0 {
				delete(s.feed.subs, s.ownerId)
			}
		}

		metrics.FeedSubscriptions.Dec()
	})
}
