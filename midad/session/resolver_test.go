package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"midad_platform/midad/schema"

	"github.com/google/uuid"
)

type fakeStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]schema.User

	findFailures   int
	missFinds      int
	createFailures int

	findCalls   int
	createCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[uuid.UUID]schema.User)}
}

var errUnavailable = errors.New("store unavailable")

func (s *fakeStore) Find(id uuid.UUID) (schema.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.findCalls++
	if s.findFailures > 0 {
		s.findFailures--
		return schema.User{}, false, errUnavailable
	}
	if s.missFinds > 0 {
		s.missFinds--
		return schema.User{}, false, nil
	}

	user, ok := s.users[id]
	return user, ok, nil
}

func (s *fakeStore) Create(user schema.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.createCalls++
	if s.createFailures > 0 {
		s.createFailures--
		return errUnavailable
	}

	if _, exists := s.users[user.Id]; exists {
		return ErrRecordExists
	}
	s.users[user.Id] = user
	return nil
}

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{Attempts: attempts, Backoff: time.Millisecond}
}

func TestResolveExistingRecord(t *testing.T) {
	store := newFakeStore()
	userId := uuid.New()
	store.users[userId] = schema.User{Id: userId, Name: "amal", Email: "amal@uni.edu", Role: schema.RoleStudent}

	resolver := NewResolver(store, fastRetry(3))

	user, err := resolver.Resolve(context.Background(), ExternalIdentity{Id: userId, Name: "amal", Email: "amal@uni.edu"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if user.Id != userId || user.Name != "amal" {
		t.Fatalf("unexpected user: %v", user)
	}
	if store.createCalls != 0 {
		t.Fatal("existing record should not trigger creation")
	}
}

func TestResolveCreatesMissingRecord(t *testing.T) {
	store := newFakeStore()
	resolver := NewResolver(store, fastRetry(3))

	repairs := 0
	resolver.onRepair = func(userId uuid.UUID) { repairs++ }

	identity := ExternalIdentity{Id: uuid.New(), Name: "sara", Email: "sara@uni.edu", Role: schema.RoleProfessor}

	user, err := resolver.Resolve(context.Background(), identity)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if user.Id != identity.Id || user.Role != schema.RoleProfessor {
		t.Fatalf("unexpected user: %v", user)
	}
	if repairs != 1 {
		t.Fatalf("expected 1 repair, got %d", repairs)
	}

	if _, ok := store.users[identity.Id]; !ok {
		t.Fatal("record was not persisted")
	}
}

func TestResolveNeverGrantsAdminRole(t *testing.T) {
	store := newFakeStore()
	resolver := NewResolver(store, fastRetry(3))

	identity := ExternalIdentity{Id: uuid.New(), Name: "eve", Email: "eve@uni.edu", Role: schema.RoleAdmin}

	user, err := resolver.Resolve(context.Background(), identity)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if user.Role != schema.RoleStudent {
		t.Fatalf("repaired record must not be admin, got role %v", user.Role)
	}
}

func TestResolveRetriesTransientFailures(t *testing.T) {
	store := newFakeStore()
	store.findFailures = 2

	resolver := NewResolver(store, fastRetry(3))

	identity := ExternalIdentity{Id: uuid.New(), Name: "omar", Email: "omar@uni.edu"}

	user, err := resolver.Resolve(context.Background(), identity)
	if err != nil {
		t.Fatalf("resolve should succeed on the third attempt: %v", err)
	}
	if user.Id != identity.Id {
		t.Fatalf("unexpected user: %v", user)
	}
}

func TestResolveFailsClosedAfterRetriesExhausted(t *testing.T) {
	store := newFakeStore()
	store.findFailures = 100

	resolver := NewResolver(store, fastRetry(3))

	user, err := resolver.Resolve(context.Background(), ExternalIdentity{Id: uuid.New(), Email: "x@uni.edu"})
	if !errors.Is(err, ErrIdentityUnresolvable) {
		t.Fatalf("expected ErrIdentityUnresolvable, got %v", err)
	}
	if user.Id != uuid.Nil {
		t.Fatalf("no identity may be returned on failure, got %v", user)
	}
	if store.findCalls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", store.findCalls)
	}
}

func TestResolveToleratesConcurrentCreation(t *testing.T) {
	store := newFakeStore()
	identity := ExternalIdentity{Id: uuid.New(), Name: "noor", Email: "noor@uni.edu"}

	// The record is created by another request between this resolver's lookup
	// and insert: the lookup misses, the insert conflicts, and the next
	// attempt re-reads the existing row.
	store.users[identity.Id] = schema.User{Id: identity.Id, Name: "noor", Email: "noor@uni.edu", Role: schema.RoleStudent}
	store.missFinds = 1

	resolver := NewResolver(store, fastRetry(3))
	repairs := 0
	resolver.onRepair = func(userId uuid.UUID) { repairs++ }

	user, err := resolver.Resolve(context.Background(), identity)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if user.Id != identity.Id {
		t.Fatalf("unexpected user: %v", user)
	}

	if store.createCalls != 1 {
		t.Fatalf("expected exactly one insert attempt, got %d", store.createCalls)
	}
	if len(store.users) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(store.users))
	}
	if repairs != 0 {
		t.Fatalf("conflicting insert must not count as a repair, got %d", repairs)
	}
}

func TestResolveRespectsContextCancellation(t *testing.T) {
	store := newFakeStore()
	store.findFailures = 100

	resolver := NewResolver(store, RetryPolicy{Attempts: 10, Backoff: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := resolver.Resolve(ctx, ExternalIdentity{Id: uuid.New(), Email: "x@uni.edu"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSubscribeIdentityChanges(t *testing.T) {
	resolver := NewResolver(newFakeStore(), DefaultRetryPolicy())

	var changes []IdentityChange
	cancel := resolver.SubscribeIdentityChanges(func(c IdentityChange) { changes = append(changes, c) })

	userId := uuid.New()
	resolver.NotifySignIn(userId)
	resolver.NotifySignOut(userId)

	if len(changes) != 2 || !changes[0].SignedIn || changes[1].SignedIn {
		t.Fatalf("unexpected changes: %v", changes)
	}

	cancel()
	cancel() // repeated cancel is a no-op

	resolver.NotifySignIn(userId)
	if len(changes) != 2 {
		t.Fatal("cancelled subscription received a change")
	}
}
