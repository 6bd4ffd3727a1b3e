package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"midad_platform/midad/metrics"
	"midad_platform/midad/schema"
	"midad_platform/utils/logging"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrIdentityUnresolvable is returned when a valid external session cannot
	// be mapped to an internal user record after the repair attempts are
	// exhausted. The caller must treat the session as unauthenticated; a
	// fabricated fallback identity is never produced.
	ErrIdentityUnresolvable = errors.New("unable to resolve internal record for authenticated session")

	ErrRecordExists = errors.New("user record already exists")
)

// ExternalIdentity is what the auth provider asserts about a signed-in user.
type ExternalIdentity struct {
	Id    uuid.UUID
	Name  string
	Email string
	Role  string
}

// RecordStore is the persistence surface the resolver repairs records
// through. Create must return ErrRecordExists when the id or email is already
// taken, so concurrent repairs of the same identity converge on one row.
type RecordStore interface {
	Find(id uuid.UUID) (schema.User, bool, error)

	Create(user schema.User) error
}

// RetryPolicy bounds the repair loop. It is plain data so deployments can
// tune it without touching resolver logic.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Backoff: 200 * time.Millisecond}
}

type IdentityChange struct {
	UserId   uuid.UUID
	SignedIn bool
}

type Resolver struct {
	store RecordStore
	retry RetryPolicy

	// Called once when a missing record is created for a valid session.
	onRepair func(userId uuid.UUID)

	mu        sync.Mutex
	nextSubId int
	listeners map[int]func(IdentityChange)
}

func NewResolver(store RecordStore, retry RetryPolicy) *Resolver {
	if retry.Attempts < 1 {
		retry.Attempts = 1
	}
	return &Resolver{
		store:     store,
		retry:     retry,
		onRepair:  func(userId uuid.UUID) { metrics.SessionRepairs.Inc() },
		listeners: make(map[int]func(IdentityChange)),
	}
}

// Resolve maps an authenticated external identity to its internal user
// record, creating the record if it is missing. The signed-in state of the
// session is trusted; only the internal record is in question. After the
// retry budget is spent the error is ErrIdentityUnresolvable, the caller
// fails closed.
func (r *Resolver) Resolve(ctx context.Context, identity ExternalIdentity) (schema.User, error) {
	var lastErr error

	for attempt := 0; attempt < r.retry.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(r.retry.Backoff):
			case <-ctx.Done():
				return schema.User{}, ctx.Err()
			}
		}

		user, found, err := r.store.Find(identity.Id)
		if err != nil {
			lastErr = err
			slog.Error("error looking up user record for session", "user_id", identity.Id, "attempt", attempt+1, "error", err)
			continue
		}
		if found {
			return user, nil
		}

		role := identity.Role
		if !schema.ValidRole(role) || role == schema.RoleAdmin {
			role = schema.RoleStudent
		}

		newUser := schema.User{
			Id:    identity.Id,
			Name:  identity.Name,
			Email: identity.Email,
			Role:  role,
		}

		err = r.store.Create(newUser)
		if err == nil {
			slog.Info("created missing user record for valid session", "code", logging.SESSION_REPAIR, "user_id", identity.Id)
			r.onRepair(identity.Id)
			return newUser, nil
		}
		if errors.Is(err, ErrRecordExists) {
			// Another request repaired the record first, re-read it.
			continue
		}

		lastErr = err
		slog.Error("error creating user record for session", "user_id", identity.Id, "attempt", attempt+1, "error", err)
	}

	slog.Error("identity resolution failed after retries", "code", logging.SESSION_RESOLVE,
		"user_id", identity.Id, "attempts", r.retry.Attempts, "error", lastErr)
	return schema.User{}, ErrIdentityUnresolvable
}

// SubscribeIdentityChanges registers a callback for sign-in/sign-out
// transitions. The returned cancel detaches the callback; after it returns
// the callback is never invoked again.
func (r *Resolver) SubscribeIdentityChanges(onChange func(IdentityChange)) (cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextSubId
	r.nextSubId++
	r.listeners[id] = onChange

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.listeners, id)
		})
	}
}

// NotifySignIn announces a completed sign-in to all subscribers.
func (r *Resolver) NotifySignIn(userId uuid.UUID) {
	r.notify(IdentityChange{UserId: userId, SignedIn: true})
}

// NotifySignOut announces a sign-out to all subscribers.
func (r *Resolver) NotifySignOut(userId uuid.UUID) {
	r.notify(IdentityChange{UserId: userId, SignedIn: false})
}

func (r *Resolver) notify(change IdentityChange) {
	r.mu.Lock()
	callbacks := make([]func(IdentityChange), 0, len(r.listeners))
	for _, cb := range r.listeners {
		callbacks = append(callbacks, cb)
	}
	r.mu.Unlock()

	for _, cb := range callbacks {
		cb(change)
	}
}

// GormRecordStore is the production RecordStore over the application db.
type GormRecordStore struct {
	db *gorm.DB
}

func NewGormRecordStore(db *gorm.DB) *GormRecordStore {
	return &GormRecordStore{db: db}
}

func (s *GormRecordStore) Find(id uuid.UUID) (schema.User, bool, error) {
	var user schema.User

	result := s.db.Limit(1).Find(&user, "id = ?", id)
	if result.Error != nil {
		slog.Error("sql error looking up user record", "user_id", id, "error", result.Error)
		return schema.User{}, false, schema.ErrDbAccessFailed
	}

	return user, result.RowsAffected == 1, nil
}

func (s *GormRecordStore) Create(user schema.User) error {
	err := s.db.Transaction(func(txn *gorm.DB) error {
		var existing schema.User
		result := txn.Limit(1).Find(&existing, "id = ? or email = ?", user.Id, user.Email)
		if result.Error != nil {
			slog.Error("sql error checking for existing user record", "user_id", user.Id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected != 0 {
			return ErrRecordExists
		}

		result = txn.Create(&user)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
				return ErrRecordExists
			}
			slog.Error("sql error creating user record", "user_id", user.Id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		return nil
	})

	return err
}
