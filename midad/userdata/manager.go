package userdata

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"midad_platform/midad/metrics"
	"midad_platform/utils/logging"

	"github.com/google/uuid"
)

// Category identifies one namespaced record class in a user's workspace.
// Every category has a concrete payload schema, there are no opaque blobs.
type Category string

const (
	CategoryResearch      Category = "research"
	CategorySources       Category = "sources"
	CategorySchedule      Category = "schedule"
	CategorySettings      Category = "settings"
	CategoryNotifications Category = "notifications"
	CategoryConversations Category = "conversations"
)

func AllCategories() []Category {
	return []Category{
		CategoryResearch, CategorySources, CategorySchedule,
		CategorySettings, CategoryNotifications, CategoryConversations,
	}
}

func ValidCategory(category Category) bool {
	switch category {
	case CategoryResearch, CategorySources, CategorySchedule,
		CategorySettings, CategoryNotifications, CategoryConversations:
		return true
	}
	return false
}

var (
	ErrRecordNotFound  = errors.New("workspace record not found")
	ErrInvalidOwner    = errors.New("invalid owner id")
	ErrInvalidCategory = errors.New("invalid workspace category")
	ErrStoreFailed     = errors.New("workspace store access failed")
)

// envelope wraps every stored payload with the owner it belongs to, so reads
// can verify the record was not swapped or tampered with.
type envelope struct {
	OwnerId      uuid.UUID       `json:"owner_id"`
	Data         json.RawMessage `json:"data"`
	LastModified time.Time       `json:"last_modified"`
}

// Settings is the payload schema for CategorySettings.
type Settings struct {
	Language         string `json:"language"`
	Theme            string `json:"theme"`
	Notifications    bool   `json:"notifications"`
	AutoSave         bool   `json:"auto_save"`
	AutoSaveInterval int    `json:"auto_save_interval"`
}

func DefaultSettings() Settings {
	return Settings{
		Language:         "ar",
		Theme:            "light",
		Notifications:    true,
		AutoSave:         true,
		AutoSaveInterval: 30,
	}
}

type Manager struct {
	store KVStore

	// Called when a record's stored owner does not match the requested owner.
	// Replaceable in tests, defaults to the prometheus counter.
	onViolation func(ownerId uuid.UUID, category Category)
}

func NewManager(store KVStore) *Manager {
	return &Manager{
		store: store,
		onViolation: func(ownerId uuid.UUID, category Category) {
			metrics.IntegrityViolations.WithLabelValues(string(category)).Inc()
		},
	}
}

func recordKey(category Category, ownerId uuid.UUID) string {
	return fmt.Sprintf("%v_%v", category, ownerId)
}

func (m *Manager) checkArgs(ownerId uuid.UUID, category Category) error {
	if ownerId == uuid.Nil {
		return ErrInvalidOwner
	}
	if !ValidCategory(category) {
		return ErrInvalidCategory
	}
	return nil
}

// Save overwrites the owner's record for the category wholesale. The last
// writer wins, there is no merging.
func (m *Manager) Save(ownerId uuid.UUID, category Category, payload interface{}) error {
	if err := m.checkArgs(ownerId, category); err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error serializing %v payload: %w", category, err)
	}

	record, err := json.Marshal(envelope{
		OwnerId:      ownerId,
		Data:         data,
		LastModified: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("error serializing %v record: %w", category, err)
	}

	err = m.store.Set(recordKey(category, ownerId), string(record))
	if err != nil {
		slog.Error("error saving workspace record", "code", logging.DATA_SAVE, "owner_id", ownerId, "category", category, "error", err)
		return ErrStoreFailed
	}

	return nil
}

// Load reads the owner's record for the category into dest. A record whose
// stored owner does not match is never returned: the violation is logged and
// counted, and the caller sees ErrRecordNotFound.
func (m *Manager) Load(ownerId uuid.UUID, category Category, dest interface{}) error {
	if err := m.checkArgs(ownerId, category); err != nil {
		return err
	}

	value, found, err := m.store.Get(recordKey(category, ownerId))
	if err != nil {
		slog.Error("error loading workspace record", "code", logging.DATA_LOAD, "owner_id", ownerId, "category", category, "error", err)
		return ErrStoreFailed
	}
	if !found {
		return ErrRecordNotFound
	}

	var record envelope
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		slog.Error("corrupt workspace record", "code", logging.DATA_INTEGRITY, "owner_id", ownerId, "category", category, "error", err)
		m.onViolation(ownerId, category)
		return ErrRecordNotFound
	}

	if record.OwnerId != ownerId {
		slog.Error("workspace record owner mismatch", "code", logging.DATA_INTEGRITY,
			"requested_owner", ownerId, "stored_owner", record.OwnerId, "category", category)
		m.onViolation(ownerId, category)
		return ErrRecordNotFound
	}

	if err := json.Unmarshal(record.Data, dest); err != nil {
		return fmt.Errorf("error parsing %v payload: %w", category, err)
	}

	return nil
}

// LastModified returns when the owner's record for the category was last
// written.
func (m *Manager) LastModified(ownerId uuid.UUID, category Category) (time.Time, error) {
	if err := m.checkArgs(ownerId, category); err != nil {
		return time.Time{}, err
	}

	value, found, err := m.store.Get(recordKey(category, ownerId))
	if err != nil {
		return time.Time{}, ErrStoreFailed
	}
	if !found {
		return time.Time{}, ErrRecordNotFound
	}

	var record envelope
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		m.onViolation(ownerId, category)
		return time.Time{}, ErrRecordNotFound
	}
	if record.OwnerId != ownerId {
		m.onViolation(ownerId, category)
		return time.Time{}, ErrRecordNotFound
	}

	return record.LastModified, nil
}

func (m *Manager) Remove(ownerId uuid.UUID, category Category) error {
	if err := m.checkArgs(ownerId, category); err != nil {
		return err
	}

	err := m.store.Remove(recordKey(category, ownerId))
	if err != nil {
		slog.Error("error removing workspace record", "owner_id", ownerId, "category", category, "error", err)
		return ErrStoreFailed
	}
	return nil
}

// PurgeAll removes every record the owner has, used on account deletion.
func (m *Manager) PurgeAll(ownerId uuid.UUID) error {
	if ownerId == uuid.Nil {
		return ErrInvalidOwner
	}

	for _, category := range AllCategories() {
		if err := m.Remove(ownerId, category); err != nil {
			return err
		}
	}

	slog.Info("purged workspace records", "code", logging.DATA_PURGE, "owner_id", ownerId)
	return nil
}

// InitializeDefaults writes an empty starting state for any category the owner
// does not have a record for yet. New accounts start empty, sample content is
// never seeded. Existing records are left untouched, so the call is idempotent.
func (m *Manager) InitializeDefaults(ownerId uuid.UUID) error {
	if ownerId == uuid.Nil {
		return ErrInvalidOwner
	}

	defaults := map[Category]interface{}{
		CategoryResearch:      nil,
		CategorySources:       []struct{}{},
		CategorySchedule:      []struct{}{},
		CategorySettings:      DefaultSettings(),
		CategoryNotifications: []struct{}{},
		CategoryConversations: []struct{}{},
	}

	for category, payload := range defaults {
		_, found, err := m.store.Get(recordKey(category, ownerId))
		if err != nil {
			slog.Error("error checking workspace record", "owner_id", ownerId, "category", category, "error", err)
			return ErrStoreFailed
		}
		if found {
			continue
		}
		if err := m.Save(ownerId, category, payload); err != nil {
			return err
		}
	}

	slog.Info("initialized workspace defaults", "code", logging.DATA_INIT, "owner_id", ownerId)
	return nil
}
