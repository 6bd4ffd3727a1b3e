package userdata

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

type testNote struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func TestSaveLoadRoundTrip(t *testing.T) {
	manager := NewManager(NewMemoryStore())
	owner := uuid.New()

	saved := []testNote{{Title: "chapter 1", Body: "draft"}, {Title: "chapter 2", Body: ""}}
	if err := manager.Save(owner, CategorySources, saved); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	var loaded []testNote
	if err := manager.Load(owner, CategorySources, &loaded); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if len(loaded) != 2 || loaded[0] != saved[0] || loaded[1] != saved[1] {
		t.Fatalf("loaded payload %v does not match saved payload %v", loaded, saved)
	}
}

func TestRepeatedSaveIsIdempotent(t *testing.T) {
	manager := NewManager(NewMemoryStore())
	owner := uuid.New()

	note := testNote{Title: "abstract", Body: "final"}
	for i := 0; i < 3; i++ {
		if err := manager.Save(owner, CategoryResearch, note); err != nil {
			t.Fatalf("save %d failed: %v", i, err)
		}
	}

	var loaded testNote
	if err := manager.Load(owner, CategoryResearch, &loaded); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded != note {
		t.Fatalf("expected %v, got %v", note, loaded)
	}
}

func TestOwnerIsolation(t *testing.T) {
	manager := NewManager(NewMemoryStore())
	ownerA, ownerB := uuid.New(), uuid.New()

	if err := manager.Save(ownerA, CategoryResearch, testNote{Title: "A's thesis"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := manager.Save(ownerB, CategoryResearch, testNote{Title: "B's thesis"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	var loaded testNote
	if err := manager.Load(ownerA, CategoryResearch, &loaded); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Title != "A's thesis" {
		t.Fatalf("owner A read wrong record: %v", loaded)
	}

	if err := manager.Load(ownerB, CategoryResearch, &loaded); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Title != "B's thesis" {
		t.Fatalf("owner B read wrong record: %v", loaded)
	}
}

func TestLoadMissingRecord(t *testing.T) {
	manager := NewManager(NewMemoryStore())

	var loaded testNote
	err := manager.Load(uuid.New(), CategoryResearch, &loaded)
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestInvalidArgsRejectedBeforeIO(t *testing.T) {
	manager := NewManager(NewMemoryStore())

	if err := manager.Save(uuid.Nil, CategoryResearch, testNote{}); !errors.Is(err, ErrInvalidOwner) {
		t.Fatalf("expected ErrInvalidOwner, got %v", err)
	}

	var loaded testNote
	if err := manager.Load(uuid.New(), Category("secrets"), &loaded); !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}
}

func TestOwnerMismatchTreatedAsNotFound(t *testing.T) {
	store := NewMemoryStore()
	manager := NewManager(store)
	owner, intruder := uuid.New(), uuid.New()

	if err := manager.Save(owner, CategoryResearch, testNote{Title: "private"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// Simulate a swapped record: the intruder's key holds the owner's envelope.
	value, found, err := store.Get(recordKey(CategoryResearch, owner))
	if err != nil || !found {
		t.Fatalf("expected record to exist: %v", err)
	}
	if err := store.Set(recordKey(CategoryResearch, intruder), value); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	violations := 0
	manager.onViolation = func(ownerId uuid.UUID, category Category) { violations++ }

	var loaded testNote
	loadErr := manager.Load(intruder, CategoryResearch, &loaded)
	if !errors.Is(loadErr, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound for mismatched owner, got %v", loadErr)
	}
	if loaded.Title != "" {
		t.Fatal("foreign payload leaked to caller")
	}
	if violations != 1 {
		t.Fatalf("expected 1 integrity violation, recorded %d", violations)
	}
}

func TestCorruptRecordTreatedAsNotFound(t *testing.T) {
	store := NewMemoryStore()
	manager := NewManager(store)
	owner := uuid.New()

	if err := store.Set(recordKey(CategorySettings, owner), "{not json"); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	violations := 0
	manager.onViolation = func(ownerId uuid.UUID, category Category) { violations++ }

	var settings Settings
	err := manager.Load(owner, CategorySettings, &settings)
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound for corrupt record, got %v", err)
	}
	if violations != 1 {
		t.Fatalf("expected 1 integrity violation, recorded %d", violations)
	}
}

func TestInitializeDefaults(t *testing.T) {
	manager := NewManager(NewMemoryStore())
	owner := uuid.New()

	if err := manager.InitializeDefaults(owner); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	var settings Settings
	if err := manager.Load(owner, CategorySettings, &settings); err != nil {
		t.Fatalf("load settings failed: %v", err)
	}
	if settings != DefaultSettings() {
		t.Fatalf("expected default settings, got %v", settings)
	}

	var sources []json.RawMessage
	if err := manager.Load(owner, CategorySources, &sources); err != nil {
		t.Fatalf("load sources failed: %v", err)
	}
	if len(sources) != 0 {
		t.Fatalf("new account should start with no sources, got %d", len(sources))
	}

	var research json.RawMessage
	if err := manager.Load(owner, CategoryResearch, &research); err != nil {
		t.Fatalf("load research failed: %v", err)
	}
	if string(research) != "null" {
		t.Fatalf("new account should have no research project, got %s", research)
	}
}

func TestInitializeDefaultsPreservesExistingData(t *testing.T) {
	manager := NewManager(NewMemoryStore())
	owner := uuid.New()

	custom := Settings{Language: "en", Theme: "dark", Notifications: false, AutoSave: false, AutoSaveInterval: 60}
	if err := manager.Save(owner, CategorySettings, custom); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if err := manager.InitializeDefaults(owner); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	var settings Settings
	if err := manager.Load(owner, CategorySettings, &settings); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if settings != custom {
		t.Fatalf("initialize overwrote existing settings: %v", settings)
	}
}

func TestPurgeAll(t *testing.T) {
	manager := NewManager(NewMemoryStore())
	owner, other := uuid.New(), uuid.New()

	if err := manager.InitializeDefaults(owner); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if err := manager.Save(other, CategoryResearch, testNote{Title: "kept"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if err := manager.PurgeAll(owner); err != nil {
		t.Fatalf("purge failed: %v", err)
	}

	for _, category := range AllCategories() {
		var dest json.RawMessage
		if err := manager.Load(owner, category, &dest); !errors.Is(err, ErrRecordNotFound) {
			t.Fatalf("expected %v to be purged, got %v", category, err)
		}
	}

	var kept testNote
	if err := manager.Load(other, CategoryResearch, &kept); err != nil || kept.Title != "kept" {
		t.Fatalf("purge affected another owner's data: %v %v", kept, err)
	}
}

func TestDiskStoreRoundTrip(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("error creating store: %v", err)
	}

	manager := NewManager(store)
	owner := uuid.New()

	if err := manager.Save(owner, CategorySchedule, []testNote{{Title: "defense"}}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	var loaded []testNote
	if err := manager.Load(owner, CategorySchedule, &loaded); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Title != "defense" {
		t.Fatalf("unexpected payload: %v", loaded)
	}

	keys, err := store.Keys()
	if err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	expected := fmt.Sprintf("%v_%v", CategorySchedule, owner)
	if len(keys) != 1 || keys[0] != expected {
		t.Fatalf("expected key %v, got %v", expected, keys)
	}

	if err := manager.Remove(owner, CategorySchedule); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if err := manager.Load(owner, CategorySchedule, &loaded); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound after remove, got %v", err)
	}
}

func TestDiskStoreRejectsWritesWhenVolumeFull(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("error creating store: %v", err)
	}

	usage, err := store.Usage()
	if err != nil {
		t.Fatalf("usage failed: %v", err)
	}
	if usage.TotalBytes == 0 {
		t.Fatalf("unexpected usage stats: %+v", usage)
	}

	// Raise the floor above the volume size so the next write trips the guard.
	store.minFreeBytes = usage.TotalBytes + 1

	if err := store.Set("research_abc", "{}"); !errors.Is(err, ErrStorageFull) {
		t.Fatalf("expected ErrStorageFull, got %v", err)
	}

	store.minFreeBytes = defaultMinFreeBytes
	if err := store.Set("research_abc", "{}"); err != nil {
		t.Fatalf("write should succeed once space clears: %v", err)
	}
}
