package userdata

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// KVStore is the durable backing for per-user workspace records. Implementations
// must treat a missing key as (value, found=false, nil), reserving errors for
// real I/O failures.
type KVStore interface {
	Get(key string) (string, bool, error)

	Set(key, value string) error

	Remove(key string) error

	Keys() ([]string, error)
}

type UsageStats struct {
	TotalBytes uint64
	FreeBytes  uint64
}

// ErrStorageFull is returned by writes when the store's volume has less free
// space than the configured minimum.
var ErrStorageFull = errors.New("insufficient disk space for workspace store")

const defaultMinFreeBytes = 64 << 20

// DiskStore keeps one file per key under a base directory.
type DiskStore struct {
	basepath     string
	minFreeBytes uint64
}

func NewDiskStore(basepath string) (*DiskStore, error) {
	slog.Info("creating new disk store", "basepath", basepath)

	err := os.MkdirAll(basepath, 0777)
	if err != nil {
		return nil, fmt.Errorf("error creating store directory %v: %w", basepath, err)
	}

	return &DiskStore{basepath: basepath, minFreeBytes: defaultMinFreeBytes}, nil
}

func (s *DiskStore) fullpath(key string) string {
	return filepath.Join(s.basepath, key+".json")
}

func (s *DiskStore) Get(key string) (string, bool, error) {
	fullpath := s.fullpath(key)

	data, err := os.ReadFile(fullpath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		slog.Error("error reading record", "path", fullpath, "error", err)
		return "", false, fmt.Errorf("error reading record %v: %w", key, err)
	}

	return string(data), true, nil
}

func (s *DiskStore) Set(key, value string) error {
	fullpath := s.fullpath(key)

	if usage, err := s.Usage(); err == nil && usage.FreeBytes < s.minFreeBytes {
		slog.Error("refusing write, store volume is nearly full",
			"path", s.basepath, "free_bytes", usage.FreeBytes, "min_free_bytes", s.minFreeBytes)
		return ErrStorageFull
	}

	// Write then rename so a crash mid-write never leaves a truncated record.
	tmp, err := os.CreateTemp(s.basepath, ".tmp-*")
	if err != nil {
		slog.Error("error creating temp file for record", "path", fullpath, "error", err)
		return fmt.Errorf("error writing record %v: %w", key, err)
	}

	_, err = tmp.WriteString(value)
	if err == nil {
		err = tmp.Close()
	} else {
		tmp.Close()
	}
	if err != nil {
		os.Remove(tmp.Name())
		slog.Error("error writing record", "path", fullpath, "error", err)
		return fmt.Errorf("error writing record %v: %w", key, err)
	}

	err = os.Rename(tmp.Name(), fullpath)
	if err != nil {
		os.Remove(tmp.Name())
		slog.Error("error renaming record into place", "path", fullpath, "error", err)
		return fmt.Errorf("error writing record %v: %w", key, err)
	}

	return nil
}

func (s *DiskStore) Remove(key string) error {
	fullpath := s.fullpath(key)

	err := os.Remove(fullpath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("error deleting record", "path", fullpath, "error", err)
		return fmt.Errorf("error deleting record %v: %w", key, err)
	}
	return nil
}

func (s *DiskStore) Keys() ([]string, error) {
	entries, err := os.ReadDir(s.basepath)
	if err != nil {
		slog.Error("error listing records", "path", s.basepath, "error", err)
		return nil, fmt.Errorf("error listing records: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		keys = append(keys, name[:len(name)-len(".json")])
	}

	return keys, nil
}

func (s *DiskStore) Usage() (UsageStats, error) {
	var stat unix.Statfs_t

	err := unix.Statfs(s.basepath, &stat)
	if err != nil {
		slog.Error("error getting disk usage for store", "path", s.basepath, "error", err)
		return UsageStats{}, fmt.Errorf("error getting disk usage stats: %w", err)
	}

	return UsageStats{
		TotalBytes: stat.Blocks * uint64(stat.Bsize),
		FreeBytes:  stat.Bfree * uint64(stat.Bsize),
	}, nil
}

func (s *DiskStore) Location() string {
	return s.basepath
}

// MemoryStore is an in-memory KVStore used in tests and single-process setups.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]string)}
}

func (s *MemoryStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.records[key]
	return value, ok, nil
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key] = value
	return nil
}

func (s *MemoryStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, key)
	return nil
}

func (s *MemoryStore) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.records))
	for key := range s.records {
		keys = append(keys, key)
	}
	return keys, nil
}
