// Package safestore implements the concurrent, crash-safe JSON-file
// substrate every service in this system persists through: a per-collection
// mutex (bounded acquisition timeout), atomic write (temp file + rename),
// and a backup/quarantine load path that never lets a corrupted file take
// the process down.
package safestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrBusy is returned when a lock could not be acquired within the bounded
// timeout. Callers surface this as a StorageBusy error kind.
var ErrBusy = errors.New("safestore: storage busy (lock acquisition timed out)")

const defaultLockTimeout = 5 * time.Second

// Store guards a single JSON collection file identified by path.
type Store struct {
	path         string
	lockTimeout  time.Duration
	sem          chan struct{} // 1-buffered channel acts as a timeout-capable mutex
	warnf        func(format string, args ...any)
}

// New creates a Store for the collection file at path. The parent directory
// is created if missing. warnf receives WARNING-level side-channel log
// messages (e.g. corruption quarantine events) — pass a no-op to discard.
func New(path string, warnf func(format string, args ...any)) (*Store, error) {
	if warnf == nil {
		warnf = func(string, ...any) {}
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // shared collection directory
		return nil, fmt.Errorf("safestore: failed to create collection dir: %w", err)
	}
	return &Store{
		path:        path,
		lockTimeout: defaultLockTimeout,
		sem:         make(chan struct{}, 1),
		warnf:       warnf,
	}, nil
}

// acquire blocks until the store's lock is free or the bounded timeout
// elapses, in which case it returns ErrBusy.
func (s *Store) acquire() error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-time.After(s.lockTimeout):
		return ErrBusy
	}
}

func (s *Store) release() {
	<-s.sem
}

// Load unmarshals the collection file into out. If the file does not exist,
// out is left untouched (caller-supplied default) and nil is returned. On a
// parse failure, Load retries `<path>.bak`; if that also fails to parse, the
// corrupted file is quarantined to `<path>.corrupted.<unix-epoch>` and Load
// returns nil against the caller's default, logging a WARNING — corruption
// must never stop the service, it must be contained and surfaced.
func (s *Store) Load(out any) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("safestore: read failed: %w", err)
	}

	if err := json.Unmarshal(data, out); err == nil {
		return nil
	}

	// Primary parse failed — try the backup.
	backupPath := s.path + ".bak"
	backupData, berr := os.ReadFile(backupPath)
	if berr == nil {
		if err := json.Unmarshal(backupData, out); err == nil {
			s.warnf("safestore: %s was corrupt, recovered from %s", s.path, backupPath)
			return nil
		}
	}

	// Both primary and backup are unusable: quarantine and continue with
	// the caller's default. Liveness over availability, always logged.
	quarantinePath := fmt.Sprintf("%s.corrupted.%d", s.path, time.Now().Unix())
	if err := os.Rename(s.path, quarantinePath); err != nil {
		s.warnf("safestore: failed to quarantine corrupted file %s: %v", s.path, err)
	} else {
		s.warnf("safestore: quarantined corrupted collection %s to %s; continuing with empty default", s.path, quarantinePath)
	}
	return nil
}

// Save writes in as the collection's new contents. The previous contents
// (if any) are copied to `<path>.bak` first; the new contents are written to
// `<path>.tmp` and atomically renamed over the destination, so a crash
// mid-write never leaves a half-written collection file.
func (s *Store) Save(in any) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	if existing, err := os.ReadFile(s.path); err == nil {
		//nolint:gosec // collection files are not secrets; 0644 matches teacher convention
		if err := os.WriteFile(s.path+".bak", existing, 0o644); err != nil {
			s.warnf("safestore: failed to write backup for %s: %v", s.path, err)
		}
	}

	data, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return fmt.Errorf("safestore: marshal failed: %w", err)
	}

	tmpPath := s.path + ".tmp"
	//nolint:gosec // collection files are not secrets; 0644 matches teacher convention
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("safestore: write temp file failed: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("safestore: atomic rename failed: %w", err)
	}
	return nil
}

// WithLock runs fn while holding the store's lock, for callers that need to
// read, mutate, and write a collection as a single critical section (e.g.
// the audit chain's read-last-then-append sequence, or compliance
// declaration generation, which issues its credential while holding this
// lock).
func (s *Store) WithLock(fn func() error) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()
	return fn()
}

// MultiLock acquires multiple stores' locks in a fixed, caller-independent
// order (by path) to avoid deadlock, then runs fn. No service in this module
// calls it.
func MultiLock(stores []*Store, fn func() error) error {
	ordered := make([]*Store, len(stores))
	copy(ordered, stores)
	sortStoresByPath(ordered)

	acquired := make([]*Store, 0, len(ordered))
	defer func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i].release()
		}
	}()

	for _, st := range ordered {
		if err := st.acquire(); err != nil {
			return err
		}
		acquired = append(acquired, st)
	}
	return fn()
}

func sortStoresByPath(stores []*Store) {
	for i := 1; i < len(stores); i++ {
		for j := i; j > 0 && stores[j].path < stores[j-1].path; j-- {
			stores[j], stores[j-1] = stores[j-1], stores[j]
		}
	}
}
