// Package watermark maintains the per-instrument last-synced-date map that
// makes repeated synchronization runs cheap. The map lives in a single JSON
// file next to the series data; an instrument's watermark may be later than
// the last date actually present in its series, because a confirmed-empty
// (suspended) window still advances it.
package watermark

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"stocksync/internal/util"
)

// FileName is the watermark file inside the market data directory.
const FileName = ".watermarks.json"

const maxPersistRetries = 3

// Store is the durable code → last-synced-date map. All mutations update the
// in-memory cache first and then persist through an atomic temp-file rename.
// Persistence failures are retried with exponential backoff and then
// swallowed: the cache stays authoritative for the rest of the run and the
// map can always be rebuilt from the series files. The last persistence
// failure is kept for observability.
type Store struct {
	path string
	log  *slog.Logger

	mu         sync.Mutex
	cache      map[string]string // code -> YYYYMMDD
	loaded     bool
	persistErr error
}

// NewStore creates a Store whose backing file lives in dir. The file is
// loaded lazily on first access.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: filepath.Join(dir, FileName), log: logger}
}

// Get returns the last-synced date for code, if one is recorded.
func (s *Store) Get(code string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	v, ok := s.cache[code]
	if !ok {
		return time.Time{}, false
	}
	t, err := util.ParseCompact(v)
	if err != nil {
		// A corrupt entry is treated as absent; the resolver will fall
		// back to reading the series file.
		s.log.Warn("corrupt watermark entry", "code", code, "value", v)
		return time.Time{}, false
	}
	return t, true
}

// Set records date as the last-synced date for code and persists the map.
func (s *Store) Set(code string, date time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	s.cache[code] = util.Compact(date)
	s.persist()
}

// BatchSet records last-synced dates for many codes with a single persist.
func (s *Store) BatchSet(updates map[string]time.Time) {
	if len(updates) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	for code, date := range updates {
		s.cache[code] = util.Compact(date)
	}
	s.persist()
	s.log.Debug("watermarks batch updated", "count", len(updates))
}

// Remove deletes the watermark for code, if present.
func (s *Store) Remove(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	if _, ok := s.cache[code]; !ok {
		return
	}
	delete(s.cache, code)
	s.persist()
}

// Clear drops the whole map and removes the backing file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache = make(map[string]string)
	s.loaded = true
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing watermark file: %w", err)
	}
	return nil
}

// Rebuild recomputes the whole map from persisted series, using last to
// obtain each instrument's latest recorded date. Instruments without a
// series are skipped. Returns the number of instruments rebuilt. This is the
// recovery path for a corrupted or missing watermark file.
func (s *Store) Rebuild(codes []string, last func(code string) (time.Time, bool)) int {
	rebuilt := make(map[string]string, len(codes))
	for _, code := range codes {
		if d, ok := last(code); ok {
			rebuilt[code] = util.Compact(d)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache = rebuilt
	s.loaded = true
	if len(rebuilt) > 0 {
		s.persist()
	}
	s.log.Info("watermarks rebuilt", "instruments", len(rebuilt), "scanned", len(codes))
	return len(rebuilt)
}

// Codes returns every instrument code with a recorded watermark.
func (s *Store) Codes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	codes := make([]string, 0, len(s.cache))
	for code := range s.cache {
		codes = append(codes, code)
	}
	return codes
}

// Len returns the number of recorded watermarks.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	return len(s.cache)
}

// LastPersistError returns the most recent swallowed persistence failure, or
// nil if every persist so far succeeded.
func (s *Store) LastPersistError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistErr
}

// ensureLoaded reads the backing file into the cache. A missing or unreadable
// file yields an empty map; the run proceeds and rebuilds state as it goes.
// Callers must hold s.mu.
func (s *Store) ensureLoaded() {
	if s.loaded {
		return
	}
	s.loaded = true
	s.cache = make(map[string]string)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("loading watermark file failed, starting empty", "error", err)
		}
		return
	}
	if err := json.Unmarshal(data, &s.cache); err != nil {
		s.log.Warn("watermark file corrupt, starting empty", "error", err)
		s.cache = make(map[string]string)
	}
}

// persist writes the cache to disk: marshal, write a uniquely-named temp file
// (pid plus random suffix, so concurrent runs never collide on the temp
// name), then atomically rename over the canonical file. Retried with
// exponential backoff; after the final failure the error is recorded and
// swallowed. Callers must hold s.mu.
func (s *Store) persist() {
	data, err := json.MarshalIndent(s.cache, "", "  ")
	if err != nil {
		s.persistErr = err
		s.log.Error("marshalling watermarks", "error", err)
		return
	}

	op := func() error {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return err
		}
		tmp := fmt.Sprintf("%s.tmp.%d.%s", s.path, os.Getpid(), uuid.NewString()[:8])
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return err
		}
		if err := os.Rename(tmp, s.path); err != nil {
			os.Remove(tmp)
			return err
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	if err := backoff.Retry(op, backoff.WithMaxRetries(bo, maxPersistRetries)); err != nil {
		s.persistErr = fmt.Errorf("persisting watermarks: %w", err)
		s.log.Error("persisting watermarks failed, in-memory cache remains authoritative",
			"error", err, "retries", maxPersistRetries)
		return
	}
	s.persistErr = nil
}
