// Package cache is a small file-backed cache: one JSON document per key,
// stamped at write time. Expiry is decided by the reader, so the same entry
// can serve callers with different freshness requirements.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// entry is the on-disk shape: {"timestamp": <unix seconds>, "value": <json>}.
type entry struct {
	Timestamp float64         `json:"timestamp"`
	Value     json.RawMessage `json:"value"`
}

// Manager reads and writes cache entries under a single directory.
type Manager struct {
	dir string
}

// NewManager creates the cache directory if needed. A directory that cannot
// be created degrades every operation to a miss rather than failing callers.
func NewManager(dir string) *Manager {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("cannot create cache directory")
	}
	return &Manager{dir: dir}
}

func (m *Manager) path(key string) string {
	return filepath.Join(m.dir, key+".json")
}

// Get returns the raw cached value for key if the entry is younger than ttl.
// A non-positive ttl always misses. All read failures are soft: logged and
// reported as a miss.
func (m *Manager) Get(key string, ttl time.Duration) (json.RawMessage, bool) {
	data, err := os.ReadFile(m.path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache entry is not valid JSON")
		return nil, false
	}
	if e.Value == nil {
		log.Warn().Str("key", key).Msg("cache entry missing value field")
		return nil, false
	}

	age := time.Since(time.Unix(0, int64(e.Timestamp*float64(time.Second))))
	if ttl <= 0 || age > ttl {
		log.Debug().Str("key", key).Msg("cache expired")
		return nil, false
	}
	return e.Value, true
}

// GetJSON unmarshals a fresh cache entry into out; ok reports a usable hit.
func (m *Manager) GetJSON(key string, ttl time.Duration, out any) bool {
	raw, ok := m.Get(key, ttl)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache value has unexpected shape")
		return false
	}
	return true
}

// Set stores value under key, stamped with the current time. Write failures
// are soft: the cache is an optimization, not a durability layer.
func (m *Manager) Set(key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache value not serializable")
		return
	}
	data, err := json.Marshal(entry{
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
		Value:     raw,
	})
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		return
	}
	if err := os.WriteFile(m.path(key), data, 0o644); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}
