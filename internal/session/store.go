package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nexus-ai/nexus/internal/nexuserr"
)

// TempPrefix marks ephemeral sessions excluded from listing/search and
// eligible for age-based cleanup.
const TempPrefix = ".temp-"

// Store persists sessions as {name}.json files in a single directory.
// Each Session object is owned by one call path at a time; the only
// durability mechanism is the atomic temp-file + rename write.
type Store struct {
	dir string
}

// NewStore creates the storage directory if needed and sweeps expired temp
// sessions (best effort, retention from cfg callers; 24h default).
func NewStore(dir string, tempRetention time.Duration) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nexuserr.Wrap(nexuserr.CategoryFile,
			fmt.Sprintf("cannot create sessions directory %s", dir), err)
	}
	s := &Store{dir: dir}
	if tempRetention <= 0 {
		tempRetention = 24 * time.Hour
	}
	s.CleanupTempSessions(tempRetention)
	return s, nil
}

// SanitizeName maps a session name to a filesystem-safe identifier: the
// reserved characters < > : " / \ | ? * each become an underscore and edge
// whitespace is trimmed. Deliberately narrower than the prompt-name policy;
// session names map to flat filenames with no nested-path surface.
func SanitizeName(name string) string {
	sanitized := name
	for _, ch := range `<>:"/\|?*` {
		sanitized = strings.ReplaceAll(sanitized, string(ch), "_")
	}
	return strings.TrimSpace(sanitized)
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Create makes and persists a new session under the sanitized name.
// It does not guard against an existing file; use GetOrCreate for
// create-if-absent semantics.
func (s *Store) Create(name, model, providerName string) (*Session, error) {
	now := time.Now()
	sess := &Session{
		ID:        uuid.NewString(),
		Name:      SanitizeName(name),
		CreatedAt: now,
		UpdatedAt: now,
		Model:     model,
		Provider:  providerName,
	}
	if err := s.Save(sess); err != nil {
		return nil, err
	}
	log.Info().Str("session", sess.Name).Msg("created new session")
	return sess, nil
}

// GetOrCreate loads an existing session or creates a fresh one.
func (s *Store) GetOrCreate(name, model, providerName string) (*Session, error) {
	if sess := s.Load(name); sess != nil {
		return sess, nil
	}
	return s.Create(name, model, providerName)
}

// Load returns the named session, or nil when the file is missing or
// unreadable. Corrupt state is treated as absence: a parse failure is logged
// and the caller sees nil, never an error.
func (s *Store) Load(name string) *Session {
	path := s.path(SanitizeName(name))
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("failed to read session file")
		}
		return nil
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("corrupted session file")
		return nil
	}
	return &sess
}

// Save writes the session atomically: serialize to a sibling .tmp file, then
// rename over the destination. On any failure the temp artifact is removed
// and the error is surfaced; silent data loss on write is worse than a
// visible error. UpdatedAt is refreshed as part of every save.
func (s *Store) Save(sess *Session) error {
	sess.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return nexuserr.Wrap(nexuserr.CategoryFile,
			fmt.Sprintf("failed to serialize session %s", sess.Name), err)
	}

	path := s.path(sess.Name)
	tmp := strings.TrimSuffix(path, ".json") + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return nexuserr.Wrap(nexuserr.CategoryFile,
			fmt.Sprintf("failed to write session %s", sess.Name), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nexuserr.Wrap(nexuserr.CategoryFile,
			fmt.Sprintf("failed to save session %s", sess.Name), err)
	}
	log.Debug().Str("session", sess.Name).Msg("saved session")
	return nil
}

// AddTurn appends a turn and accumulates its total token count. save controls
// whether the session is written to disk synchronously.
func (s *Store) AddTurn(sess *Session, turn Turn, save bool) error {
	sess.Turns = append(sess.Turns, turn)
	sess.TotalTokens += turn.Tokens["total"]
	if save {
		return s.Save(sess)
	}
	return nil
}

// List returns all non-temp sessions, newest first by UpdatedAt.
func (s *Store) List() []*Session {
	var sessions []*Session
	for _, name := range s.sessionNames() {
		if strings.HasPrefix(name, TempPrefix) {
			continue
		}
		if sess := s.Load(name); sess != nil {
			sessions = append(sessions, sess)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions
}

// Delete removes the named session file. Returns false when it did not exist.
func (s *Store) Delete(name string) bool {
	path := s.path(SanitizeName(name))
	if _, err := os.Stat(path); err != nil {
		log.Warn().Str("session", name).Msg("session not found")
		return false
	}
	if err := os.Remove(path); err != nil {
		log.Error().Err(err).Str("session", name).Msg("failed to delete session")
		return false
	}
	log.Info().Str("session", name).Msg("deleted session")
	return true
}

// Rename moves a session to a new name. Fails (false) when the source is
// absent or the destination already exists; never silently overwrites.
func (s *Store) Rename(oldName, newName string) bool {
	oldSanitized := SanitizeName(oldName)
	newSanitized := SanitizeName(newName)

	if _, err := os.Stat(s.path(oldSanitized)); err != nil {
		log.Warn().Str("session", oldSanitized).Msg("session not found")
		return false
	}
	if _, err := os.Stat(s.path(newSanitized)); err == nil {
		log.Warn().Str("session", newSanitized).Msg("session already exists")
		return false
	}

	sess := s.Load(oldSanitized)
	if sess == nil {
		return false
	}
	sess.Name = newSanitized
	if err := s.Save(sess); err != nil {
		log.Error().Err(err).Msg("failed to rename session")
		return false
	}
	if err := os.Remove(s.path(oldSanitized)); err != nil {
		log.Warn().Err(err).Str("session", oldSanitized).Msg("failed to remove old session file")
	}
	log.Info().Str("from", oldSanitized).Str("to", newSanitized).Msg("renamed session")
	return true
}

// Search matches sessions by case-insensitive substring. A name match wins
// over content for the same session (content is not even checked), a content
// match reports the first matching turn's full content, and each session
// appears at most once. Results are newest first.
func (s *Store) Search(query string) []SearchResult {
	queryLower := strings.ToLower(query)
	var results []SearchResult

	for _, name := range s.sessionNames() {
		if strings.HasPrefix(name, TempPrefix) {
			continue
		}
		sess := s.Load(name)
		if sess == nil {
			continue
		}

		if strings.Contains(strings.ToLower(sess.Name), queryLower) {
			results = append(results, SearchResult{
				SessionName: sess.Name,
				MatchType:   "name",
				MatchedText: sess.Name,
				TurnCount:   len(sess.Turns),
				UpdatedAt:   sess.UpdatedAt,
			})
			continue
		}

		for _, turn := range sess.Turns {
			if strings.Contains(strings.ToLower(turn.Content), queryLower) {
				results = append(results, SearchResult{
					SessionName: sess.Name,
					MatchType:   "content",
					MatchedText: turn.Content,
					TurnCount:   len(sess.Turns),
					UpdatedAt:   sess.UpdatedAt,
				})
				break
			}
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].UpdatedAt.After(results[j].UpdatedAt)
	})
	return results
}

// NewTempSession creates a reserved-prefix session named by millisecond
// timestamp, giving practical uniqueness within a process lifetime.
func (s *Store) NewTempSession(model, providerName string) (*Session, error) {
	name := fmt.Sprintf("%s%d", TempPrefix, time.Now().UnixMilli())
	return s.Create(name, model, providerName)
}

// CleanupTempSessions removes temp-prefixed session files whose filesystem
// modification time is older than maxAge. Best-effort janitorial pass:
// individual failures are logged, the sweep continues.
func (s *Store) CleanupTempSessions(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)
	cleaned := 0

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", s.dir).Msg("cannot scan sessions directory")
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, TempPrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			log.Warn().Err(err).Str("file", name).Msg("failed to stat temp session")
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
				log.Warn().Err(err).Str("file", name).Msg("failed to clean up temp session")
				continue
			}
			cleaned++
			log.Debug().Str("file", name).Msg("cleaned up temp session")
		}
	}
	if cleaned > 0 {
		log.Info().Int("count", cleaned).Msg("cleaned up temp sessions")
	}
}

// sessionNames lists the stems of all .json files in the store directory,
// ignoring .tmp artifacts of in-flight writes.
func (s *Store) sessionNames() []string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", s.dir).Msg("cannot scan sessions directory")
		return nil
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(names)
	return names
}
