package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), 24*time.Hour)
	require.NoError(t, err)
	return store
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain-name", "plain-name"},
		{`a/b\c`, "a_b_c"},
		{`q?s*t|u`, "q_s_t_u"},
		{`<x>:"y"`, "_x___y_"},
		{"  padded  ", "padded"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeName(tt.in), "input %q", tt.in)
	}
}

func TestCreateLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	sess, err := store.Create("api-design", "gpt-4o", "openai")
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)

	loaded := store.Load("api-design")
	require.NotNil(t, loaded)
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, "gpt-4o", loaded.Model)
	assert.Equal(t, "openai", loaded.Provider)
}

func TestLoadMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, 24*time.Hour)
	require.NoError(t, err)

	assert.Nil(t, store.Load("absent"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{oops"), 0o644))
	assert.Nil(t, store.Load("broken"), "corrupt files read as absent")
}

func TestGetOrCreate(t *testing.T) {
	store := newTestStore(t)

	first, err := store.GetOrCreate("demo", "gpt-4", "openai")
	require.NoError(t, err)
	second, err := store.GetOrCreate("demo", "other-model", "anthropic")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "existing session wins over creation args")
	assert.Equal(t, "gpt-4", second.Model)
}

func TestAddTurnAccumulatesTokens(t *testing.T) {
	store := newTestStore(t)
	sess, err := store.Create("tokens", "gpt-4o", "openai")
	require.NoError(t, err)

	user := NewTurn("user", "hello", "gpt-4o")
	require.NoError(t, store.AddTurn(sess, user, false))

	asst := NewTurn("assistant", "hi there", "gpt-4o")
	asst.Tokens = map[string]int{"prompt": 10, "completion": 5, "total": 15}
	require.NoError(t, store.AddTurn(sess, asst, true))

	loaded := store.Load("tokens")
	require.NotNil(t, loaded)
	assert.Len(t, loaded.Turns, 2)
	assert.Equal(t, 15, loaded.TotalTokens)

	more := NewTurn("assistant", "again", "gpt-4o")
	more.Tokens = map[string]int{"total": 7}
	require.NoError(t, store.AddTurn(loaded, more, true))
	assert.Equal(t, 22, store.Load("tokens").TotalTokens)
}

func TestSaveLeavesNoTempArtifact(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, 24*time.Hour)
	require.NoError(t, err)

	_, err = store.Create("atomic", "m", "p")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, ".tmp", filepath.Ext(e.Name()),
			"temp artifact %s survived a successful save", e.Name())
	}
}

func TestListExcludesTempNewestFirst(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create("older", "m", "p")
	require.NoError(t, err)
	_, err = store.NewTempSession("m", "p")
	require.NoError(t, err)

	// Nanosecond timestamps serialize into the file, so a later save sorts
	// first even within the same test run.
	time.Sleep(5 * time.Millisecond)
	newer, err := store.Create("newer", "m", "p")
	require.NoError(t, err)

	listed := store.List()
	require.Len(t, listed, 2, "temp sessions are invisible to List")
	assert.Equal(t, newer.Name, listed[0].Name)
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Create("gone", "m", "p")
	require.NoError(t, err)

	assert.True(t, store.Delete("gone"))
	assert.Nil(t, store.Load("gone"))
	assert.False(t, store.Delete("gone"), "second delete reports absence")
}

func TestRename(t *testing.T) {
	store := newTestStore(t)
	orig, err := store.Create("from", "m", "p")
	require.NoError(t, err)
	_, err = store.Create("taken", "m", "p")
	require.NoError(t, err)

	assert.False(t, store.Rename("missing", "anything"))
	assert.False(t, store.Rename("from", "taken"), "never overwrite an existing session")

	assert.True(t, store.Rename("from", "to"))
	assert.Nil(t, store.Load("from"))
	renamed := store.Load("to")
	require.NotNil(t, renamed)
	assert.Equal(t, orig.ID, renamed.ID)
	assert.Equal(t, "to", renamed.Name)
}

func TestSearchNameBeatsContent(t *testing.T) {
	store := newTestStore(t)

	byName, err := store.Create("docker-setup", "m", "p")
	require.NoError(t, err)
	turn := NewTurn("user", "how do I run docker compose?", "m")
	require.NoError(t, store.AddTurn(byName, turn, true))

	byContent, err := store.Create("infra-notes", "m", "p")
	require.NoError(t, err)
	turn = NewTurn("user", "remind me about Docker networking", "m")
	require.NoError(t, store.AddTurn(byContent, turn, true))

	results := store.Search("docker")
	require.Len(t, results, 2)

	found := map[string]SearchResult{}
	for _, r := range results {
		found[r.SessionName] = r
	}
	assert.Equal(t, "name", found["docker-setup"].MatchType)
	assert.Equal(t, "content", found["infra-notes"].MatchType)
	assert.Equal(t, "remind me about Docker networking", found["infra-notes"].MatchedText)
}

func TestSearchOneResultPerSession(t *testing.T) {
	store := newTestStore(t)
	sess, err := store.Create("multi", "m", "p")
	require.NoError(t, err)
	require.NoError(t, store.AddTurn(sess, NewTurn("user", "first kubernetes question", "m"), false))
	require.NoError(t, store.AddTurn(sess, NewTurn("user", "second kubernetes question", "m"), true))

	results := store.Search("kubernetes")
	require.Len(t, results, 1)
	assert.Equal(t, "first kubernetes question", results[0].MatchedText,
		"the first matching turn is reported")
}

func TestTempSessionCleanup(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, 24*time.Hour)
	require.NoError(t, err)

	temp, err := store.NewTempSession("m", "p")
	require.NoError(t, err)
	keep, err := store.Create("durable", "m", "p")
	require.NoError(t, err)

	// Age both files past the retention window; only the temp one may go.
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, temp.Name+".json"), old, old))
	require.NoError(t, os.Chtimes(filepath.Join(dir, keep.Name+".json"), old, old))

	store.CleanupTempSessions(24 * time.Hour)

	assert.Nil(t, store.Load(temp.Name))
	assert.NotNil(t, store.Load("durable"))
}

func TestExportFormats(t *testing.T) {
	store := newTestStore(t)
	sess, err := store.Create("exportable", "gpt-4o", "openai")
	require.NoError(t, err)
	require.NoError(t, store.AddTurn(sess, NewTurn("user", "ping", "gpt-4o"), false))
	require.NoError(t, store.AddTurn(sess, NewTurn("assistant", "pong", "gpt-4o"), true))

	jsonOut, err := store.Export("exportable", "json")
	require.NoError(t, err)
	assert.Contains(t, jsonOut, `"exportable"`)
	assert.Contains(t, jsonOut, "pong")

	mdOut, err := store.Export("exportable", "markdown")
	require.NoError(t, err)
	assert.Contains(t, mdOut, "# Session: exportable")
	assert.Contains(t, mdOut, "ping")

	textOut, err := store.Export("exportable", "text")
	require.NoError(t, err)
	assert.Contains(t, textOut, "pong")

	_, err = store.Export("exportable", "xml")
	assert.Error(t, err, "unsupported formats are rejected")

	_, err = store.Export("nonexistent", "json")
	assert.Error(t, err)
}
