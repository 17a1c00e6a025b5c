// Package prompts manages reusable system prompts stored as markdown files.
// Prompt names arrive from a richer attack surface than session names
// (shell-quoted args, completion scripts, copy-pasted URLs), so sanitization
// here is deliberately more aggressive: percent-decoding, unicode lookalike
// normalization and traversal collapsing, with a confinement re-check after.
package prompts

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/nexus-ai/nexus/internal/nexuserr"
)

var invalidChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// Library stores one .md file per named prompt under a single directory.
type Library struct {
	dir string
}

// NewLibrary creates the storage directory if needed.
func NewLibrary(dir string) (*Library, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.CategoryFile,
			fmt.Sprintf("invalid prompts directory %s", dir), err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, nexuserr.Wrap(nexuserr.CategoryFile,
			fmt.Sprintf("cannot create prompts directory %s", abs), err)
	}
	return &Library{dir: abs}, nil
}

// SanitizeName maps a user-supplied prompt name to a filesystem-safe
// identifier, or fails hard for pathological input. Steps, in order:
// percent-decode up to two passes (stopping early when decoding is a no-op),
// strip null bytes, normalize unicode lookalike separators, strip leading
// dot/slash markers, collapse ".." to "__", replace everything outside
// [A-Za-z0-9._-] with "_", truncate to 255.
func (l *Library) SanitizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nexuserr.New(nexuserr.CategorySecurity, "prompt name cannot be empty")
	}

	for i := 0; i < 2; i++ {
		decoded, err := url.PathUnescape(name)
		if err != nil || decoded == name {
			break
		}
		name = decoded
	}

	name = strings.ReplaceAll(name, "\x00", "")
	// Unicode lookalikes for path separators.
	name = strings.NewReplacer("∕", "/", "／", "/", "＼", `\`).Replace(name)

	name = strings.TrimSpace(strings.TrimLeft(name, `.\/`))
	for strings.Contains(name, "..") {
		name = strings.ReplaceAll(name, "..", "__")
	}

	sanitized := invalidChars.ReplaceAllString(name, "_")
	if sanitized == "" {
		log.Warn().Str("input", name).Msg("prompt name contains no valid characters")
		return "", nexuserr.New(nexuserr.CategorySecurity,
			"prompt name must contain at least one alphanumeric character, hyphen, or underscore")
	}
	if len(sanitized) > 255 {
		sanitized = sanitized[:255]
	}

	// Defense in depth: the algorithm above cannot produce an escaping
	// name, but verify confinement anyway.
	resolved := filepath.Join(l.dir, sanitized+".md")
	rel, err := filepath.Rel(l.dir, resolved)
	if err != nil || strings.HasPrefix(rel, "..") {
		log.Error().Str("input", name).Str("resolved", resolved).
			Msg("path traversal detected after sanitization")
		return "", nexuserr.New(nexuserr.CategorySecurity,
			"invalid prompt name: path traversal detected")
	}

	return sanitized, nil
}

func (l *Library) path(sanitized string) string {
	return filepath.Join(l.dir, sanitized+".md")
}

// List returns the stored prompt names (stems of .md files), sorted.
func (l *Library) List() []string {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".md") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".md"))
	}
	sort.Strings(names)
	return names
}

// Get returns the prompt content, or ok=false when no such prompt exists.
// The name is sanitized first; a rejected name is an error, not a miss.
func (l *Library) Get(name string) (string, bool, error) {
	sanitized, err := l.SanitizeName(name)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(l.path(sanitized))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, nexuserr.Wrap(nexuserr.CategoryFile,
			fmt.Sprintf("cannot read prompt %s", sanitized), err)
	}
	return string(data), true, nil
}

// Save writes the prompt content, overwriting any existing prompt of the
// same name, and returns the file path.
func (l *Library) Save(name, content string) (string, error) {
	sanitized, err := l.SanitizeName(name)
	if err != nil {
		return "", err
	}
	path := l.path(sanitized)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", nexuserr.Wrap(nexuserr.CategoryFile,
			fmt.Sprintf("cannot write prompt %s", sanitized), err)
	}
	log.Info().Str("prompt", sanitized).Msg("saved prompt")
	return path, nil
}

// Delete removes the named prompt. Returns false when it did not exist.
func (l *Library) Delete(name string) (bool, error) {
	sanitized, err := l.SanitizeName(name)
	if err != nil {
		return false, err
	}
	path := l.path(sanitized)
	if _, err := os.Stat(path); err != nil {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		return false, nexuserr.Wrap(nexuserr.CategoryFile,
			fmt.Sprintf("cannot delete prompt %s", sanitized), err)
	}
	log.Info().Str("prompt", sanitized).Msg("deleted prompt")
	return true, nil
}
