// Package pathsec validates user-supplied filesystem paths before they are
// read into prompts. It blocks path traversal (including symlink escapes from
// a base directory) and accidental exposure of sensitive files such as env
// files, private keys and cloud credentials.
package pathsec

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/nexus-ai/nexus/internal/nexuserr"
)

// sensitiveDirs are directory names whose presence anywhere in a path marks
// it sensitive.
var sensitiveDirs = map[string]bool{
	".ssh":    true,
	".aws":    true,
	".kube":   true,
	".gnupg":  true,
	".docker": true,
}

// sensitivePatterns match against the filename only, anchored at the start,
// case-insensitive. Based on OWASP guidance for credential material.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\.env.*`),            // .env, .env.local, .env.production
	regexp.MustCompile(`(?i)^.*\.pem$`),           // SSL certificates
	regexp.MustCompile(`(?i)^.*\.key$`),           // private keys
	regexp.MustCompile(`(?i)^.*\.p12$`),           // PKCS#12 certificates
	regexp.MustCompile(`(?i)^.*\.pfx$`),           // PKCS#12 certificates (Windows)
	regexp.MustCompile(`(?i)^id_rsa.*`),           // SSH RSA keys
	regexp.MustCompile(`(?i)^id_dsa`),             // SSH DSA keys
	regexp.MustCompile(`(?i)^id_ecdsa`),           // SSH ECDSA keys
	regexp.MustCompile(`(?i)^id_ed25519`),         // SSH Ed25519 keys
	regexp.MustCompile(`(?i)^credentials\.json`),  // GCP/Firebase credentials
	regexp.MustCompile(`(?i)^secrets\.ya?ml`),     // secrets.yaml / secrets.yml
	regexp.MustCompile(`(?i)^\.npmrc`),            // npm credentials
	regexp.MustCompile(`(?i)^\.pypirc`),           // PyPI credentials
	regexp.MustCompile(`(?i)^\.netrc`),            // generic credentials file
	regexp.MustCompile(`(?i)^\.dockercfg`),        // Docker credentials
}

// IsSensitive reports whether the path looks like credential material:
// any component naming a sensitive directory, or a filename matching the
// sensitive patterns.
func IsSensitive(path string) bool {
	clean := filepath.Clean(path)
	for _, part := range strings.Split(clean, string(filepath.Separator)) {
		if sensitiveDirs[strings.ToLower(part)] {
			return true
		}
	}
	name := filepath.Base(clean)
	for _, re := range sensitivePatterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// Options controls Validate behavior.
type Options struct {
	// BaseDir, when set, confines the resolved path to its subtree.
	BaseDir string
	// AllowSensitive skips the sensitive-file gate entirely.
	AllowSensitive bool
	// Interactive permits prompting for confirmation on sensitive files
	// when stdin is an attended terminal.
	Interactive bool
	// Confirm is the prompt used in interactive mode. nil falls back to a
	// stderr yes/no prompt; tests inject their own.
	Confirm func(filename string) bool
	// IsTerminal overrides the attended-terminal check; nil uses stdin.
	IsTerminal func() bool
}

// Validate canonicalizes rawPath and authorizes it, returning the resolved
// path. Each failure mode is distinguishable:
//  1. the path cannot be canonicalized
//  2. the path does not exist
//  3. the path escapes Options.BaseDir (checked after symlink resolution,
//     so a symlink pointing outside the base is rejected too)
//  4. the path is sensitive and access was not allowed or confirmed
func Validate(rawPath string, opts Options) (string, error) {
	abs, err := filepath.Abs(rawPath)
	if err != nil {
		return "", nexuserr.Wrap(nexuserr.CategoryFile,
			fmt.Sprintf("invalid path: %s", rawPath), err)
	}

	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return "", nexuserr.Newf(nexuserr.CategoryFile, "path not found: %s", rawPath)
		}
		return "", nexuserr.Wrap(nexuserr.CategoryFile,
			fmt.Sprintf("cannot access path: %s", rawPath), err)
	}

	// Resolve symlinks so base-dir confinement cannot be bypassed through a
	// link that points outside the base.
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", nexuserr.Wrap(nexuserr.CategoryFile,
			fmt.Sprintf("invalid path: %s", rawPath), err)
	}

	if opts.BaseDir != "" {
		base, err := filepath.Abs(opts.BaseDir)
		if err == nil {
			base, err = filepath.EvalSymlinks(base)
		}
		if err != nil {
			return "", nexuserr.Wrap(nexuserr.CategoryFile,
				fmt.Sprintf("invalid base directory: %s", opts.BaseDir), err)
		}
		rel, err := filepath.Rel(base, resolved)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", nexuserr.Newf(nexuserr.CategorySecurity,
				"access denied: '%s' is outside the working directory", rawPath)
		}
	}

	if !opts.AllowSensitive && IsSensitive(resolved) {
		name := filepath.Base(resolved)
		if opts.Interactive && attendedTerminal(opts) {
			confirm := opts.Confirm
			if confirm == nil {
				confirm = promptConfirm
			}
			if !confirm(name) {
				return "", nexuserr.Newf(nexuserr.CategorySecurity,
					"declined to include sensitive file: %s", name)
			}
		} else {
			return "", nexuserr.Newf(nexuserr.CategorySecurity,
				"sensitive file access blocked: %s", name).
				WithHint("use --allow-sensitive to override")
		}
	}

	return resolved, nil
}

// WalkFiles expands a validated path into individual readable files. A plain
// file yields itself; a directory is walked recursively with hidden segments
// (any path component starting with ".") skipped rather than validated.
// Every surviving file goes through Validate with the same options.
func WalkFiles(rawPath string, opts Options) ([]string, error) {
	root, err := Validate(rawPath, opts)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.CategoryFile,
			fmt.Sprintf("cannot access path: %s", rawPath), err)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var files []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("skipping unreadable entry")
			return nil
		}
		if path == root {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		resolved, err := Validate(path, opts)
		if err != nil {
			return err
		}
		files = append(files, resolved)
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return files, nil
}

func attendedTerminal(opts Options) bool {
	if opts.IsTerminal != nil {
		return opts.IsTerminal()
	}
	return stdinIsTerminal()
}
