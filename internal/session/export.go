package session

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nexus-ai/nexus/internal/nexuserr"
)

// Export renders the named session in the requested format: "json",
// "markdown" or "text". Fails with a descriptive error when the session does
// not exist or the format is unrecognized.
func (s *Store) Export(name, format string) (string, error) {
	sess := s.Load(name)
	if sess == nil {
		return "", nexuserr.Newf(nexuserr.CategoryUsage, "session not found: %s", name)
	}

	switch format {
	case "json":
		data, err := json.MarshalIndent(sess, "", "  ")
		if err != nil {
			return "", nexuserr.Wrap(nexuserr.CategoryGeneral,
				fmt.Sprintf("failed to serialize session %s", name), err)
		}
		return string(data), nil

	case "markdown":
		var b strings.Builder
		fmt.Fprintf(&b, "# Session: %s\n\n", sess.Name)
		fmt.Fprintf(&b, "**Created:** %s\n", sess.CreatedAt.Format("2006-01-02T15:04:05"))
		fmt.Fprintf(&b, "**Updated:** %s\n", sess.UpdatedAt.Format("2006-01-02T15:04:05"))
		fmt.Fprintf(&b, "**Model:** %s\n", sess.Model)
		fmt.Fprintf(&b, "**Provider:** %s\n", sess.Provider)
		fmt.Fprintf(&b, "**Total Tokens:** %d\n\n---\n\n", sess.TotalTokens)
		for _, turn := range sess.Turns {
			fmt.Fprintf(&b, "## %s\n\n%s\n\n", roleLabel(turn.Role), turn.Content)
		}
		return strings.TrimRight(b.String(), "\n") + "\n", nil

	case "text":
		var b strings.Builder
		fmt.Fprintf(&b, "Session: %s\n", sess.Name)
		fmt.Fprintf(&b, "Created: %s\n", sess.CreatedAt.Format("2006-01-02T15:04:05"))
		fmt.Fprintf(&b, "Model: %s (%s)\n\n", sess.Model, sess.Provider)
		b.WriteString(strings.Repeat("-", 40) + "\n\n")
		for _, turn := range sess.Turns {
			fmt.Fprintf(&b, "[%s]\n%s\n\n", roleLabel(turn.Role), turn.Content)
		}
		return strings.TrimRight(b.String(), "\n") + "\n", nil

	default:
		return "", nexuserr.Newf(nexuserr.CategoryUsage, "invalid export format: %s", format).
			WithHint("supported formats: json, markdown, text")
	}
}

func roleLabel(role string) string {
	if role == "user" {
		return "User"
	}
	return "Assistant"
}
