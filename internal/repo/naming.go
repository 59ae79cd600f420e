package repo

import (
	"strings"

	"github.com/google/uuid"

	"github.com/lucasnoah/siteforge/internal/artifact"
)

// maxNameLen bounds generated repository names, leaving room for a
// collision suffix.
const maxNameLen = 50

// RepoName derives the canonical repository name for a task identifier.
// The derivation is deterministic: a revise request recomputes the same
// name from the same task id.
func RepoName(prefix, taskID string) string {
	slug := artifact.Slug(taskID, maxNameLen)
	if prefix == "" {
		return slug
	}
	name := prefix + "-" + slug
	if len(name) > maxNameLen {
		name = strings.Trim(name[:maxNameLen], "-")
	}
	return name
}

// MangleName appends a short random suffix to escape a name collision.
func MangleName(base string) string {
	return base + "-" + uuid.NewString()[:8]
}
