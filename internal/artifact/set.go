// Package artifact models the file set produced by code generation: an
// ordered mapping of relative paths to byte content.
package artifact

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// File is a single generated file.
type File struct {
	Path    string
	Content []byte
}

// Set is an ordered collection of generated files. Order is preserved from
// the generator's output.
type Set []File

// Add appends a file, replacing any earlier entry with the same path.
func (s Set) Add(p string, content []byte) Set {
	for i := range s {
		if s[i].Path == p {
			s[i].Content = content
			return s
		}
	}
	return append(s, File{Path: p, Content: content})
}

// Get returns the content for a path and whether it exists.
func (s Set) Get(p string) ([]byte, bool) {
	for i := range s {
		if s[i].Path == p {
			return s[i].Content, true
		}
	}
	return nil, false
}

// Paths returns the file paths in order.
func (s Set) Paths() []string {
	out := make([]string, len(s))
	for i := range s {
		out[i] = s[i].Path
	}
	return out
}

// EntryPoint is the document a published set must serve at its root.
const EntryPoint = "index.html"

// LicenseFile is the license document every published set must carry.
const LicenseFile = "LICENSE"

// Validate checks path hygiene and the publication policy: every path must
// be relative and traversal-free, and the set must include the entry-point
// document and a license. The policy is enforced here, not trusted from the
// generator.
func (s Set) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("artifact set is empty")
	}
	seen := make(map[string]bool, len(s))
	for _, f := range s {
		if err := checkPath(f.Path); err != nil {
			return err
		}
		if seen[f.Path] {
			return fmt.Errorf("duplicate artifact path %q", f.Path)
		}
		seen[f.Path] = true
	}
	if !seen[EntryPoint] {
		return fmt.Errorf("artifact set missing entry point %q", EntryPoint)
	}
	if !seen[LicenseFile] {
		return fmt.Errorf("artifact set missing license file %q", LicenseFile)
	}
	return nil
}

// checkPath rejects absolute paths and traversal sequences.
func checkPath(p string) error {
	if p == "" {
		return fmt.Errorf("empty artifact path")
	}
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, "\\") {
		return fmt.Errorf("artifact path %q must be relative", p)
	}
	if strings.Contains(p, "\\") {
		return fmt.Errorf("artifact path %q must use forward slashes", p)
	}
	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("artifact path %q escapes the repository root", p)
	}
	if clean != p {
		return fmt.Errorf("artifact path %q is not in canonical form", p)
	}
	return nil
}

var nonSlugRe = regexp.MustCompile(`[^a-z0-9-]+`)
var multiHyphenRe = regexp.MustCompile(`-+`)

// Slug converts free text into a safe lowercase identifier: non-alphanumerics
// become hyphens, runs collapse, edges are trimmed, length is capped.
func Slug(text string, maxLen int) string {
	s := nonSlugRe.ReplaceAllString(strings.ToLower(text), "-")
	s = multiHyphenRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if maxLen > 0 && len(s) > maxLen {
		s = strings.Trim(s[:maxLen], "-")
	}
	if s == "" {
		return "unnamed"
	}
	return s
}
