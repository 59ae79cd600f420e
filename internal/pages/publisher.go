// Package pages defines the static-hosting collaborator: enabling site
// hosting for a provisioned repository.
package pages

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lucasnoah/siteforge/internal/repo"
)

// Publisher enables static hosting for a repository and returns its public
// URL. Publish is idempotent: enabling an already-published repository
// succeeds and returns the same URL.
type Publisher interface {
	Publish(ctx context.Context, h *repo.Handle) (string, error)
}

// Error is a publish failure. Publish errors never fail a run on their own;
// the pipeline downgrades them to a degraded success unless configured
// otherwise.
type Error struct {
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("publish: %v", e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// defaultTimeout bounds the enablement call when no timeout is configured.
const defaultTimeout = 2 * time.Minute

// GitHubPages enables GitHub Pages through the gh api command.
type GitHubPages struct {
	cmd     repo.CmdRunner
	timeout time.Duration
}

// NewGitHubPages creates a GitHubPages publisher. A timeout <= 0 falls back
// to the default call deadline.
func NewGitHubPages(cmd repo.CmdRunner, timeout time.Duration) *GitHubPages {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &GitHubPages{cmd: cmd, timeout: timeout}
}

// Publish implements Publisher.
func (p *GitHubPages) Publish(ctx context.Context, h *repo.Handle) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	url := SiteURL(h)

	_, err := p.cmd.Run(ctx, "api", "-X", "POST",
		fmt.Sprintf("repos/%s/pages", h.FullName()),
		"-f", fmt.Sprintf("source[branch]=%s", h.Branch),
		"-f", "source[path]=/")
	if err != nil {
		if alreadyEnabled(err) {
			return url, nil
		}
		return "", &Error{Err: err}
	}
	return url, nil
}

// SiteURL returns the public URL hosting will serve the repository at.
func SiteURL(h *repo.Handle) string {
	return fmt.Sprintf("https://%s.github.io/%s/", h.Owner, h.Name)
}

// alreadyEnabled reports whether the failure means Pages is already
// configured for the repository.
func alreadyEnabled(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "409") || strings.Contains(msg, "already exists")
}
