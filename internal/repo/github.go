package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/lucasnoah/siteforge/internal/artifact"
)

// CmdRunner provides gh command execution. Interface for testing.
type CmdRunner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// GitRunner provides git command execution. Interface for testing.
type GitRunner interface {
	RunGit(ctx context.Context, dir string, args ...string) (string, error)
}

// ExecRunner runs gh and git commands via exec.
type ExecRunner struct{}

func (r *ExecRunner) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "gh", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("gh %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// RunGit implements GitRunner using exec.CommandContext.
func (r *ExecRunner) RunGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// defaultOpTimeout bounds each provisioner operation when no timeout is
// configured. A hung gh/git subprocess must never stall a run forever.
const defaultOpTimeout = 2 * time.Minute

// GitHub provisions repositories through the gh CLI and pushes through git.
// Authentication is ambient (gh auth / GITHUB_TOKEN).
type GitHub struct {
	cmd    CmdRunner
	git    GitRunner
	owner  string
	prefix string
	// stageDir is where throwaway working copies are created.
	stageDir string
	// timeout is the deadline applied to each operation.
	timeout time.Duration
	// maxNameAttempts bounds collision mangling.
	maxNameAttempts int
	now             func() time.Time
}

// NewGitHub creates a GitHub provisioner. If cmd also implements GitRunner
// it is used for git operations as well. A timeout <= 0 falls back to the
// default operation deadline.
func NewGitHub(cmd CmdRunner, owner, prefix, stageDir string, timeout time.Duration) *GitHub {
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	g := &GitHub{
		cmd:             cmd,
		owner:           owner,
		prefix:          prefix,
		stageDir:        stageDir,
		timeout:         timeout,
		maxNameAttempts: 3,
		now:             time.Now,
	}
	if git, ok := cmd.(GitRunner); ok {
		g.git = git
	}
	return g
}

// NewGitHubWithGit creates a GitHub provisioner with a separate git runner.
func NewGitHubWithGit(cmd CmdRunner, git GitRunner, owner, prefix, stageDir string, timeout time.Duration) *GitHub {
	g := NewGitHub(cmd, owner, prefix, stageDir, timeout)
	g.git = git
	return g
}

// opCtx derives the per-operation deadline context. Expiry surfaces as a
// killed subprocess and classifies as NetworkFailure, so the retry policy
// treats a timed-out stage like any other transport failure.
func (g *GitHub) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.timeout)
}

// repoDescription is the ownership marker written into every repository
// this service creates. Locate resolves through it, so create and locate
// stay in agreement even when the repository name had to be mangled.
func repoDescription(taskID string) string {
	return fmt.Sprintf("Generated site for task %s", taskID)
}

// CreateAndPush implements Provisioner. A name collision with a repository
// this task already owns (same marker) is resolved by reusing it; a foreign
// collision by suffix mangling up to a bound.
func (g *GitHub) CreateAndPush(ctx context.Context, taskID string, set artifact.Set) (*Handle, error) {
	ctx, cancel := g.opCtx(ctx)
	defer cancel()

	base := RepoName(g.prefix, taskID)

	name := base
	var created bool
	for attempt := 0; attempt < g.maxNameAttempts; attempt++ {
		_, err := g.cmd.Run(ctx, "repo", "create", g.owner+"/"+name, "--public",
			"--description", repoDescription(taskID))
		if err == nil {
			created = true
			break
		}
		if !isNameTaken(err) {
			return nil, classify("create repository", err)
		}
		// The taken name is usually an earlier run of this same task.
		// Reuse it; creating a mangled sibling would orphan the task's
		// history.
		if v, verr := g.view(ctx, name); verr == nil && v.Description == repoDescription(taskID) {
			h := g.handleFromView(v)
			h.CreatedAt = g.now().UTC()
			commit, perr := g.pushReplace(ctx, h, set, "Initial site build")
			if perr != nil {
				return nil, perr
			}
			h.Commit = commit
			return h, nil
		}
		name = MangleName(base)
	}
	if !created {
		return nil, &Error{Kind: NameCollisionExhausted, Op: "create repository",
			Err: fmt.Errorf("no free name after %d attempts (base %q)", g.maxNameAttempts, base)}
	}

	h := g.handleFor(name)
	h.CreatedAt = g.now().UTC()

	commit, err := g.pushFresh(ctx, h, set, "Initial site build")
	if err != nil {
		return nil, err
	}
	h.Commit = commit
	return h, nil
}

// Locate implements Provisioner. The canonical derived name is tried first
// and accepted only when it carries the task's marker; otherwise the
// owner's repositories are searched for the marker, which finds
// collision-mangled names.
func (g *GitHub) Locate(ctx context.Context, taskID string) (*Handle, error) {
	ctx, cancel := g.opCtx(ctx)
	defer cancel()

	name := RepoName(g.prefix, taskID)

	v, err := g.view(ctx, name)
	if err == nil && v.Description == repoDescription(taskID) {
		return g.handleFromView(v), nil
	}
	if err != nil && KindOf(err) != NotFound {
		return nil, err
	}
	// The canonical name is missing or belongs to someone else; the task's
	// repository may exist under a mangled name.
	return g.locateByMarker(ctx, taskID)
}

// locateByMarker searches the owner's repositories for the task marker.
func (g *GitHub) locateByMarker(ctx context.Context, taskID string) (*Handle, error) {
	out, err := g.cmd.Run(ctx, "repo", "list", g.owner,
		"--json", "name,url,description,defaultBranchRef", "--limit", "500")
	if err != nil {
		return nil, classify("locate repository", err)
	}

	var views []repoView
	if err := json.Unmarshal([]byte(out), &views); err != nil {
		return nil, &Error{Kind: NetworkFailure, Op: "locate repository",
			Err: fmt.Errorf("parse repo list JSON: %w", err)}
	}

	want := repoDescription(taskID)
	for i := range views {
		if views[i].Description == want {
			return g.handleFromView(&views[i]), nil
		}
	}
	return nil, &Error{Kind: NotFound, Op: "locate repository",
		Err: fmt.Errorf("no repository carries the marker for task %q", taskID)}
}

type repoView struct {
	Name             string `json:"name"`
	URL              string `json:"url"`
	Description      string `json:"description"`
	DefaultBranchRef struct {
		Name string `json:"name"`
	} `json:"defaultBranchRef"`
}

// view fetches one repository's metadata.
func (g *GitHub) view(ctx context.Context, name string) (*repoView, error) {
	out, err := g.cmd.Run(ctx, "repo", "view", g.owner+"/"+name,
		"--json", "name,url,description,defaultBranchRef")
	if err != nil {
		return nil, classify("locate repository", err)
	}

	var v repoView
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		return nil, &Error{Kind: NetworkFailure, Op: "locate repository",
			Err: fmt.Errorf("parse repo view JSON: %w", err)}
	}
	return &v, nil
}

// handleFromView builds a Handle from fetched repository metadata.
func (g *GitHub) handleFromView(v *repoView) *Handle {
	h := g.handleFor(v.Name)
	if v.DefaultBranchRef.Name != "" {
		h.Branch = v.DefaultBranchRef.Name
	}
	if v.URL != "" {
		h.HTMLURL = v.URL
	}
	return h
}

// Snapshot implements Provisioner: it clones the head of the repository and
// reads every tracked file into an artifact set.
func (g *GitHub) Snapshot(ctx context.Context, h *Handle) (artifact.Set, error) {
	ctx, cancel := g.opCtx(ctx)
	defer cancel()

	if g.git == nil {
		return nil, &Error{Kind: NetworkFailure, Op: "snapshot", Err: fmt.Errorf("git runner not configured")}
	}
	dir, err := g.tempDir("snapshot")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	if _, err := g.git.RunGit(ctx, "", "clone", "--depth", "1", h.CloneURL, dir); err != nil {
		return nil, classify("snapshot clone", err)
	}

	var set artifact.Set
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		set = set.Add(filepath.ToSlash(rel), content)
		return nil
	})
	if err != nil {
		return nil, &Error{Kind: NetworkFailure, Op: "snapshot read", Err: err}
	}
	return set, nil
}

// LocateAndPush implements Provisioner.
func (g *GitHub) LocateAndPush(ctx context.Context, taskID string, set artifact.Set) (*Handle, error) {
	ctx, cancel := g.opCtx(ctx)
	defer cancel()

	h, err := g.Locate(ctx, taskID)
	if err != nil {
		return nil, err
	}
	commit, err := g.pushReplace(ctx, h, set, "Revise site")
	if err != nil {
		return nil, err
	}
	h.Commit = commit
	return h, nil
}

// handleFor builds a Handle for a repository name under the configured owner.
func (g *GitHub) handleFor(name string) *Handle {
	return &Handle{
		Owner:    g.owner,
		Name:     name,
		Branch:   "main",
		CloneURL: fmt.Sprintf("https://github.com/%s/%s.git", g.owner, name),
		HTMLURL:  fmt.Sprintf("https://github.com/%s/%s", g.owner, name),
	}
}

// pushFresh initialises a working copy from scratch, writes the set and
// pushes the first commit. The repository is only advertised as complete
// once the push is acknowledged.
func (g *GitHub) pushFresh(ctx context.Context, h *Handle, set artifact.Set, message string) (string, error) {
	if g.git == nil {
		return "", &Error{Kind: NetworkFailure, Op: "push", Err: fmt.Errorf("git runner not configured")}
	}
	dir, err := g.tempDir(h.Name)
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	if _, err := g.git.RunGit(ctx, dir, "init", "-b", h.Branch); err != nil {
		return "", classify("git init", err)
	}
	if _, err := g.git.RunGit(ctx, dir, "remote", "add", "origin", h.CloneURL); err != nil {
		return "", classify("git remote add", err)
	}
	return g.commitAndPush(ctx, dir, h, set, message, true)
}

// pushReplace clones the existing repository, replaces its working tree
// with the set and pushes one commit.
func (g *GitHub) pushReplace(ctx context.Context, h *Handle, set artifact.Set, message string) (string, error) {
	if g.git == nil {
		return "", &Error{Kind: NetworkFailure, Op: "push", Err: fmt.Errorf("git runner not configured")}
	}
	dir, err := g.tempDir(h.Name)
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	if _, err := g.git.RunGit(ctx, "", "clone", h.CloneURL, dir); err != nil {
		return "", classify("clone", err)
	}

	// Clear the tracked tree so removed files disappear from the new set.
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", &Error{Kind: NetworkFailure, Op: "clear tree", Err: err}
	}
	for _, e := range entries {
		if e.Name() == ".git" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return "", &Error{Kind: NetworkFailure, Op: "clear tree", Err: err}
		}
	}
	return g.commitAndPush(ctx, dir, h, set, message, false)
}

// commitAndPush writes the set into dir, commits and pushes.
func (g *GitHub) commitAndPush(ctx context.Context, dir string, h *Handle, set artifact.Set, message string, setUpstream bool) (string, error) {
	for _, f := range set {
		path := filepath.Join(dir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", &Error{Kind: NetworkFailure, Op: "write artifacts", Err: err}
		}
		if err := os.WriteFile(path, f.Content, 0o644); err != nil {
			return "", &Error{Kind: NetworkFailure, Op: "write artifacts", Err: err}
		}
	}

	if _, err := g.git.RunGit(ctx, dir, "add", "-A"); err != nil {
		return "", classify("git add", err)
	}
	if _, err := g.git.RunGit(ctx, dir, "commit", "--allow-empty", "-m", message); err != nil {
		return "", classify("git commit", err)
	}

	pushArgs := []string{"push"}
	if setUpstream {
		pushArgs = append(pushArgs, "-u")
	}
	pushArgs = append(pushArgs, "origin", h.Branch)
	if _, err := g.git.RunGit(ctx, dir, pushArgs...); err != nil {
		return "", classify("git push", err)
	}

	sha, err := g.git.RunGit(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", classify("git rev-parse", err)
	}
	return sha, nil
}

func (g *GitHub) tempDir(label string) (string, error) {
	base := g.stageDir
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", &Error{Kind: NetworkFailure, Op: "stage dir", Err: err}
	}
	dir, err := os.MkdirTemp(base, "siteforge-"+label+"-")
	if err != nil {
		return "", &Error{Kind: NetworkFailure, Op: "stage dir", Err: err}
	}
	return dir, nil
}

// isNameTaken reports whether a create failure was a name collision.
func isNameTaken(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists")
}

// classify maps command failures onto provisioning error kinds by sniffing
// the command output. Unrecognised failures default to NetworkFailure so
// the retry policy gets a chance.
func classify(op string, err error) *Error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"):
		return &Error{Kind: RateLimited, Op: op, Err: err}
	case strings.Contains(msg, "bad credentials"),
		strings.Contains(msg, "authentication failed"),
		strings.Contains(msg, "http 401"),
		strings.Contains(msg, "must be logged in"):
		return &Error{Kind: AuthRejected, Op: op, Err: err}
	case strings.Contains(msg, "could not resolve"),
		strings.Contains(msg, "not found"),
		strings.Contains(msg, "http 404"):
		return &Error{Kind: NotFound, Op: op, Err: err}
	default:
		return &Error{Kind: NetworkFailure, Op: op, Err: err}
	}
}
