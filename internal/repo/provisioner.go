// Package repo defines the repository-host collaborator: provisioning a
// remote repository for a task and pushing artifact sets to it.
package repo

import (
	"context"
	"time"

	"github.com/lucasnoah/siteforge/internal/artifact"
)

// Handle locates a provisioned repository. The pipeline holds a Handle only
// for the duration of one run; on a revise it is re-derived from the task
// identifier, never read from local state.
type Handle struct {
	Owner     string
	Name      string
	Branch    string
	CloneURL  string
	HTMLURL   string
	Commit    string
	CreatedAt time.Time
}

// FullName returns owner/name.
func (h *Handle) FullName() string {
	return h.Owner + "/" + h.Name
}

// Provisioner is the repository-host collaborator.
type Provisioner interface {
	// CreateAndPush creates a fresh repository for the task, writes the
	// artifact set and pushes one commit. Build flow only. A name collision
	// with a repository the task already owns is resolved by reusing it;
	// foreign collisions by suffix mangling up to a bound.
	CreateAndPush(ctx context.Context, taskID string, set artifact.Set) (*Handle, error)

	// Locate resolves the repository created for the task identifier.
	// Returns a NotFound error if no repository exists; it never creates one.
	Locate(ctx context.Context, taskID string) (*Handle, error)

	// Snapshot reads the current artifact set from the repository head.
	Snapshot(ctx context.Context, h *Handle) (artifact.Set, error)

	// LocateAndPush resolves the task's repository, replaces its working
	// tree with the artifact set and pushes one commit. Revise flow only.
	LocateAndPush(ctx context.Context, taskID string, set artifact.Set) (*Handle, error)
}
