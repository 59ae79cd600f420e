// Package generate defines the code-generation collaborator: an interface
// producing complete artifact sets from a brief, plus an ordered fallback
// chain over multiple backends.
package generate

import (
	"context"
	"errors"
	"fmt"

	"github.com/lucasnoah/siteforge/internal/artifact"
	"github.com/lucasnoah/siteforge/internal/attachment"
)

// Request carries everything a backend needs to produce an artifact set.
// When Existing is non-nil (revise flow) the backend must return a complete
// replacement set, never a diff.
type Request struct {
	Brief       string
	Checks      []string
	Attachments []attachment.File
	Existing    artifact.Set
}

// Generator produces a complete artifact set for a request.
type Generator interface {
	// Name identifies the backend in logs and errors.
	Name() string
	Generate(ctx context.Context, req Request) (artifact.Set, error)
}

// Error is a generation failure. Transient marks failures where trying a
// different backend is worthwhile (timeouts, capacity); the pipeline never
// retries the same backend.
type Error struct {
	Backend   string
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("generate (%s, %s): %v", e.Backend, kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err is a generation error marked transient.
func IsTransient(err error) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Transient
	}
	return false
}
