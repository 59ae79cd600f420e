package generate

import (
	"context"
	"log"

	"github.com/lucasnoah/siteforge/internal/artifact"
)

// Chain tries an ordered list of backends. First success wins; a
// non-transient error stops the chain immediately; exhausting every backend
// on transient errors is fatal.
type Chain struct {
	backends []Generator
}

// NewChain creates a Chain over the given backends, tried in order.
func NewChain(backends ...Generator) *Chain {
	return &Chain{backends: backends}
}

// Name identifies the chain by its backends.
func (c *Chain) Name() string {
	if len(c.backends) == 0 {
		return "chain(empty)"
	}
	name := "chain(" + c.backends[0].Name()
	for _, b := range c.backends[1:] {
		name += "," + b.Name()
	}
	return name + ")"
}

// Generate runs the fallback sequence.
func (c *Chain) Generate(ctx context.Context, req Request) (artifact.Set, error) {
	if len(c.backends) == 0 {
		return nil, &Error{Backend: c.Name(), Err: ErrNoBackends}
	}

	var lastErr error
	for _, b := range c.backends {
		set, err := b.Generate(ctx, req)
		if err == nil {
			return set, nil
		}
		lastErr = err
		if !IsTransient(err) {
			return nil, err
		}
		log.Printf("generate: backend %s failed transiently, trying next: %v", b.Name(), err)
	}
	return nil, lastErr
}
