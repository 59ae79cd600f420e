package generate

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/lucasnoah/siteforge/internal/artifact"
)

// CmdRunner executes a one-shot CLI invocation. Interface for testing.
type CmdRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands via exec.CommandContext.
type ExecRunner struct{}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("%s: %s: %w", name, strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// CLIBackend drives an LLM through a one-shot CLI tool (e.g. `claude
// --print`). The rendered prompt is passed as the final argument.
type CLIBackend struct {
	name    string
	command string
	args    []string
	timeout time.Duration
	runner  CmdRunner
}

// NewCLIBackend creates a backend invoking command with args plus the prompt.
func NewCLIBackend(name, command string, args []string, timeout time.Duration, runner CmdRunner) *CLIBackend {
	if runner == nil {
		runner = &ExecRunner{}
	}
	return &CLIBackend{name: name, command: command, args: args, timeout: timeout, runner: runner}
}

func (b *CLIBackend) Name() string { return b.name }

// Generate invokes the CLI and parses its FILE-block response. Timeouts and
// process failures are transient (a different backend may still answer);
// unparseable output or an artifact set violating the publication policy is
// fatal for this request.
func (b *CLIBackend) Generate(ctx context.Context, req Request) (artifact.Set, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	args := append(append([]string{}, b.args...), BuildPrompt(req))
	out, err := b.runner.Run(ctx, b.command, args...)
	if err != nil {
		return nil, &Error{Backend: b.name, Transient: true, Err: err}
	}

	set, err := ParseFileBlocks(out)
	if err != nil {
		return nil, &Error{Backend: b.name, Err: err}
	}
	return set, nil
}

// ErrNoBackends is returned when generation is attempted with nothing configured.
var ErrNoBackends = errors.New("no generation backends configured")
