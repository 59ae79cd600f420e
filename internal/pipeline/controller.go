// Package pipeline drives a task request through its full lifecycle:
// admission, authentication, attachment decoding, code generation,
// repository provisioning, site publishing, and callback notification.
// State only moves forward; a failed stage ends the run.
package pipeline

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/lucasnoah/siteforge/internal/artifact"
	"github.com/lucasnoah/siteforge/internal/attachment"
	"github.com/lucasnoah/siteforge/internal/events"
	"github.com/lucasnoah/siteforge/internal/generate"
	"github.com/lucasnoah/siteforge/internal/notify"
	"github.com/lucasnoah/siteforge/internal/pages"
	"github.com/lucasnoah/siteforge/internal/repo"
	"github.com/lucasnoah/siteforge/internal/retry"
	"github.com/lucasnoah/siteforge/internal/secret"
	"github.com/lucasnoah/siteforge/internal/task"
)

// Options wires a Controller's collaborators.
type Options struct {
	// Secret is the shared token requests must present. Empty denies all.
	Secret    string
	Codec     *attachment.Codec
	Generator generate.Generator
	Repos     repo.Provisioner
	Publisher pages.Publisher
	Notifier  *notify.Dispatcher
	Events    events.Logger
	Retry     retry.Policy

	// PublishFailClosed turns publish failures into run failures instead of
	// degraded successes.
	PublishFailClosed bool
}

// Controller owns the pipeline state machine. One Controller serves every
// request; per-run state lives on the stack of Run.
type Controller struct {
	registry  *task.Registry
	secret    string
	codec     *attachment.Codec
	generator generate.Generator
	repos     repo.Provisioner
	publisher pages.Publisher
	notifier  *notify.Dispatcher
	events    events.Logger
	policy    retry.Policy

	publishFailClosed bool
}

// NewController creates a Controller. A nil Events logger is replaced with a
// no-op; the retry policy's retryable predicate defaults to the repository
// error classification.
func NewController(opts Options) *Controller {
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.Codec == nil {
		opts.Codec = attachment.NewCodec(0)
	}
	policy := opts.Retry
	if policy.Retryable == nil {
		policy.Retryable = repo.IsRetryable
	}
	return &Controller{
		registry:          task.NewRegistry(),
		secret:            opts.Secret,
		codec:             opts.Codec,
		generator:         opts.Generator,
		repos:             opts.Repos,
		publisher:         opts.Publisher,
		notifier:          opts.Notifier,
		events:            opts.Events,
		policy:            policy,
		publishFailClosed: opts.PublishFailClosed,
	}
}

// Registry exposes the in-flight task registry.
func (c *Controller) Registry() *task.Registry { return c.registry }

// run carries per-run identity through the stage helpers.
type run struct {
	id  string
	req *task.Request
}

// Run executes one pipeline run to a terminal Result. It never returns nil.
// Failures after admission are delivered to the callback URL as well as
// returned; authentication and admission failures are returned only.
func (c *Controller) Run(ctx context.Context, req *task.Request) *Result {
	r := &run{id: uuid.NewString(), req: req}
	c.event(r, "received", "", "")

	if !secret.Validate(req.Secret, c.secret) {
		return c.reject(r, StageAuthentication, KindUnauthorized, "invalid credentials")
	}
	c.event(r, "authenticated", "", "")

	if err := req.Validate(); err != nil {
		return c.reject(r, StageValidation, KindInvalidRequest, err.Error())
	}

	if !c.registry.Acquire(req.Task) {
		return c.reject(r, StageAdmission, KindTaskBusy,
			fmt.Sprintf("task %q already has a run in flight", req.Task))
	}
	defer c.registry.Release(req.Task)

	files, err := c.codec.DecodeAll(req.Attachments)
	if err != nil {
		return c.fail(r, StageDecode, KindInvalidRequest, err)
	}
	c.event(r, "artifacts_decoded", "", fmt.Sprintf("%d attachment(s)", len(files)))

	var res *Result
	switch req.Round {
	case task.RoundRevise:
		res = c.revise(ctx, r, files)
	default:
		res = c.build(ctx, r, files)
	}

	c.notifyResult(r, res)
	if !res.Failed() {
		c.event(r, "completed", "", "")
	}
	return res
}

// build runs the round-1 flow: generate, provision a fresh repository,
// publish.
func (c *Controller) build(ctx context.Context, r *run, files []attachment.File) *Result {
	set, err := c.generate(ctx, r, generate.Request{
		Brief:       r.req.Brief,
		Checks:      r.req.Checks,
		Attachments: files,
	}, "generated")
	if err != nil {
		return c.fail(r, StageGenerate, KindGenerationFailed, err)
	}

	var h *repo.Handle
	err = c.policy.Do(ctx, func() error {
		var innerErr error
		h, innerErr = c.repos.CreateAndPush(ctx, r.req.Task, set)
		return innerErr
	})
	if err != nil {
		return c.fail(r, StageProvision, repoKind(err), err)
	}
	c.event(r, "repository_provisioned", "", h.FullName())

	return c.publish(ctx, r, h, "site built")
}

// revise runs the round-2 flow: locate the existing repository, snapshot it,
// regenerate against the current content, replace and push.
func (c *Controller) revise(ctx context.Context, r *run, files []attachment.File) *Result {
	var h *repo.Handle
	err := c.policy.Do(ctx, func() error {
		var innerErr error
		h, innerErr = c.repos.Locate(ctx, r.req.Task)
		return innerErr
	})
	if err != nil {
		return c.fail(r, StageLocate, repoKind(err), err)
	}
	c.event(r, "repository_located", "", h.FullName())

	// A failed snapshot degrades the revise to generation without prior
	// content rather than failing the run.
	existing, err := c.repos.Snapshot(ctx, h)
	if err != nil {
		log.Printf("pipeline: run %s: snapshot of %s failed, revising without prior content: %v",
			r.id, h.FullName(), err)
		c.event(r, "snapshot_failed", StageSnapshot, err.Error())
		existing = nil
	}

	set, err := c.generate(ctx, r, generate.Request{
		Brief:       r.req.Brief,
		Checks:      r.req.Checks,
		Attachments: files,
		Existing:    existing,
	}, "regenerated")
	if err != nil {
		return c.fail(r, StageGenerate, KindGenerationFailed, err)
	}

	err = c.policy.Do(ctx, func() error {
		var innerErr error
		h, innerErr = c.repos.LocateAndPush(ctx, r.req.Task, set)
		return innerErr
	})
	if err != nil {
		return c.fail(r, StageUpdate, repoKind(err), err)
	}
	c.event(r, "repository_updated", "", h.Commit)

	return c.publish(ctx, r, h, "site revised")
}

// generate runs the backend chain and validates the returned artifact set.
func (c *Controller) generate(ctx context.Context, r *run, greq generate.Request, event string) (artifact.Set, error) {
	set, err := c.generator.Generate(ctx, greq)
	if err != nil {
		return nil, err
	}
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("generated artifacts rejected: %w", err)
	}
	c.event(r, event, "", fmt.Sprintf("%d file(s)", len(set)))
	return set, nil
}

// publish enables site hosting and assembles the success result. A publish
// failure degrades the run unless the controller is configured fail-closed.
func (c *Controller) publish(ctx context.Context, r *run, h *repo.Handle, message string) *Result {
	res := &Result{
		RunID:     r.id,
		Task:      r.req.Task,
		Round:     r.req.Round,
		Status:    StatusSuccess,
		Message:   message,
		RepoURL:   h.HTMLURL,
		CommitSHA: h.Commit,
	}

	url, err := c.publisher.Publish(ctx, h)
	if err != nil {
		if c.publishFailClosed {
			return c.fail(r, StagePublish, KindPublishFailed, err)
		}
		log.Printf("pipeline: run %s: publish failed, continuing degraded: %v", r.id, err)
		c.event(r, "publish_failed", StagePublish, err.Error())
		res.Degraded = true
		res.Message = message + " (site publish failed; repository is available)"
		return res
	}

	res.PagesURL = url
	c.event(r, "published", "", url)
	return res
}

// notifyResult schedules callback delivery for a terminal result.
func (c *Controller) notifyResult(r *run, res *Result) {
	if c.notifier == nil || r.req.CallbackURL == "" {
		return
	}
	c.notifier.Dispatch(r.req.CallbackURL, notify.Payload{
		Email:     r.req.Email,
		Task:      r.req.Task,
		Round:     r.req.Round,
		Nonce:     r.req.Nonce,
		Status:    res.Status,
		Message:   res.Message,
		RepoURL:   res.RepoURL,
		CommitSHA: res.CommitSHA,
		PagesURL:  res.PagesURL,
	})
	c.event(r, "notification_scheduled", "", r.req.CallbackURL)
}

// reject builds a pre-admission failure. No callback is sent: the request
// never entered the pipeline.
func (c *Controller) reject(r *run, stage, kind, message string) *Result {
	c.event(r, "rejected", stage, message)
	return &Result{
		RunID:     r.id,
		Task:      r.req.Task,
		Round:     r.req.Round,
		Status:    StatusError,
		Message:   message,
		FailStage: stage,
		FailKind:  kind,
	}
}

// fail builds a post-admission failure result.
func (c *Controller) fail(r *run, stage, kind string, err error) *Result {
	log.Printf("pipeline: run %s: task %s round %d failed at %s: %v",
		r.id, r.req.Task, r.req.Round, stage, err)
	c.event(r, "failed", stage, err.Error())
	return &Result{
		RunID:     r.id,
		Task:      r.req.Task,
		Round:     r.req.Round,
		Status:    StatusError,
		Message:   err.Error(),
		FailStage: stage,
		FailKind:  kind,
	}
}

// event records a run event. Best effort; the pipeline never blocks on it.
func (c *Controller) event(r *run, event, stage, detail string) {
	_ = c.events.LogRunEvent(r.id, r.req.Task, r.req.Round, event, stage, detail)
}

// repoKind maps a classified repository error to a failure kind.
func repoKind(err error) string {
	if repo.KindOf(err) == repo.NotFound {
		return KindNotFound
	}
	return KindRepositoryError
}
