package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/lucasnoah/siteforge/internal/artifact"
	"github.com/lucasnoah/siteforge/internal/attachment"
	"github.com/lucasnoah/siteforge/internal/generate"
	"github.com/lucasnoah/siteforge/internal/notify"
	"github.com/lucasnoah/siteforge/internal/pages"
	"github.com/lucasnoah/siteforge/internal/repo"
	"github.com/lucasnoah/siteforge/internal/retry"
	"github.com/lucasnoah/siteforge/internal/task"
)

const testSecret = "shared-secret"

func validSet() artifact.Set {
	var s artifact.Set
	s = s.Add("index.html", []byte("<html></html>"))
	s = s.Add("LICENSE", []byte("MIT"))
	return s
}

type mockGenerator struct {
	mu       sync.Mutex
	calls    int
	lastReq  generate.Request
	set      artifact.Set
	err      error
	blockCh  chan struct{} // when non-nil, Generate waits on it
	notifyCh chan struct{} // when non-nil, closed on first entry
}

func (m *mockGenerator) Name() string { return "mock" }

func (m *mockGenerator) Generate(ctx context.Context, req generate.Request) (artifact.Set, error) {
	m.mu.Lock()
	m.calls++
	m.lastReq = req
	notifyCh, blockCh := m.notifyCh, m.blockCh
	m.notifyCh = nil
	m.mu.Unlock()
	if notifyCh != nil {
		close(notifyCh)
	}
	if blockCh != nil {
		<-blockCh
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.set, nil
}

type mockProvisioner struct {
	mu          sync.Mutex
	createCalls int
	createErrs  []error // consumed per call; nil entry means success
	locateErr   error
	snapshotSet artifact.Set
	snapshotErr error
	updateErr   error
	handle      repo.Handle
	lastSet     artifact.Set
}

func (m *mockProvisioner) CreateAndPush(ctx context.Context, taskID string, set artifact.Set) (*repo.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	m.lastSet = set
	if len(m.createErrs) > 0 {
		err := m.createErrs[0]
		m.createErrs = m.createErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	h := m.handle
	return &h, nil
}

func (m *mockProvisioner) Locate(ctx context.Context, taskID string) (*repo.Handle, error) {
	if m.locateErr != nil {
		return nil, m.locateErr
	}
	h := m.handle
	return &h, nil
}

func (m *mockProvisioner) Snapshot(ctx context.Context, h *repo.Handle) (artifact.Set, error) {
	if m.snapshotErr != nil {
		return nil, m.snapshotErr
	}
	return m.snapshotSet, nil
}

func (m *mockProvisioner) LocateAndPush(ctx context.Context, taskID string, set artifact.Set) (*repo.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSet = set
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	h := m.handle
	h.Commit = "def456"
	return &h, nil
}

type mockPublisher struct {
	url   string
	err   error
	calls int
}

func (m *mockPublisher) Publish(ctx context.Context, h *repo.Handle) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.url, nil
}

func testHandle() repo.Handle {
	return repo.Handle{
		Owner:   "builder",
		Name:    "llm-app-demo",
		Branch:  "main",
		HTMLURL: "https://github.com/builder/llm-app-demo",
		Commit:  "abc123",
	}
}

func buildRequest() *task.Request {
	return &task.Request{
		Email:  "dev@example.com",
		Secret: testSecret,
		Task:   "demo-task",
		Round:  task.RoundBuild,
		Nonce:  "nonce-1",
		Brief:  "Build a counter app.",
		Checks: []string{"index.html exists"},
	}
}

func newTestController(gen *mockGenerator, prov *mockProvisioner, pub *mockPublisher, notifier *notify.Dispatcher) *Controller {
	return NewController(Options{
		Secret:    testSecret,
		Codec:     attachment.NewCodec(1024),
		Generator: gen,
		Repos:     prov,
		Publisher: pub,
		Notifier:  notifier,
		Retry:     retry.Policy{MaxAttempts: 3, Multiplier: 2, Retryable: repo.IsRetryable},
	})
}

func TestBuildSuccessNotifiesCallback(t *testing.T) {
	var mu sync.Mutex
	var payloads []notify.Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p notify.Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode callback: %v", err)
		}
		mu.Lock()
		payloads = append(payloads, p)
		mu.Unlock()
	}))
	defer srv.Close()

	gen := &mockGenerator{set: validSet()}
	prov := &mockProvisioner{handle: testHandle()}
	pub := &mockPublisher{url: "https://builder.github.io/llm-app-demo/"}
	notifier := notify.NewDispatcher(srv.Client(), retry.Policy{MaxAttempts: 1})
	c := newTestController(gen, prov, pub, notifier)

	req := buildRequest()
	req.CallbackURL = srv.URL
	res := c.Run(context.Background(), req)

	if res.Status != StatusSuccess {
		t.Fatalf("status = %q (%s), want success", res.Status, res.Message)
	}
	if res.RepoURL != "https://github.com/builder/llm-app-demo" {
		t.Errorf("RepoURL = %q", res.RepoURL)
	}
	if res.PagesURL != "https://builder.github.io/llm-app-demo/" {
		t.Errorf("PagesURL = %q", res.PagesURL)
	}
	if res.CommitSHA != "abc123" {
		t.Errorf("CommitSHA = %q", res.CommitSHA)
	}
	if res.Degraded {
		t.Error("unexpected degraded flag")
	}

	notifier.Wait()
	mu.Lock()
	defer mu.Unlock()
	if len(payloads) != 1 {
		t.Fatalf("callback deliveries = %d, want 1", len(payloads))
	}
	p := payloads[0]
	if p.Nonce != "nonce-1" || p.Task != "demo-task" || p.Status != StatusSuccess {
		t.Errorf("payload = %+v", p)
	}
	if p.PagesURL == "" {
		t.Error("payload missing pages URL")
	}

	if c.Registry().InFlight("demo-task") {
		t.Error("task still marked in flight after run")
	}
}

func TestWrongSecretRejectedBeforeCollaborators(t *testing.T) {
	gen := &mockGenerator{set: validSet()}
	prov := &mockProvisioner{handle: testHandle()}
	pub := &mockPublisher{}
	c := newTestController(gen, prov, pub, nil)

	req := buildRequest()
	req.Secret = "wrong"
	res := c.Run(context.Background(), req)

	if !res.Failed() || res.FailKind != KindUnauthorized {
		t.Fatalf("result = %+v, want unauthorized failure", res)
	}
	if res.FailStage != StageAuthentication {
		t.Errorf("FailStage = %q", res.FailStage)
	}
	if gen.calls != 0 || prov.createCalls != 0 || pub.calls != 0 {
		t.Error("collaborators invoked for unauthenticated request")
	}
}

func TestUnconfiguredSecretDeniesAll(t *testing.T) {
	c := NewController(Options{
		Secret:    "",
		Generator: &mockGenerator{set: validSet()},
		Repos:     &mockProvisioner{handle: testHandle()},
		Publisher: &mockPublisher{},
	})

	req := buildRequest()
	req.Secret = ""
	if res := c.Run(context.Background(), req); res.FailKind != KindUnauthorized {
		t.Errorf("FailKind = %q, want unauthorized", res.FailKind)
	}
}

func TestDuplicateTaskRejected(t *testing.T) {
	blockCh := make(chan struct{})
	enteredCh := make(chan struct{})
	gen := &mockGenerator{set: validSet(), blockCh: blockCh, notifyCh: enteredCh}
	prov := &mockProvisioner{handle: testHandle()}
	pub := &mockPublisher{url: "https://builder.github.io/llm-app-demo/"}
	c := newTestController(gen, prov, pub, nil)

	firstDone := make(chan *Result, 1)
	go func() {
		firstDone <- c.Run(context.Background(), buildRequest())
	}()
	<-enteredCh

	dup := c.Run(context.Background(), buildRequest())
	if !dup.Failed() || dup.FailKind != KindTaskBusy {
		t.Fatalf("duplicate result = %+v, want task_busy", dup)
	}
	if dup.FailStage != StageAdmission {
		t.Errorf("FailStage = %q", dup.FailStage)
	}

	close(blockCh)
	if first := <-firstDone; first.Failed() {
		t.Errorf("first run failed: %+v", first)
	}

	// The id is free again once the first run finishes.
	again := c.Run(context.Background(), buildRequest())
	if again.Failed() {
		t.Errorf("rerun after release failed: %+v", again)
	}
}

func TestInvalidRequestRejected(t *testing.T) {
	c := newTestController(&mockGenerator{set: validSet()}, &mockProvisioner{handle: testHandle()}, &mockPublisher{}, nil)

	req := buildRequest()
	req.Brief = ""
	res := c.Run(context.Background(), req)
	if res.FailKind != KindInvalidRequest || res.FailStage != StageValidation {
		t.Errorf("result = %+v, want validation failure", res)
	}
}

func TestMalformedAttachmentFailsRequest(t *testing.T) {
	gen := &mockGenerator{set: validSet()}
	c := newTestController(gen, &mockProvisioner{handle: testHandle()}, &mockPublisher{}, nil)

	req := buildRequest()
	req.Attachments = []attachment.Attachment{{Name: "data.csv", URL: "data:text/csv;base64,!!!"}}
	res := c.Run(context.Background(), req)

	if res.FailStage != StageDecode || res.FailKind != KindInvalidRequest {
		t.Fatalf("result = %+v, want decode failure", res)
	}
	if gen.calls != 0 {
		t.Error("generator invoked despite undecodable attachment")
	}
}

func TestProvisionRetriesTransientErrors(t *testing.T) {
	netErr := &repo.Error{Kind: repo.NetworkFailure, Op: "create", Err: fmt.Errorf("connection reset")}
	prov := &mockProvisioner{
		handle:     testHandle(),
		createErrs: []error{netErr, netErr, nil},
	}
	c := newTestController(&mockGenerator{set: validSet()}, prov, &mockPublisher{url: "u"}, nil)

	res := c.Run(context.Background(), buildRequest())
	if res.Failed() {
		t.Fatalf("run failed: %+v", res)
	}
	if prov.createCalls != 3 {
		t.Errorf("createCalls = %d, want 3", prov.createCalls)
	}
}

func TestAuthRejectedNotRetried(t *testing.T) {
	authErr := &repo.Error{Kind: repo.AuthRejected, Op: "create", Err: fmt.Errorf("bad credentials")}
	prov := &mockProvisioner{handle: testHandle(), createErrs: []error{authErr}}
	c := newTestController(&mockGenerator{set: validSet()}, prov, &mockPublisher{}, nil)

	res := c.Run(context.Background(), buildRequest())
	if !res.Failed() || res.FailStage != StageProvision {
		t.Fatalf("result = %+v, want provision failure", res)
	}
	if prov.createCalls != 1 {
		t.Errorf("createCalls = %d, want 1 (no retry)", prov.createCalls)
	}
}

func TestGenerationExhaustionFailsRun(t *testing.T) {
	gen := &mockGenerator{err: &generate.Error{Backend: "mock", Transient: true, Err: fmt.Errorf("timeout")}}
	prov := &mockProvisioner{handle: testHandle()}
	c := newTestController(gen, prov, &mockPublisher{}, nil)

	res := c.Run(context.Background(), buildRequest())
	if res.FailStage != StageGenerate || res.FailKind != KindGenerationFailed {
		t.Fatalf("result = %+v, want generate failure", res)
	}
	if prov.createCalls != 0 {
		t.Error("repository provisioned despite generation failure")
	}
}

func TestIncompleteArtifactSetRejected(t *testing.T) {
	var s artifact.Set
	s = s.Add("index.html", []byte("x")) // no LICENSE
	c := newTestController(&mockGenerator{set: s}, &mockProvisioner{handle: testHandle()}, &mockPublisher{}, nil)

	res := c.Run(context.Background(), buildRequest())
	if res.FailStage != StageGenerate {
		t.Errorf("result = %+v, want generate-stage failure", res)
	}
}

func TestPublishFailureDegradesRun(t *testing.T) {
	pub := &mockPublisher{err: &pages.Error{Err: fmt.Errorf("api 500")}}
	c := newTestController(&mockGenerator{set: validSet()}, &mockProvisioner{handle: testHandle()}, pub, nil)

	res := c.Run(context.Background(), buildRequest())
	if res.Failed() {
		t.Fatalf("run failed: %+v, want degraded success", res)
	}
	if !res.Degraded {
		t.Error("Degraded not set")
	}
	if res.RepoURL == "" || res.CommitSHA == "" {
		t.Error("repository fields missing on degraded success")
	}
	if res.PagesURL != "" {
		t.Errorf("PagesURL = %q, want empty", res.PagesURL)
	}
}

func TestPublishFailureFailClosed(t *testing.T) {
	pub := &mockPublisher{err: &pages.Error{Err: fmt.Errorf("api 500")}}
	c := NewController(Options{
		Secret:            testSecret,
		Generator:         &mockGenerator{set: validSet()},
		Repos:             &mockProvisioner{handle: testHandle()},
		Publisher:         pub,
		PublishFailClosed: true,
	})

	res := c.Run(context.Background(), buildRequest())
	if !res.Failed() || res.FailStage != StagePublish {
		t.Errorf("result = %+v, want publish failure", res)
	}
}

func TestReviseUsesExistingContent(t *testing.T) {
	existing := validSet().Add("style.css", []byte("body{}"))
	gen := &mockGenerator{set: validSet()}
	prov := &mockProvisioner{handle: testHandle(), snapshotSet: existing}
	pub := &mockPublisher{url: "https://builder.github.io/llm-app-demo/"}
	c := newTestController(gen, prov, pub, nil)

	req := buildRequest()
	req.Round = task.RoundRevise
	res := c.Run(context.Background(), req)

	if res.Failed() {
		t.Fatalf("revise failed: %+v", res)
	}
	if res.CommitSHA != "def456" {
		t.Errorf("CommitSHA = %q, want the new push commit", res.CommitSHA)
	}
	if len(gen.lastReq.Existing) != 3 {
		t.Errorf("Existing has %d files, want 3", len(gen.lastReq.Existing))
	}
	if prov.createCalls != 0 {
		t.Error("revise created a repository")
	}
}

func TestReviseNeverBuiltFailsNotFound(t *testing.T) {
	prov := &mockProvisioner{
		handle:    testHandle(),
		locateErr: &repo.Error{Kind: repo.NotFound, Op: "locate", Err: fmt.Errorf("no repository")},
	}
	gen := &mockGenerator{set: validSet()}
	c := newTestController(gen, prov, &mockPublisher{}, nil)

	req := buildRequest()
	req.Round = task.RoundRevise
	res := c.Run(context.Background(), req)

	if !res.Failed() || res.FailStage != StageLocate || res.FailKind != KindNotFound {
		t.Fatalf("result = %+v, want not_found at locate", res)
	}
	if prov.createCalls != 0 {
		t.Error("revise fell back to creating a repository")
	}
	if gen.calls != 0 {
		t.Error("generation ran without a repository to revise")
	}
}

func TestReviseSnapshotFailureIsNonFatal(t *testing.T) {
	gen := &mockGenerator{set: validSet()}
	prov := &mockProvisioner{
		handle:      testHandle(),
		snapshotErr: fmt.Errorf("clone failed"),
	}
	c := newTestController(gen, prov, &mockPublisher{url: "u"}, nil)

	req := buildRequest()
	req.Round = task.RoundRevise
	res := c.Run(context.Background(), req)

	if res.Failed() {
		t.Fatalf("revise failed: %+v", res)
	}
	if gen.lastReq.Existing != nil {
		t.Error("Existing should be nil when snapshot fails")
	}
}

func TestFailureNotifiesCallback(t *testing.T) {
	var mu sync.Mutex
	var payloads []notify.Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p notify.Payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		mu.Lock()
		payloads = append(payloads, p)
		mu.Unlock()
	}))
	defer srv.Close()

	gen := &mockGenerator{err: &generate.Error{Backend: "mock", Err: fmt.Errorf("refused")}}
	notifier := notify.NewDispatcher(srv.Client(), retry.Policy{MaxAttempts: 1})
	c := newTestController(gen, &mockProvisioner{handle: testHandle()}, &mockPublisher{}, notifier)

	req := buildRequest()
	req.CallbackURL = srv.URL
	res := c.Run(context.Background(), req)
	if !res.Failed() {
		t.Fatal("expected failure")
	}

	notifier.Wait()
	mu.Lock()
	defer mu.Unlock()
	if len(payloads) != 1 || payloads[0].Status != StatusError {
		t.Errorf("payloads = %+v, want one error delivery", payloads)
	}
	if payloads[0].Nonce != "nonce-1" {
		t.Errorf("Nonce = %q", payloads[0].Nonce)
	}
}
