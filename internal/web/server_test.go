package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lucasnoah/siteforge/internal/artifact"
	"github.com/lucasnoah/siteforge/internal/attachment"
	"github.com/lucasnoah/siteforge/internal/config"
	"github.com/lucasnoah/siteforge/internal/generate"
	"github.com/lucasnoah/siteforge/internal/pages"
	"github.com/lucasnoah/siteforge/internal/pipeline"
	"github.com/lucasnoah/siteforge/internal/repo"
)

type stubGenerator struct{}

func (stubGenerator) Name() string { return "stub" }

func (stubGenerator) Generate(ctx context.Context, req generate.Request) (artifact.Set, error) {
	var s artifact.Set
	s = s.Add("index.html", []byte("<html></html>"))
	s = s.Add("LICENSE", []byte("MIT"))
	return s, nil
}

type stubProvisioner struct{}

func (stubProvisioner) handle() *repo.Handle {
	return &repo.Handle{
		Owner:   "builder",
		Name:    "llm-app-demo",
		Branch:  "main",
		HTMLURL: "https://github.com/builder/llm-app-demo",
		Commit:  "abc123",
	}
}

func (s stubProvisioner) CreateAndPush(ctx context.Context, taskID string, set artifact.Set) (*repo.Handle, error) {
	return s.handle(), nil
}

func (s stubProvisioner) Locate(ctx context.Context, taskID string) (*repo.Handle, error) {
	return nil, &repo.Error{Kind: repo.NotFound, Op: "locate", Err: fmt.Errorf("no repository")}
}

func (s stubProvisioner) Snapshot(ctx context.Context, h *repo.Handle) (artifact.Set, error) {
	return nil, nil
}

func (s stubProvisioner) LocateAndPush(ctx context.Context, taskID string, set artifact.Set) (*repo.Handle, error) {
	return s.handle(), nil
}

type stubPublisher struct{}

func (stubPublisher) Publish(ctx context.Context, h *repo.Handle) (string, error) {
	return pages.SiteURL(h), nil
}

func newTestServer() (*Server, *httptest.Server) {
	cfg := &config.Config{Secret: "s3cr3t", GitHubToken: "tok"}
	controller := pipeline.NewController(pipeline.Options{
		Secret:    cfg.Secret,
		Codec:     attachment.NewCodec(1024),
		Generator: stubGenerator{},
		Repos:     stubProvisioner{},
		Publisher: stubPublisher{},
	})
	s := NewServer(controller, cfg, "test")
	return s, httptest.NewServer(s.Handler())
}

func submitBody(round int, secret string) string {
	return `{
		"email": "dev@example.com",
		"secret": "` + secret + `",
		"task": "demo-task",
		"round": ` + map[int]string{1: "1", 2: "2"}[round] + `,
		"nonce": "n1",
		"brief": "Build a counter app."
	}`
}

func TestSubmitBuildSuccess(t *testing.T) {
	_, srv := newTestServer()
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/submit", "application/json", strings.NewReader(submitBody(1, "s3cr3t")))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var res pipeline.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Status != pipeline.StatusSuccess {
		t.Errorf("result status = %q (%s)", res.Status, res.Message)
	}
	if res.PagesURL != "https://builder.github.io/llm-app-demo/" {
		t.Errorf("PagesURL = %q", res.PagesURL)
	}
}

func TestSubmitAtRootAlias(t *testing.T) {
	_, srv := newTestServer()
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/", "application/json", strings.NewReader(submitBody(1, "s3cr3t")))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestSubmitStatusCodes(t *testing.T) {
	_, srv := newTestServer()
	defer srv.Close()

	cases := []struct {
		name string
		body string
		want int
	}{
		{"wrong secret", submitBody(1, "nope"), http.StatusUnauthorized},
		{"malformed json", "{not json", http.StatusBadRequest},
		{"missing brief", `{"secret":"s3cr3t","task":"t","round":1,"nonce":"n"}`, http.StatusBadRequest},
		{"revise without repo", submitBody(2, "s3cr3t"), http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/submit", "application/json", strings.NewReader(tc.body))
			if err != nil {
				t.Fatalf("post: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestSubmitMethodNotAllowed(t *testing.T) {
	_, srv := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/submit")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestHealthReportsCredentialBooleans(t *testing.T) {
	_, srv := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		Status      string          `json:"status"`
		Credentials map[string]bool `json:"credentials"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q", body.Status)
	}
	if !body.Credentials["secret"] || !body.Credentials["github_token"] {
		t.Errorf("credentials = %v", body.Credentials)
	}
	if body.Credentials["events_db"] {
		t.Error("events_db should be unconfigured")
	}
}

func TestRootInfo(t *testing.T) {
	_, srv := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Service string `json:"service"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Service != "siteforge" {
		t.Errorf("service = %q", body.Service)
	}
}

func TestUnknownPathIs404(t *testing.T) {
	_, srv := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
