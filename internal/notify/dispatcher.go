// Package notify delivers pipeline results to caller-supplied callback
// URLs with bounded retry and backoff. Delivery is fire-and-forget with
// respect to the synchronous caller: its HTTP response never waits on a
// callback.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/lucasnoah/siteforge/internal/retry"
)

// Payload is the callback body. It mirrors the synchronous result and
// carries the request's nonce and task id so the receiver can deduplicate
// retried deliveries.
type Payload struct {
	Email     string `json:"email"`
	Task      string `json:"task"`
	Round     int    `json:"round"`
	Nonce     string `json:"nonce"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	RepoURL   string `json:"repo_url,omitempty"`
	CommitSHA string `json:"commit_sha,omitempty"`
	PagesURL  string `json:"pages_url,omitempty"`
}

// Record tracks one run's delivery effort. It exists from the first attempt
// until the terminal status is reached.
type Record struct {
	CallbackURL string
	Nonce       string
	Attempts    int
	Status      string // "delivered" or "exhausted"
	LastError   string
}

// Dispatcher posts payloads to callback URLs under the shared retry policy.
type Dispatcher struct {
	client *http.Client
	policy retry.Policy

	wg sync.WaitGroup
	// onDone receives the terminal record. Swappable for tests.
	onDone func(Record)
}

// NewDispatcher creates a Dispatcher. A nil client gets a 10s-timeout default.
func NewDispatcher(client *http.Client, policy retry.Policy) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Dispatcher{client: client, policy: policy, onDone: logRecord}
}

// SetOnDone installs a terminal-record observer. Test hook.
func (d *Dispatcher) SetOnDone(fn func(Record)) { d.onDone = fn }

// Dispatch delivers asynchronously. An empty callback URL is a no-op.
func (d *Dispatcher) Dispatch(url string, p Payload) {
	if url == "" {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Deliver(context.Background(), url, p)
	}()
}

// Wait blocks until every dispatched delivery has reached a terminal state.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Deliver posts the payload, retrying per policy, and returns the terminal
// record. It never panics and never propagates an error to the caller; an
// exhausted record is logged and kept out of the synchronous path.
func (d *Dispatcher) Deliver(ctx context.Context, url string, p Payload) Record {
	rec := Record{CallbackURL: url, Nonce: p.Nonce}

	body, err := json.Marshal(p)
	if err != nil {
		rec.Status = "exhausted"
		rec.LastError = fmt.Sprintf("marshal payload: %v", err)
		d.finish(rec)
		return rec
	}

	err = d.policy.Do(ctx, func() error {
		rec.Attempts++
		return d.post(ctx, url, body)
	})
	if err != nil {
		rec.Status = "exhausted"
		rec.LastError = err.Error()
	} else {
		rec.Status = "delivered"
	}
	d.finish(rec)
	return rec
}

func (d *Dispatcher) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post callback: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("callback returned %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) finish(rec Record) {
	if d.onDone != nil {
		d.onDone(rec)
	}
}

func logRecord(rec Record) {
	if rec.Status == "delivered" {
		log.Printf("notify: delivered to %s after %d attempt(s)", rec.CallbackURL, rec.Attempts)
		return
	}
	log.Printf("notify: delivery to %s failed after %d attempt(s): %s", rec.CallbackURL, rec.Attempts, rec.LastError)
}
