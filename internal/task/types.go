// Package task defines the boundary request types and the in-flight task
// registry.
package task

import (
	"fmt"
	"net/url"

	"github.com/lucasnoah/siteforge/internal/attachment"
)

// Round indicates which task shape a request drives.
const (
	RoundBuild  = 1
	RoundRevise = 2
)

// Request is the inbound task payload. It is immutable once decoded.
type Request struct {
	Email       string                  `json:"email"`
	Secret      string                  `json:"secret"`
	Task        string                  `json:"task"`
	Round       int                     `json:"round"`
	Nonce       string                  `json:"nonce"`
	Brief       string                  `json:"brief"`
	Checks      []string                `json:"checks"`
	CallbackURL string                  `json:"evaluation_url"`
	Attachments []attachment.Attachment `json:"attachments"`
}

// Validate checks request shape before any collaborator is invoked.
// The secret is checked separately so authentication failures are
// distinguishable from malformed requests.
func (r *Request) Validate() error {
	if r.Task == "" {
		return fmt.Errorf("task identifier is required")
	}
	if r.Round != RoundBuild && r.Round != RoundRevise {
		return fmt.Errorf("round must be %d or %d, got %d", RoundBuild, RoundRevise, r.Round)
	}
	if r.Nonce == "" {
		return fmt.Errorf("nonce is required")
	}
	if r.Brief == "" {
		return fmt.Errorf("brief is required")
	}
	if r.CallbackURL != "" {
		u, err := url.Parse(r.CallbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("evaluation_url must be an http(s) URL")
		}
	}
	return nil
}
