package config

import (
	"time"

	"github.com/lucasnoah/siteforge/internal/retry"
)

// Config is the top-level configuration parsed from siteforge YAML.
// Credentials are never read from the file; they come from the environment
// (SITEFORGE_SECRET, GITHUB_TOKEN, DATABASE_URL), optionally via .env.
type Config struct {
	Server      Server      `yaml:"server"`
	GitHub      GitHub      `yaml:"github"`
	Generation  Generation  `yaml:"generation"`
	Attachments Attachments `yaml:"attachments"`
	Retry       Retry       `yaml:"retry"`
	Notify      Notify      `yaml:"notify"`
	Publish     Publish     `yaml:"publish"`

	// Secret is the shared authentication token. Env only.
	Secret string `yaml:"-"`
	// GitHubToken authenticates repository operations. Env only.
	GitHubToken string `yaml:"-"`
	// EventsDSN is the optional Postgres DSN for the run-event log. Env only.
	EventsDSN string `yaml:"-"`
}

// Server holds the listen address.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// GitHub configures the repository host collaborator.
type GitHub struct {
	Owner      string `yaml:"owner"`
	RepoPrefix string `yaml:"repo_prefix"`
	StageDir   string `yaml:"stage_dir"`
	Timeout    string `yaml:"timeout"`
}

// Backend configures one generation CLI backend. Backends are tried in
// listed order; the first is primary, the rest are fallbacks.
type Backend struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Timeout string   `yaml:"timeout"`
}

// Generation configures the code-generation collaborator.
type Generation struct {
	Backends []Backend `yaml:"backends"`
}

// Attachments bounds inbound attachment decoding.
type Attachments struct {
	MaxBytes int `yaml:"max_bytes"`
}

// Retry parameterizes the shared backoff policy for provisioning.
type Retry struct {
	MaxAttempts int     `yaml:"max_attempts"`
	BaseDelay   string  `yaml:"base_delay"`
	Multiplier  float64 `yaml:"multiplier"`
	MaxDelay    string  `yaml:"max_delay"`
	Jitter      float64 `yaml:"jitter"`
}

// Notify parameterizes callback delivery.
type Notify struct {
	MaxAttempts int    `yaml:"max_attempts"`
	BaseDelay   string `yaml:"base_delay"`
	MaxDelay    string `yaml:"max_delay"`
	Timeout     string `yaml:"timeout"`
}

// Publish holds the publish failure policy. With FailClosed false (the
// default) a publish error degrades the run to success-with-warning; with
// it true the run fails.
type Publish struct {
	FailClosed bool `yaml:"fail_closed"`
}

// parseDuration parses d, falling back to def on empty or invalid input.
func parseDuration(d string, def time.Duration) time.Duration {
	if d == "" {
		return def
	}
	v, err := time.ParseDuration(d)
	if err != nil {
		return def
	}
	return v
}

// GitHubTimeout returns the per-call timeout for repository operations.
func (c *Config) GitHubTimeout() time.Duration {
	return parseDuration(c.GitHub.Timeout, 2*time.Minute)
}

// BackendTimeout returns the generation timeout for a backend.
func (b Backend) BackendTimeout() time.Duration {
	return parseDuration(b.Timeout, 5*time.Minute)
}

// RetryPolicy builds the provisioning retry policy.
func (c *Config) RetryPolicy() retry.Policy {
	p := retry.Default()
	if c.Retry.MaxAttempts > 0 {
		p.MaxAttempts = c.Retry.MaxAttempts
	}
	p.BaseDelay = parseDuration(c.Retry.BaseDelay, p.BaseDelay)
	if c.Retry.Multiplier > 1 {
		p.Multiplier = c.Retry.Multiplier
	}
	p.MaxDelay = parseDuration(c.Retry.MaxDelay, p.MaxDelay)
	if c.Retry.Jitter > 0 {
		p.Jitter = c.Retry.Jitter
	}
	return p
}

// NotifyPolicy builds the callback delivery retry policy.
func (c *Config) NotifyPolicy() retry.Policy {
	p := retry.Default()
	if c.Notify.MaxAttempts > 0 {
		p.MaxAttempts = c.Notify.MaxAttempts
	}
	p.BaseDelay = parseDuration(c.Notify.BaseDelay, p.BaseDelay)
	p.MaxDelay = parseDuration(c.Notify.MaxDelay, p.MaxDelay)
	return p
}

// NotifyTimeout returns the per-request timeout for callback posts.
func (c *Config) NotifyTimeout() time.Duration {
	return parseDuration(c.Notify.Timeout, 10*time.Second)
}

// CredentialStatus reports which credentials are configured. Booleans only;
// values are never exposed.
func (c *Config) CredentialStatus() map[string]bool {
	return map[string]bool{
		"secret":       c.Secret != "",
		"github_token": c.GitHubToken != "",
		"events_db":    c.EventsDSN != "",
	}
}
