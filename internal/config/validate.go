package config

import (
	"fmt"
	"time"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a Config for structural and semantic errors. It returns
// a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, ValidationError{Field: "server.port", Message: fmt.Sprintf("invalid port %d", cfg.Server.Port)})
	}

	if cfg.GitHub.Owner == "" {
		errs = append(errs, ValidationError{Field: "github.owner", Message: "is required (or set GITHUB_OWNER)"})
	}

	if len(cfg.Generation.Backends) == 0 {
		errs = append(errs, ValidationError{Field: "generation.backends", Message: "at least one backend is required"})
	}
	for i, b := range cfg.Generation.Backends {
		if b.Command == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("generation.backends[%d].command", i),
				Message: "is required",
			})
		}
		checkDuration(fmt.Sprintf("generation.backends[%d].timeout", i), b.Timeout, &errs)
	}

	if cfg.Attachments.MaxBytes < 0 {
		errs = append(errs, ValidationError{Field: "attachments.max_bytes", Message: "must not be negative"})
	}

	if cfg.Retry.MaxAttempts < 0 {
		errs = append(errs, ValidationError{Field: "retry.max_attempts", Message: "must not be negative"})
	}
	// A multiplier of exactly 1 would make every backoff delay identical;
	// delays must grow between attempts.
	if cfg.Retry.Multiplier != 0 && cfg.Retry.Multiplier <= 1 {
		errs = append(errs, ValidationError{Field: "retry.multiplier", Message: "must be > 1"})
	}
	if cfg.Retry.Jitter < 0 || cfg.Retry.Jitter >= 1 {
		errs = append(errs, ValidationError{Field: "retry.jitter", Message: "must be in [0, 1)"})
	}
	checkDuration("retry.base_delay", cfg.Retry.BaseDelay, &errs)
	checkDuration("retry.max_delay", cfg.Retry.MaxDelay, &errs)
	checkDuration("notify.base_delay", cfg.Notify.BaseDelay, &errs)
	checkDuration("notify.max_delay", cfg.Notify.MaxDelay, &errs)
	checkDuration("notify.timeout", cfg.Notify.Timeout, &errs)
	checkDuration("github.timeout", cfg.GitHub.Timeout, &errs)

	return errs
}

// ValidateCredentials checks that the credentials required to serve
// requests are present. Kept separate from Validate so config files can be
// linted without secrets in the environment.
func ValidateCredentials(cfg *Config) []ValidationError {
	var errs []ValidationError
	if cfg.Secret == "" {
		errs = append(errs, ValidationError{Field: "SITEFORGE_SECRET", Message: "shared secret is not set; all requests will be rejected"})
	}
	if cfg.GitHubToken == "" {
		errs = append(errs, ValidationError{Field: "GITHUB_TOKEN", Message: "token for repository operations is not set"})
	}
	return errs
}

func checkDuration(field, value string, errs *[]ValidationError) {
	if value == "" {
		return
	}
	if _, err := time.ParseDuration(value); err != nil {
		*errs = append(*errs, ValidationError{Field: field, Message: fmt.Sprintf("invalid duration %q", value)})
	}
}
