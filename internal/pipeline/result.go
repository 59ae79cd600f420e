package pipeline

// Outcome statuses returned to callers and callbacks.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Failure kinds. Kinds classify who is at fault and whether the request
// could ever succeed; the web layer maps them to status codes.
const (
	KindUnauthorized     = "unauthorized"
	KindInvalidRequest   = "invalid_request"
	KindTaskBusy         = "task_busy"
	KindGenerationFailed = "generation_failed"
	KindRepositoryError  = "repository_error"
	KindNotFound         = "not_found"
	KindPublishFailed    = "publish_failed"
)

// Stage names used in failure results and the run-event log.
const (
	StageAuthentication = "authentication"
	StageValidation     = "validation"
	StageAdmission      = "admission"
	StageDecode         = "decode"
	StageGenerate       = "generate"
	StageProvision      = "provision"
	StageLocate         = "locate"
	StageSnapshot       = "snapshot"
	StageUpdate         = "update"
	StagePublish        = "publish"
)

// Result is the terminal outcome of one pipeline run. It is returned
// synchronously and mirrored in the callback payload.
type Result struct {
	RunID  string `json:"run_id"`
	Task   string `json:"task"`
	Round  int    `json:"round"`
	Status string `json:"status"`

	Message   string `json:"message,omitempty"`
	RepoURL   string `json:"repo_url,omitempty"`
	CommitSHA string `json:"commit_sha,omitempty"`
	PagesURL  string `json:"pages_url,omitempty"`

	// Degraded marks a success whose site publish failed. The repository
	// fields are still populated.
	Degraded bool `json:"degraded,omitempty"`

	// FailStage and FailKind are set only on error results.
	FailStage string `json:"fail_stage,omitempty"`
	FailKind  string `json:"fail_kind,omitempty"`
}

// Failed reports whether the run ended in error.
func (r *Result) Failed() bool { return r.Status == StatusError }
