package repo

import (
	"strings"
	"testing"
)

func TestRepoNameDeterministic(t *testing.T) {
	a := RepoName("llm-app", "Captcha Solver XYZ-123")
	b := RepoName("llm-app", "Captcha Solver XYZ-123")
	if a != b {
		t.Errorf("RepoName not deterministic: %q vs %q", a, b)
	}
	if a != "llm-app-captcha-solver-xyz-123" {
		t.Errorf("RepoName = %q", a)
	}
}

func TestRepoNameNoPrefix(t *testing.T) {
	if got := RepoName("", "task-One"); got != "task-one" {
		t.Errorf("RepoName = %q, want task-one", got)
	}
}

func TestRepoNameLengthCap(t *testing.T) {
	got := RepoName("llm-app", strings.Repeat("verylongtask-", 10))
	if len(got) > maxNameLen {
		t.Errorf("RepoName len = %d, want <= %d", len(got), maxNameLen)
	}
	if strings.HasSuffix(got, "-") {
		t.Errorf("RepoName %q has trailing hyphen", got)
	}
}

func TestMangleName(t *testing.T) {
	base := "llm-app-tic-tac-toe"
	a := MangleName(base)
	b := MangleName(base)
	if !strings.HasPrefix(a, base+"-") {
		t.Errorf("MangleName(%q) = %q should keep the base as prefix", base, a)
	}
	if a == b {
		t.Errorf("two mangles produced the same name %q", a)
	}
	if len(a) != len(base)+1+8 {
		t.Errorf("suffix length unexpected in %q", a)
	}
}
