package repocache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	fake := newFakeGit()
	v := &validator{git: fake, staleAfter: time.Hour, log: testLog}
	ctx := context.Background()

	dir := filepath.Join(t.TempDir(), "entry")

	if got := v.validate(dir, ""); got != stateMissing {
		t.Errorf("validate(missing dir) = %v, want missing", got)
	}

	// dir without a repository inside is invalid and gets removed
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("unable to create dir: %v", err)
	}
	if got := v.validate(dir, ""); got != stateInvalid {
		t.Errorf("validate(non-repo dir) = %v, want invalid", got)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("expected invalid dir to be removed, stat err: %v", err)
	}

	if err := fake.ShallowClone(ctx, "url", dir, "master"); err != nil {
		t.Fatalf("unable to create fixture clone: %v", err)
	}

	if got := v.validate(dir, "master"); got != stateValid {
		t.Errorf("validate(fresh clone, matching ref) = %v, want valid", got)
	}
	if got := v.validate(dir, ""); got != stateValid {
		t.Errorf("validate(fresh clone, any ref) = %v, want valid", got)
	}
	if got := v.validate(dir, "feature"); got != stateRefMismatch {
		t.Errorf("validate(fresh clone, other ref) = %v, want ref-mismatch", got)
	}

	fake.markFetchedAt(dir, time.Now().Add(-2*time.Hour))
	if got := v.validate(dir, "master"); got != stateStale {
		t.Errorf("validate(old clone) = %v, want stale", got)
	}
}
