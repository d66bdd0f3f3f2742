//go:build deadlock_test

package repocache

import (
	"context"
	"sync"
	"testing"
	"time"
)

func Test_prepare_detect_race(t *testing.T) {
	ctx, cancel := context.WithCancel(context.TODO())
	defer cancel()

	fake := newFakeGit()
	fake.cloneDelay = time.Millisecond
	m := testManager(t, fake, Config{Retries: 0, IdleTTL: time.Hour})

	refs := []string{"", "master", "feature", "v1.0.0"}
	repos := []string{
		"https://github.com/org/repo-a",
		"https://github.com/org/repo-b",
		"github:org/repo-c",
	}

	// all following assertions will always be true
	// this test is about testing deadlocks and detecting race conditions
	wg := &sync.WaitGroup{}
	for i := 0; i < 100; i++ {
		repo := repos[i%len(repos)]
		ref := refs[i%len(refs)]

		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Prepare(ctx, repo, ref); err != nil {
				t.Errorf("unable to prepare error: %v", err)
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.ListEntries(); err != nil {
				t.Errorf("unable to list entries error: %v", err)
			}
		}()
	}
	wg.Wait()

	// backdate syncs so every subsequent prepare refreshes while listers read
	entries, err := m.ListEntries()
	if err != nil {
		t.Fatalf("unable to list entries error: %v", err)
	}
	for _, e := range entries {
		fake.markFetchedAt(e.Dir, time.Now().Add(-48*time.Hour))
	}

	for i := 0; i < 100; i++ {
		repo := repos[i%len(repos)]

		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Prepare(ctx, repo, "master"); err != nil {
				t.Errorf("unable to prepare error: %v", err)
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.ListEntries(); err != nil {
				t.Errorf("unable to list entries error: %v", err)
			}
		}()
	}
	wg.Wait()
}
