package repocache

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/utilitywarehouse/git-cache/transport"
)

var testLog = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
	Level: slog.Level(-8),
}))

// fakeGit implements gitTransporter without any network access. clones
// are minimal dirs with a .git marker, checked out refs and fetch times
// are tracked in memory.
type fakeGit struct {
	mu sync.Mutex

	cloneCalls    int
	fetchCalls    int
	checkoutCalls int
	urlsTried     []string

	// errs maps a remote url to the error its operations return
	errs map[string]error
	// cloneDelay simulates a slow remote
	cloneDelay time.Duration

	head    map[string]string
	fetched map[string]time.Time
	refs    []transport.Ref
}

func newFakeGit() *fakeGit {
	return &fakeGit{
		head:    map[string]string{},
		fetched: map[string]time.Time{},
		refs: []transport.Ref{
			{Name: "master", Hash: "1111111111111111111111111111111111111111", Type: "branch"},
			{Name: "v1.0.0", Hash: "1111111111111111111111111111111111111111", Type: "tag"},
		},
	}
}

func (f *fakeGit) ShallowClone(ctx context.Context, url, dest, ref string) error {
	f.mu.Lock()
	f.cloneCalls++
	f.urlsTried = append(f.urlsTried, url)
	err := f.errs[url]
	delay := f.cloneDelay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Join(dest, ".git"), 0755); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if ref == "" {
		ref = "master"
	}
	f.head[dest] = ref
	f.fetched[dest] = time.Now()
	return nil
}

func (f *fakeGit) Fetch(ctx context.Context, dir, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	f.urlsTried = append(f.urlsTried, url)
	if err := f.errs[url]; err != nil {
		return err
	}
	f.fetched[dir] = time.Now()
	return nil
}

func (f *fakeGit) Checkout(ctx context.Context, dir, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkoutCalls++
	f.head[dir] = ref
	return nil
}

func (f *fakeGit) HeadMatches(dir, ref string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ref == "" {
		return true, nil
	}
	return f.head[dir] == ref, nil
}

func (f *fakeGit) IsRepository(dir string) bool {
	fi, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil && fi.IsDir()
}

func (f *fakeGit) Head(dir string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head[dir], "1111111111111111111111111111111111111111", nil
}

func (f *fakeGit) ListRefs(dir string) ([]transport.Ref, error) {
	return f.refs, nil
}

func (f *fakeGit) LastFetchedAt(dir string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetched[dir], nil
}

// markFetchedAt backdates the last sync of a clone
func (f *fakeGit) markFetchedAt(dir string, t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched[dir] = t
}

func (f *fakeGit) counts() (clones, fetches, checkouts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cloneCalls, f.fetchCalls, f.checkoutCalls
}

func testManager(t *testing.T, fake *fakeGit, conf Config) *Manager {
	t.Helper()
	if conf.Root == "" {
		conf.Root = t.TempDir()
	}
	if conf.RetryBackoff == 0 {
		conf.RetryBackoff = time.Millisecond
	}
	m, err := newManager(conf, fake, testLog)
	if err != nil {
		t.Fatalf("unable to create manager: %v", err)
	}
	return m
}
