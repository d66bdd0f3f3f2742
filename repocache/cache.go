package repocache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/utilitywarehouse/git-cache/auth"
	"github.com/utilitywarehouse/git-cache/giturl"
	"github.com/utilitywarehouse/git-cache/internal/lock"
	"github.com/utilitywarehouse/git-cache/internal/utils"
	"github.com/utilitywarehouse/git-cache/transport"
)

// Handle is a caller's read-only view of a prepared working tree.
type Handle struct {
	// Dir is the absolute path of the working tree
	Dir string
	// Ref is the checked out ref (branch, tag or hash)
	Ref string
	// Key is the cache key of the repository, empty for local
	// repositories which are served in place
	Key string
}

// EntrySummary describes one cached repository for diagnostics.
type EntrySummary struct {
	Key            string
	Dir            string
	Ref            string
	LastFetchedAt  time.Time
	LastAccessedAt time.Time
	SizeBytes      int64
}

// Manager is the single entry point of the cache. it turns repository
// reference strings into validated, up to date local working trees,
// serialising work per repository and bounding disk usage.
type Manager struct {
	conf  Config
	git   gitTransporter
	locks *lock.Keyed
	val   *validator
	evict *evictor
	log   *slog.Logger
}

// New returns a cache manager rooted at conf.Root. remote operations
// go through a go-git transport wired with the configured credentials.
func New(conf Config, log *slog.Logger) (*Manager, error) {
	if log == nil {
		log = slog.Default()
	}
	client := transport.NewClient(auth.NewProvider(conf.Auth, log), log)
	return newManager(conf, client, log)
}

func newManager(conf Config, git gitTransporter, log *slog.Logger) (*Manager, error) {
	if err := conf.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("invalid cache config err:%w", err)
	}
	if log == nil {
		log = slog.Default()
	}

	if err := os.MkdirAll(conf.reposRoot(), 0755); err != nil {
		return nil, fmt.Errorf("unable to create cache root err:%w", err)
	}

	return &Manager{
		conf:  conf,
		git:   git,
		locks: lock.NewKeyed(),
		val:   &validator{git: git, staleAfter: conf.StaleAfter, log: log},
		evict: &evictor{
			reposRoot:  conf.reposRoot(),
			idleTTL:    conf.IdleTTL,
			sizeBudget: conf.SizeBudgetBytes,
			log:        log,
		},
		log: log,
	}, nil
}

// Prepare resolves the given repository reference, makes sure a fresh
// clone with the requested ref checked out exists in the cache and
// returns its working tree. an empty ref means the remote default
// branch. concurrent calls for the same repository serialise, calls for
// different repositories run in parallel.
func (m *Manager) Prepare(ctx context.Context, reference, ref string) (*Handle, error) {
	parsed, err := giturl.ParseReference(reference)
	if err != nil {
		return nil, err
	}

	if parsed.IsLocal() {
		return m.prepareLocal(parsed, ref)
	}

	repoLabel := parsed.Owner + "/" + parsed.Name
	start := time.Now()
	defer updatePrepareLatency(repoLabel, start)

	key := deriveKey(parsed)
	dir := entryPath(m.conf.reposRoot(), parsed, key)
	log := m.log.With("repo", repoLabel, "key", key)

	m.locks.Lock(key)
	handle, result, err := m.prepareLocked(ctx, log, parsed, ref, key, dir)
	m.locks.Unlock(key)

	recordPrepare(repoLabel, result)
	if err != nil {
		return nil, err
	}

	// opportunistic cleanup, never blocks or fails the request
	m.evict.sweep(dir)

	return handle, nil
}

// prepareLocked does the per-repository work under the key mutex.
func (m *Manager) prepareLocked(ctx context.Context, log *slog.Logger, parsed *giturl.Reference, ref, key, dir string) (*Handle, string, error) {
	orch := &orchestrator{
		git:     m.git,
		retries: m.conf.Retries,
		backoff: m.conf.RetryBackoff,
		log:     log,
	}
	urls := candidateURLs(parsed)

	state := m.val.validate(dir, ref)
	log.Debug("validated cache entry", "state", state.String(), "ref", ref)

	result := "hit"
	switch state {
	case stateValid:
		// serve as is

	case stateStale, stateRefMismatch:
		result = "refresh"
		err := orch.run(ctx, urls, func(ctx context.Context, url string) error {
			return m.git.Fetch(ctx, dir, url)
		})
		if err != nil {
			return nil, "error", err
		}
		if err := m.checkoutAfterSync(ctx, dir, ref); err != nil {
			return nil, "error", err
		}

	case stateMissing, stateInvalid:
		result = "clone"
		err := orch.run(ctx, urls, func(ctx context.Context, url string) error {
			// a failed clone removes its partial dir, each candidate
			// starts clean
			return m.git.ShallowClone(ctx, url, dir, ref)
		})
		if err != nil {
			return nil, "error", err
		}
	}

	// last access time lives on the dir itself
	if err := utils.Touch(dir); err != nil {
		log.Error("unable to update access time", "dir", dir, "err", err)
	}

	servedRef := ref
	if servedRef == "" {
		if name, hash, err := m.git.Head(dir); err == nil {
			servedRef = name
			if servedRef == "" {
				servedRef = hash
			}
		}
	}

	return &Handle{Dir: dir, Ref: servedRef, Key: key}, result, nil
}

// checkoutAfterSync moves the working tree to the requested ref after a
// fetch. with no requested ref the currently checked out branch is
// re-synced, a detached checkout is pinned and left alone.
func (m *Manager) checkoutAfterSync(ctx context.Context, dir, ref string) error {
	if ref == "" {
		name, _, err := m.git.Head(dir)
		if err != nil {
			return err
		}
		if name == "" {
			return nil
		}
		ref = name
	}
	return m.git.Checkout(ctx, dir, ref)
}

// prepareLocal serves a local repository in place. local repositories
// are never copied into the cache, touched, evicted or checked out, so
// a requested ref must already be the checked out one. the handle
// always reports the repository's actual HEAD.
func (m *Manager) prepareLocal(parsed *giturl.Reference, ref string) (*Handle, error) {
	dir := parsed.LocalPath
	if !utils.DirExists(dir) {
		return nil, fmt.Errorf("local repository '%s' does not exist", dir)
	}
	if !m.git.IsRepository(dir) {
		return nil, fmt.Errorf("local path '%s' is not a git repository", dir)
	}

	if ref != "" {
		match, err := m.git.HeadMatches(dir, ref)
		if err != nil {
			return nil, fmt.Errorf("unable to inspect local repository '%s' err:%w", dir, err)
		}
		if !match {
			return nil, fmt.Errorf("local repository '%s' does not have ref '%s' checked out", dir, ref)
		}
	}

	servedRef := ""
	if name, hash, err := m.git.Head(dir); err == nil {
		servedRef = name
		if servedRef == "" {
			servedRef = hash
		}
	}
	return &Handle{Dir: dir, Ref: servedRef}, nil
}

// ListRefs prepares the referenced repository and returns its branches
// and tags.
func (m *Manager) ListRefs(ctx context.Context, reference string) ([]transport.Ref, error) {
	handle, err := m.Prepare(ctx, reference, "")
	if err != nil {
		return nil, err
	}
	return m.git.ListRefs(handle.Dir)
}

// ListEntries returns a read-only summary of all cached repositories.
func (m *Manager) ListEntries() ([]EntrySummary, error) {
	dirents, err := os.ReadDir(m.conf.reposRoot())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("unable to read cache root err:%w", err)
	}

	var entries []EntrySummary
	for _, d := range dirents {
		if !d.IsDir() || !isEntryDirName(d.Name()) {
			continue
		}
		name := d.Name()
		path := filepath.Join(m.conf.reposRoot(), name)

		sum := EntrySummary{
			Key: name[len(name)-keyLen:],
			Dir: path,
		}
		if fi, err := d.Info(); err == nil {
			sum.LastAccessedAt = fi.ModTime()
		}
		if refName, hash, err := m.git.Head(path); err == nil {
			sum.Ref = refName
			if sum.Ref == "" {
				sum.Ref = hash
			}
		}
		if t, err := m.git.LastFetchedAt(path); err == nil {
			sum.LastFetchedAt = t
		}
		if size, err := utils.DirSize(path); err == nil {
			sum.SizeBytes = size
		}
		entries = append(entries, sum)
	}
	return entries, nil
}

// CleanupOrphans removes dirs under the repos root that were not
// created by the cache, typically leftovers of crashed clones by other
// tools. best effort, errors are logged and skipped.
func (m *Manager) CleanupOrphans() {
	dirents, err := os.ReadDir(m.conf.reposRoot())
	if err != nil {
		if !os.IsNotExist(err) {
			m.log.Error("unable to read cache root for cleanup", "err", err)
		}
		return
	}

	for _, d := range dirents {
		if d.IsDir() && isEntryDirName(d.Name()) {
			continue
		}
		path := filepath.Join(m.conf.reposRoot(), d.Name())
		m.log.Info("removing orphaned path from cache root", "path", path)
		if err := os.RemoveAll(path); err != nil {
			m.log.Error("unable to remove orphaned path", "path", path, "err", err)
		}
	}
}
