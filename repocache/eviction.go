package repocache

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/utilitywarehouse/git-cache/internal/utils"
)

// evictor bounds the disk usage of the cache root. it runs after each
// successful prepare, there is no background timer. eviction problems
// are logged and skipped, they never fail a prepare.
type evictor struct {
	reposRoot  string
	idleTTL    time.Duration
	sizeBudget int64
	log        *slog.Logger
}

type entryInfo struct {
	name       string
	path       string
	lastAccess time.Time
	size       int64
}

// sweep removes repositories not served within the idle ttl and then,
// if the cache is still over its size budget, the least recently used
// repositories until it fits. the dir at keepPath (the entry just
// served) is never removed.
func (e *evictor) sweep(keepPath string) {
	entries, err := e.scan()
	if err != nil {
		e.log.Error("unable to scan cache root for eviction", "err", err)
		return
	}

	var kept []entryInfo
	for _, ent := range entries {
		if ent.path != keepPath && time.Since(ent.lastAccess) > e.idleTTL {
			if e.remove(ent, "idle") {
				continue
			}
			// still on disk, keep counting it
		}
		kept = append(kept, ent)
	}

	var total int64
	for _, ent := range kept {
		total += ent.size
	}
	updateCacheSize(total)

	if total <= e.sizeBudget {
		return
	}

	// least recently used first
	sort.Slice(kept, func(i, j int) bool {
		return kept[i].lastAccess.Before(kept[j].lastAccess)
	})

	for _, ent := range kept {
		if total <= e.sizeBudget {
			break
		}
		if ent.path == keepPath {
			continue
		}
		// only deleted dirs free space
		if e.remove(ent, "capacity") {
			total -= ent.size
		}
	}

	updateCacheSize(total)
}

// scan reads the repos root and collects per entry access time and
// size. entries that vanish mid-scan are skipped.
func (e *evictor) scan() ([]entryInfo, error) {
	dirents, err := os.ReadDir(e.reposRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []entryInfo
	for _, d := range dirents {
		if !d.IsDir() || !isEntryDirName(d.Name()) {
			continue
		}
		path := filepath.Join(e.reposRoot, d.Name())
		fi, err := d.Info()
		if err != nil {
			continue
		}
		size, err := utils.DirSize(path)
		if err != nil {
			e.log.Error("unable to size repository dir, skipping", "dir", path, "err", err)
			continue
		}
		entries = append(entries, entryInfo{
			name:       d.Name(),
			path:       path,
			lastAccess: fi.ModTime(),
			size:       size,
		})
	}
	return entries, nil
}

// remove deletes an entry dir and reports whether it is actually gone.
func (e *evictor) remove(ent entryInfo, reason string) bool {
	if err := os.RemoveAll(ent.path); err != nil {
		e.log.Error("unable to evict repository dir", "dir", ent.path, "reason", reason, "err", err)
		return false
	}
	e.log.Info("evicted repository dir", "dir", ent.path, "reason", reason,
		"last_access", ent.lastAccess, "size", ent.size)
	recordEviction(reason)
	return true
}
