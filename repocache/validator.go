package repocache

import (
	"log/slog"
	"os"
	"time"

	"github.com/utilitywarehouse/git-cache/internal/utils"
)

// entryState is the serving decision for a cached repository dir.
type entryState int

const (
	// stateMissing no dir on disk, full clone required
	stateMissing entryState = iota
	// stateInvalid dir existed but was not a usable clone, it has been
	// removed and a full clone is required
	stateInvalid
	// stateRefMismatch clone is usable but has a different ref checked
	// out than requested
	stateRefMismatch
	// stateStale clone matches the request but its last remote sync is
	// older than the freshness window
	stateStale
	// stateValid clone can be served as is
	stateValid
)

func (s entryState) String() string {
	switch s {
	case stateMissing:
		return "missing"
	case stateInvalid:
		return "invalid"
	case stateRefMismatch:
		return "ref-mismatch"
	case stateStale:
		return "stale"
	default:
		return "valid"
	}
}

type validator struct {
	git        gitTransporter
	staleAfter time.Duration
	log        *slog.Logger
}

// validate decides how the cached dir can serve a request for ref.
// an empty ref matches any checkout. a structurally broken dir is
// deleted before returning so callers treat invalid same as missing.
func (v *validator) validate(dir, ref string) entryState {
	if !utils.DirExists(dir) {
		return stateMissing
	}

	if !v.git.IsRepository(dir) {
		v.log.Error("removing unusable repository dir", "dir", dir)
		if err := os.RemoveAll(dir); err != nil {
			v.log.Error("unable to remove unusable repository dir", "dir", dir, "err", err)
		}
		return stateInvalid
	}

	match, err := v.git.HeadMatches(dir, ref)
	if err != nil {
		v.log.Error("removing repository dir with unreadable HEAD", "dir", dir, "err", err)
		if err := os.RemoveAll(dir); err != nil {
			v.log.Error("unable to remove unusable repository dir", "dir", dir, "err", err)
		}
		return stateInvalid
	}
	if !match {
		return stateRefMismatch
	}

	fetchedAt, err := v.git.LastFetchedAt(dir)
	if err != nil || time.Since(fetchedAt) > v.staleAfter {
		return stateStale
	}

	return stateValid
}
