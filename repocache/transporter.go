package repocache

import (
	"context"
	"time"

	"github.com/utilitywarehouse/git-cache/transport"
)

// gitTransporter is the remote/structural git surface the cache needs.
// satisfied by *transport.Client, swapped for a fake in tests.
type gitTransporter interface {
	ShallowClone(ctx context.Context, url, dest, ref string) error
	Fetch(ctx context.Context, dir, url string) error
	Checkout(ctx context.Context, dir, ref string) error
	HeadMatches(dir, ref string) (bool, error)
	IsRepository(dir string) bool
	Head(dir string) (name, hash string, err error)
	ListRefs(dir string) ([]transport.Ref, error)
	LastFetchedAt(dir string) (time.Time, error)
}

var _ gitTransporter = (*transport.Client)(nil)
