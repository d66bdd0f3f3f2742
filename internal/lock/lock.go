//go:build !deadlock_test

// Package lock provides mutex types which can be swapped for
// deadlock-detecting equivalents in race/deadlock test builds via the
// 'deadlock_test' build tag.
package lock

import "sync"

type Mutex = sync.Mutex

type RWMutex = sync.RWMutex
