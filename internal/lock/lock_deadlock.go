//go:build deadlock_test

package lock

import "github.com/sasha-s/go-deadlock"

type Mutex = deadlock.Mutex

type RWMutex = deadlock.RWMutex
