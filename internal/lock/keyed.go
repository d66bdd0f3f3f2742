package lock

// Keyed is a table of named mutexes. it hands out one mutex per key so
// callers can serialise work on a given key while work on other keys
// proceeds concurrently. mutexes are created lazily and never removed,
// the key space is expected to be small (one key per cached repository).
type Keyed struct {
	mu    Mutex
	locks map[string]*Mutex
}

// NewKeyed returns an empty keyed mutex table.
func NewKeyed() *Keyed {
	return &Keyed{locks: make(map[string]*Mutex)}
}

// Lock acquires the mutex for the given key, creating it on first use.
func (k *Keyed) Lock(key string) {
	k.get(key).Lock()
}

// Unlock releases the mutex for the given key. it panics if the key
// was never locked.
func (k *Keyed) Unlock(key string) {
	k.mu.Lock()
	m, ok := k.locks[key]
	k.mu.Unlock()
	if !ok {
		panic("lock: unlock of unknown key " + key)
	}
	m.Unlock()
}

func (k *Keyed) get(key string) *Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()

	m, ok := k.locks[key]
	if !ok {
		m = &Mutex{}
		k.locks[key] = m
	}
	return m
}
