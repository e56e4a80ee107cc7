package tokenkit

import "sync"

// userLocks serializes refresh rotation per user so that two concurrent
// refresh calls presented with the same old token cannot both pass the reuse
// check before either has rotated. Entries are reference-counted and removed
// once the last holder releases.
type userLocks struct {
	mutex   sync.Mutex
	entries map[string]*userLockEntry
}

type userLockEntry struct {
	lock    sync.Mutex
	holders int
}

func newUserLocks() *userLocks {
	return &userLocks{entries: make(map[string]*userLockEntry)}
}

func (locks *userLocks) acquire(userID string) {
	locks.mutex.Lock()
	entry, ok := locks.entries[userID]
	if !ok {
		entry = &userLockEntry{}
		locks.entries[userID] = entry
	}
	entry.holders++
	locks.mutex.Unlock()

	entry.lock.Lock()
}

func (locks *userLocks) release(userID string) {
	locks.mutex.Lock()
	entry, ok := locks.entries[userID]
	if ok {
		entry.holders--
		if entry.holders == 0 {
			delete(locks.entries, userID)
		}
	}
	locks.mutex.Unlock()

	if ok {
		entry.lock.Unlock()
	}
}
