package history

import (
	"sort"
	"sync"

	"github.com/pders01/confhist/internal/models"
)

// lockTable hands out one mutex per entity key. Entries are dropped once
// nobody holds or waits for them.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*entityLock
}

type entityLock struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*entityLock)}
}

// lock blocks until the caller holds every given entity and returns the
// release function. Keys are acquired in sorted order.
func (t *lockTable) lock(entities ...models.Entity) func() {
	keys := make([]string, 0, len(entities))
	seen := make(map[string]bool, len(entities))
	for _, e := range entities {
		k := e.Key()
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	held := make([]*entityLock, 0, len(keys))
	for _, k := range keys {
		t.mu.Lock()
		l, ok := t.locks[k]
		if !ok {
			l = &entityLock{}
			t.locks[k] = l
		}
		l.refs++
		t.mu.Unlock()

		l.mu.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			t.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(t.locks, keys[i])
			}
			t.mu.Unlock()
		}
	}
}

func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
