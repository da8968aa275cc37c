package backend

import (
	"sync"

	"github.com/mitselek/esmuseum-map-app-sub006/model"
)

// resourceLocks serializes the fetch-then-write of grants on one resource.
// Passes for different source entities may target the same resource at the
// same time; without this both could miss the other's write and post the
// same grantee twice.
type resourceLocks struct {
	mu   sync.Mutex
	held map[model.EntityID]*resourceLock
}

type resourceLock struct {
	mu   sync.Mutex
	refs int
}

func newResourceLocks() *resourceLocks {
	return &resourceLocks{held: make(map[model.EntityID]*resourceLock)}
}

// lock blocks until id is free and returns the matching unlock.
func (l *resourceLocks) lock(id model.EntityID) func() {
	l.mu.Lock()
	rl, ok := l.held[id]
	if !ok {
		rl = &resourceLock{}
		l.held[id] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()

		l.mu.Lock()
		defer l.mu.Unlock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.held, id)
		}
	}
}
