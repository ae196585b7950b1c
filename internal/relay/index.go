package relay

import (
	"sync"

	"github.com/samber/lo"
)

/*
index stores two maps of the same relation, key -> connections and
connection -> keys, and mutates them together under one lock.

Registry and Tracker are both an index: one keyed by UserID, one by RoomID.
Each has its own lock so that unrelated lookups never serialize on a
process-wide mutex.
*/
type index[K comparable] struct {
	mu     sync.RWMutex
	byKey  map[K]map[Conn]struct{}
	byConn map[Conn]map[K]struct{}
}

func newIndex[K comparable]() *index[K] {
	return &index[K]{
		byKey:  make(map[K]map[Conn]struct{}),
		byConn: make(map[Conn]map[K]struct{}),
	}
}

// add reports whether the pair was not present before.
func (x *index[K]) add(key K, c Conn) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.addLocked(key, c)
}

func (x *index[K]) addLocked(key K, c Conn) bool {
	conns, ok := x.byKey[key]
	if !ok {
		conns = make(map[Conn]struct{})
		x.byKey[key] = conns
	}
	if _, exists := conns[c]; exists {
		return false
	}
	conns[c] = struct{}{}

	keys, ok := x.byConn[c]
	if !ok {
		keys = make(map[K]struct{})
		x.byConn[c] = keys
	}
	keys[key] = struct{}{}
	return true
}

// remove reports whether the pair was present.
func (x *index[K]) remove(key K, c Conn) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.removeLocked(key, c)
}

func (x *index[K]) removeLocked(key K, c Conn) bool {
	conns, ok := x.byKey[key]
	if !ok {
		return false
	}
	if _, exists := conns[c]; !exists {
		return false
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(x.byKey, key)
	}

	if keys, ok := x.byConn[c]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(x.byConn, c)
		}
	}
	return true
}

// removeConn drops every pair involving c and returns the keys it was under.
func (x *index[K]) removeConn(c Conn) []K {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.removeConnLocked(c)
}

func (x *index[K]) removeConnLocked(c Conn) []K {
	keys := lo.Keys(x.byConn[c])
	for _, key := range keys {
		x.removeLocked(key, c)
	}
	return keys
}

func (x *index[K]) conns(key K) []Conn {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return lo.Keys(x.byKey[key])
}

func (x *index[K]) keys(c Conn) []K {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return lo.Keys(x.byConn[c])
}

func (x *index[K]) len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byKey)
}

// visit calls fn for every connection under each of keys while holding the
// read lock, so no connection can be removed between lookup and fn.
// fn must not block and must not call back into the index.
func (x *index[K]) visit(keys []K, fn func(key K, c Conn)) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	for _, key := range keys {
		for c := range x.byKey[key] {
			fn(key, c)
		}
	}
}
