package utils

import (
	"sort"
	"sync"
)

// KeyLocker hands out one mutex per key. Multi-key locks are taken in sorted
// order, so "account:*" keys always precede "match:*" keys.
type KeyLocker struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func NewKeyLocker() *KeyLocker {
	return &KeyLocker{locks: make(map[string]*refMutex)}
}

func AccountKey(account string) string { return "account:" + account }
func MatchKey(id string) string        { return "match:" + id }

// Lock acquires every key and returns a func releasing them.
func (l *KeyLocker) Lock(keys ...string) (unlock func()) {
	keys = uniqueSorted(keys)
	held := make([]*refMutex, 0, len(keys))
	for _, k := range keys {
		m := l.acquire(k)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
			l.release(keys[i])
		}
	}
}

func (l *KeyLocker) acquire(key string) *refMutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[key]
	if !ok {
		m = &refMutex{}
		l.locks[key] = m
	}
	m.refs++
	return m
}

func (l *KeyLocker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := l.locks[key]
	m.refs--
	if m.refs == 0 {
		delete(l.locks, key)
	}
}

// Len reports how many keys are currently tracked.
func (l *KeyLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func uniqueSorted(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, k := range out {
		if i > 0 && k == out[n-1] {
			continue
		}
		out[n] = k
		n++
	}
	return out[:n]
}
