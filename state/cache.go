package state

import "time"

// The cache is an auxiliary in-process map, independent of registered
// variables and never persisted.  Handy for cooldowns and other
// throwaway bookkeeping.

type cacheEntry struct {
	v       interface{}
	expires time.Time
}

func (e cacheEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// CacheSet stores v under key.  A ttl of zero means no expiry.
func (m *Manager) CacheSet(key string, v interface{}, ttl time.Duration) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	e := cacheEntry{v: v}
	if 0 < ttl {
		e.expires = time.Now().Add(ttl)
	}
	m.cache[key] = e
}

// CacheGet returns the cached value and whether it was there.  An
// expired entry is gone, and reading it reclaims it.
func (m *Manager) CacheGet(key string) (interface{}, bool) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	e, have := m.cache[key]
	if !have {
		return nil, false
	}
	if e.expired(time.Now()) {
		delete(m.cache, key)
		return nil, false
	}
	return e.v, true
}

func (m *Manager) CacheDelete(key string) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	delete(m.cache, key)
}

func (m *Manager) cacheSweep() int {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	now := time.Now()
	n := 0
	for key, e := range m.cache {
		if e.expired(now) {
			delete(m.cache, key)
			n++
		}
	}
	return n
}
