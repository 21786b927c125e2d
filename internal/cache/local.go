package cache

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

type localEntry struct {
	value     []byte
	expiresAt time.Time
}

// localStore is the in-process fallback tier. Capacity is bounded; when
// exceeded, the single oldest-inserted entry is evicted. Insertion order is
// tracked from first insert, so overwrites do not refresh an entry's position.
type localStore struct {
	mu       sync.Mutex
	entries  map[string]localEntry
	order    []string
	capacity int
}

func newLocalStore(capacity int) *localStore {
	if capacity <= 0 {
		capacity = 1
	}
	return &localStore{
		entries:  make(map[string]localEntry),
		order:    make([]string, 0, capacity),
		capacity: capacity,
	}
}

func (s *localStore) get(key string, now time.Time) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if now.After(e.expiresAt) {
		s.removeLocked(key)
		return nil, false
	}
	return e.value, true
}

func (s *localStore) set(key string, value []byte, ttl time.Duration, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists {
		if len(s.entries) >= s.capacity {
			s.removeLocked(s.order[0])
		}
		s.order = append(s.order, key)
	}
	s.entries[key] = localEntry{value: value, expiresAt: now.Add(ttl)}
}

func (s *localStore) delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(key)
}

func (s *localStore) exists(key string, now time.Time) bool {
	_, ok := s.get(key, now)
	return ok
}

// invalidatePattern removes every entry whose key matches the glob pattern
// and returns the removed keys.
func (s *localStore) invalidatePattern(pattern string) []string {
	re, err := globToRegexp(pattern)
	if err != nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for key := range s.entries {
		if re.MatchString(key) {
			removed = append(removed, key)
		}
	}
	for _, key := range removed {
		s.removeLocked(key)
	}
	return removed
}

func (s *localStore) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]localEntry)
	s.order = s.order[:0]
}

func (s *localStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *localStore) removeLocked(key string) {
	if _, ok := s.entries[key]; !ok {
		return
	}
	delete(s.entries, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// globToRegexp translates a glob-style pattern (* and ? wildcards) into an
// anchored regular expression.
func globToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
