// Package timedlist provides sets whose members expire a fixed interval
// after they were last added.
package timedlist

import (
	"context"
	"sync"
	"time"
)

// List is an in-memory expiring set. Adding a key (re)sets its expiry to
// now+interval. Expired keys are dropped lazily when looked up; there is no
// background sweep. A List is safe for concurrent use.
type List[K comparable] struct {
	mu       sync.Mutex
	interval time.Duration
	now      func() time.Time
	entries  map[K]time.Time
}

// New returns an empty List whose members live for interval.
func New[K comparable](interval time.Duration) *List[K] {
	return NewWithClock[K](interval, time.Now)
}

// NewWithClock is New with an explicit clock.
func NewWithClock[K comparable](interval time.Duration, now func() time.Time) *List[K] {
	return &List[K]{interval: interval, now: now, entries: make(map[K]time.Time)}
}

// Interval returns the configured member lifetime.
func (l *List[K]) Interval() time.Duration { return l.interval }

// Add inserts k or refreshes its expiry.
func (l *List[K]) Add(k K) { l.AddFor(k, l.interval) }

// AddFor inserts k with a lifetime of d instead of the list interval.
func (l *List[K]) AddFor(k K, d time.Duration) {
	l.mu.Lock()
	l.entries[k] = l.now().Add(d)
	l.mu.Unlock()
}

// Contains reports whether k was added and has not yet expired.
func (l *List[K]) Contains(k K) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	exp, ok := l.entries[k]
	if !ok {
		return false
	}
	if !l.now().Before(exp) {
		delete(l.entries, k)
		return false
	}
	return true
}

// Remove deletes k.
func (l *List[K]) Remove(k K) {
	l.mu.Lock()
	delete(l.entries, k)
	l.mu.Unlock()
}

// Keys returns the live members in no particular order, dropping expired
// ones.
func (l *List[K]) Keys() []K {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	keys := make([]K, 0, len(l.entries))
	for k, exp := range l.entries {
		if !now.Before(exp) {
			delete(l.entries, k)
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of live members.
func (l *List[K]) Len() int { return len(l.Keys()) }

// Set is an expiring string set whose storage may be remote.
type Set interface {
	Add(ctx context.Context, key string) error
	Contains(ctx context.Context, key string) (bool, error)
	Remove(ctx context.Context, key string) error
}

type localSet struct{ l *List[string] }

// Local adapts an in-memory List to Set.
func Local(l *List[string]) Set { return localSet{l} }

func (s localSet) Add(_ context.Context, key string) error { s.l.Add(key); return nil }

func (s localSet) Contains(_ context.Context, key string) (bool, error) {
	return s.l.Contains(key), nil
}

func (s localSet) Remove(_ context.Context, key string) error { s.l.Remove(key); return nil }
