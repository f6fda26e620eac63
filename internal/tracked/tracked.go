// Package tracked holds the viewer's favorites and recents and exposes their
// union as the channel set the poller checks.
package tracked

import (
	"sync"

	"github.com/john/livewatch/internal/live"
)

const (
	MaxFavorites = 30
	MaxRecents   = 8
)

// Source provides the channel set to check. Snapshot must return a copy.
type Source interface {
	Snapshot() []live.ChannelRef
}

// Notifier lets callers observe changes to a Source. The returned function
// removes the subscription.
type Notifier interface {
	Subscribe(fn func()) (unsubscribe func())
}

// Policy controls how List.Add treats an entry that is already present.
type Policy int

const (
	// KeepPosition leaves an existing entry where it is.
	KeepPosition Policy = iota
	// MoveToFront moves an existing entry to the head of the list.
	MoveToFront
)

// List is a bounded, newest-first list of channels without duplicates.
type List struct {
	max    int
	policy Policy

	mu    sync.RWMutex
	items []live.ChannelRef
	subs  subscribers
}

// NewFavorites returns a list that keeps the first position of a re-added entry.
func NewFavorites() *List {
	return &List{max: MaxFavorites, policy: KeepPosition}
}

// NewRecents returns a list that moves a re-added entry to the front.
func NewRecents() *List {
	return &List{max: MaxRecents, policy: MoveToFront}
}

// Add inserts ref at the head of the list and reports whether the list changed.
// Entries beyond the capacity are dropped from the tail.
func (l *List) Add(ref live.ChannelRef) bool {
	l.mu.Lock()
	idx := l.indexOf(ref.Key())
	switch {
	case idx == 0:
		l.mu.Unlock()
		return false
	case idx > 0 && l.policy == KeepPosition:
		l.mu.Unlock()
		return false
	case idx > 0:
		l.items = append(l.items[:idx], l.items[idx+1:]...)
	}
	l.items = append([]live.ChannelRef{ref}, l.items...)
	if len(l.items) > l.max {
		l.items = l.items[:l.max]
	}
	l.mu.Unlock()

	l.subs.notify()
	return true
}

// Remove deletes the entry for (platform, channel) and reports whether it existed.
func (l *List) Remove(ref live.ChannelRef) bool {
	l.mu.Lock()
	idx := l.indexOf(ref.Key())
	if idx < 0 {
		l.mu.Unlock()
		return false
	}
	l.items = append(l.items[:idx], l.items[idx+1:]...)
	l.mu.Unlock()

	l.subs.notify()
	return true
}

// Replace sets the list contents, dropping duplicates and entries beyond capacity.
func (l *List) Replace(refs []live.ChannelRef) {
	items := make([]live.ChannelRef, 0, min(len(refs), l.max))
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if len(items) == l.max {
			break
		}
		if seen[ref.Key()] {
			continue
		}
		seen[ref.Key()] = true
		items = append(items, ref)
	}

	l.mu.Lock()
	l.items = items
	l.mu.Unlock()

	l.subs.notify()
}

// Contains reports whether the list holds (platform, channel).
func (l *List) Contains(ref live.ChannelRef) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.indexOf(ref.Key()) >= 0
}

// Snapshot returns a copy of the list contents.
func (l *List) Snapshot() []live.ChannelRef {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]live.ChannelRef, len(l.items))
	copy(out, l.items)
	return out
}

// Len returns the number of entries.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Subscribe registers fn to run after every change.
func (l *List) Subscribe(fn func()) func() {
	return l.subs.add(fn)
}

func (l *List) indexOf(key string) int {
	for i, item := range l.items {
		if item.Key() == key {
			return i
		}
	}
	return -1
}

// Union combines several sources into one set, deduplicated by key. Earlier
// sources win when the same channel appears twice.
type Union struct {
	lists []*List
}

// NewUnion returns the union of lists.
func NewUnion(lists ...*List) *Union {
	return &Union{lists: lists}
}

// Snapshot returns the deduplicated channel set.
func (u *Union) Snapshot() []live.ChannelRef {
	var out []live.ChannelRef
	seen := make(map[string]bool)
	for _, l := range u.lists {
		for _, ref := range l.Snapshot() {
			if seen[ref.Key()] {
				continue
			}
			seen[ref.Key()] = true
			out = append(out, ref)
		}
	}
	return out
}

// Subscribe registers fn on every member list.
func (u *Union) Subscribe(fn func()) func() {
	cancels := make([]func(), 0, len(u.lists))
	for _, l := range u.lists {
		cancels = append(cancels, l.Subscribe(fn))
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

type subscribers struct {
	mu   sync.Mutex
	next int
	fns  map[int]func()
}

func (s *subscribers) add(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[int]func())
	}
	id := s.next
	s.next++
	s.fns[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.fns, id)
		s.mu.Unlock()
	}
}

func (s *subscribers) notify() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
