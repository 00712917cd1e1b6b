// Package topic is the topic registry (spec §4.4): the mapping from chat id
// to the set of sessions currently subscribed to it.
package topic

import (
	"sync"

	"github.com/usernameisnull/meridian/internal/store/types"
)

// Registry maps chat ids to subscriber sets. S is typically a
// *chatsession.Session pointer, which is comparable by identity. An outer
// mutex guards the top-level index; each chat id's subscriber set has its
// own mutex, so broadcasting to one chat never blocks joins/leaves on
// another (spec §4.4, §5 "shared-resource policy").
type Registry[S comparable] struct {
	mu   sync.RWMutex
	sets map[types.ChatID]*subscriberSet[S]
}

type subscriberSet[S comparable] struct {
	mu   sync.Mutex
	subs map[S]struct{}
}

// New creates an empty registry.
func New[S comparable]() *Registry[S] {
	return &Registry[S]{sets: make(map[types.ChatID]*subscriberSet[S])}
}

func (r *Registry[S]) setFor(chatID types.ChatID, createIfMissing bool) *subscriberSet[S] {
	r.mu.RLock()
	set, ok := r.sets[chatID]
	r.mu.RUnlock()
	if ok || !createIfMissing {
		return set
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok = r.sets[chatID]; ok {
		return set
	}
	set = &subscriberSet[S]{subs: make(map[S]struct{})}
	r.sets[chatID] = set
	return set
}

// Join inserts sub into chatID's subscriber set, creating the set if this
// is the first subscriber.
func (r *Registry[S]) Join(chatID types.ChatID, sub S) {
	set := r.setFor(chatID, true)
	set.mu.Lock()
	set.subs[sub] = struct{}{}
	set.mu.Unlock()
}

// Leave removes sub from chatID's subscriber set, if present. An empty set
// is pruned from the index.
func (r *Registry[S]) Leave(chatID types.ChatID, sub S) {
	set := r.setFor(chatID, false)
	if set == nil {
		return
	}
	set.mu.Lock()
	delete(set.subs, sub)
	empty := len(set.subs) == 0
	set.mu.Unlock()

	if empty {
		r.mu.Lock()
		if cur, ok := r.sets[chatID]; ok && cur == set {
			cur.mu.Lock()
			stillEmpty := len(cur.subs) == 0
			cur.mu.Unlock()
			if stillEmpty {
				delete(r.sets, chatID)
			}
		}
		r.mu.Unlock()
	}
}

// Drop removes chatID's entry entirely, regardless of membership — used by
// voice-chat deletion (spec §8 property 6: "the topic registry has no
// entry for c").
func (r *Registry[S]) Drop(chatID types.ChatID) {
	r.mu.Lock()
	delete(r.sets, chatID)
	r.mu.Unlock()
}

// Snapshot returns a stable copy of chatID's subscriber set, taken under
// the per-topic lock only, so the caller can broadcast without holding any
// lock during I/O (spec §9 "broadcast under lock").
func (r *Registry[S]) Snapshot(chatID types.ChatID) []S {
	set := r.setFor(chatID, false)
	if set == nil {
		return nil
	}
	set.mu.Lock()
	defer set.mu.Unlock()
	out := make([]S, 0, len(set.subs))
	for s := range set.subs {
		out = append(out, s)
	}
	return out
}
