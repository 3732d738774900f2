package state

import (
	"sync"

	"github.com/tphakala/wsynth-go/internal/logger"
)

// Listener receives every published snapshot.
type Listener func(snap *Snapshot)

// Store holds the current snapshot and publishes each new one to listeners
// in mutation order.
type Store struct {
	// publishMu serializes Update so listeners see snapshots in order.
	publishMu sync.Mutex

	mu        sync.RWMutex
	current   *Snapshot
	listeners map[int]Listener
	nextID    int
}

// NewStore creates a store holding initial.
func NewStore(initial Snapshot) *Store {
	snap := initial
	return &Store{
		current:   &snap,
		listeners: make(map[int]Listener),
	}
}

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update applies transitions in order as one mutation and publishes the
// result. Listeners run on the calling goroutine and must not call Update.
func (s *Store) Update(transitions ...Transition) *Snapshot {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	next := *s.current
	for _, t := range transitions {
		t(&next)
	}
	next.Version = s.current.Version + 1
	snap := &next
	s.current = snap
	listeners := make([]Listener, 0, len(s.listeners))
	for id := range s.nextID {
		if l, ok := s.listeners[id]; ok {
			listeners = append(listeners, l)
		}
	}
	s.mu.Unlock()

	for _, l := range listeners {
		s.notify(l, snap)
	}
	return snap
}

// Subscribe registers l for every future snapshot and returns a function
// that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) notify(l Listener, snap *Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			GetLogger().Error("state listener panic",
				logger.Any("panic", r),
				logger.Int64("version", int64(snap.Version)))
		}
	}()
	l(snap)
}

// GetLogger returns the state package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("state")
}
