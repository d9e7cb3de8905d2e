package cache

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Store holds the current snapshot and serializes dispatches. Reads never
// block: State returns an immutable snapshot.
type Store struct {
	current atomic.Pointer[State]
	logger  *slog.Logger

	mu        sync.Mutex // serializes Dispatch
	subMu     sync.Mutex
	nextSub   int
	listeners map[int]func(*State)
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger used for dispatch tracing.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithState starts the store from an existing snapshot.
func WithState(st *State) StoreOption {
	return func(s *Store) {
		if st != nil {
			s.current.Store(st)
		}
	}
}

// NewStore creates a Store holding an empty snapshot.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		logger:    slog.Default(),
		listeners: make(map[int]func(*State)),
	}
	s.current.Store(NewState())
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current snapshot.
func (s *Store) State() *State {
	return s.current.Load()
}

// Dispatch applies actions in order, one at a time. Listeners are called
// once per action that changed the state, after the writer lock is released.
func (s *Store) Dispatch(actions ...Action) *State {
	s.mu.Lock()
	var changed []*State
	st := s.current.Load()
	for _, a := range actions {
		next := Reduce(st, a)
		s.logger.Debug("cache dispatch", "action", a.Type(), "changed", next != st)
		if next == st {
			continue
		}
		st = next
		s.current.Store(st)
		changed = append(changed, st)
	}
	s.mu.Unlock()

	if len(changed) > 0 {
		listeners := s.snapshotListeners()
		for _, snap := range changed {
			for _, fn := range listeners {
				fn(snap)
			}
		}
	}
	return st
}

// Subscribe registers fn to be called with every new snapshot. The returned
// function removes the subscription and is safe to call more than once.
func (s *Store) Subscribe(fn func(*State)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.listeners, id)
		s.subMu.Unlock()
	}
}

func (s *Store) snapshotListeners() []func(*State) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	out := make([]func(*State), 0, len(s.listeners))
	for i := 0; i < s.nextSub; i++ {
		if fn, ok := s.listeners[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}
