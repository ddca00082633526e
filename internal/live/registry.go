package live

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"social-service/internal/observability"
	"social-service/internal/repositories"
)

// Query is a read-only evaluation against one transaction.
type Query func(ctx context.Context, tx repositories.Tx) (any, error)

// Snapshot is one evaluation of a watched query.
type Snapshot struct {
	Version uint64
	Result  any
	Err     error
}

// Registry keeps watched queries current: every committed write whose keys
// intersect a query's last read set triggers a re-evaluation.
type Registry struct {
	store repositories.Store
	log   *zap.Logger

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	unsub  func()
	closed bool
}

func NewRegistry(ctx context.Context, store repositories.Store, feed Feed, log *zap.Logger) (*Registry, error) {
	r := &Registry{
		store: store,
		log:   log,
		subs:  map[*Subscription]struct{}{},
	}
	unsub, err := feed.Subscribe(ctx, r.notify)
	if err != nil {
		return nil, err
	}
	r.unsub = unsub
	return r, nil
}

// Watch registers q and returns a subscription whose first snapshot is the
// initial evaluation. The subscription ends when ctx is done or Close is called.
func (r *Registry) Watch(ctx context.Context, q Query) (*Subscription, error) {
	s := &Subscription{
		reg:     r,
		query:   q,
		dirty:   make(chan struct{}, 1),
		updates: make(chan Snapshot, 1),
		done:    make(chan struct{}),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errors.New("live registry closed")
	}
	r.subs[s] = struct{}{}
	r.mu.Unlock()
	observability.IncLiveSubscriptions()

	s.markDirty()
	go s.run(ctx)
	return s, nil
}

func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	subs := make([]*Subscription, 0, len(r.subs))
	for s := range r.subs {
		subs = append(subs, s)
	}
	r.mu.Unlock()

	if r.unsub != nil {
		r.unsub()
	}
	for _, s := range subs {
		s.Close()
	}
}

func (r *Registry) notify(keys []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for s := range r.subs {
		if s.dependsOn(keys) {
			s.markDirty()
		}
	}
}

func (r *Registry) remove(s *Subscription) {
	r.mu.Lock()
	_, ok := r.subs[s]
	delete(r.subs, s)
	r.mu.Unlock()
	if ok {
		observability.DecLiveSubscriptions()
	}
}

type Subscription struct {
	reg   *Registry
	query Query

	mu         sync.Mutex
	deps       map[string]struct{} // nil means "not yet known": any write is relevant
	refreshing bool
	missed     []string // keys notified while an evaluation was in flight

	dirty   chan struct{}
	updates chan Snapshot
	done    chan struct{}
	once    sync.Once

	version uint64
	last    []byte
}

// Updates yields snapshots. Only the most recent undelivered snapshot is kept.
// The channel is closed when the subscription ends.
func (s *Subscription) Updates() <-chan Snapshot {
	return s.updates
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.reg.remove(s)
		close(s.done)
	})
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.updates)
	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-s.done:
			return
		case <-s.dirty:
			s.refresh(ctx)
		}
	}
}

func (s *Subscription) refresh(ctx context.Context) {
	s.mu.Lock()
	s.refreshing = true
	s.missed = nil
	s.mu.Unlock()

	var result any
	changes, err := s.reg.store.View(ctx, func(tx repositories.Tx) error {
		var qerr error
		result, qerr = s.query(ctx, tx)
		return qerr
	})
	s.setDeps(changes.Reads)
	if ctx.Err() != nil {
		return
	}

	if err != nil {
		s.last = nil
		s.version++
		s.push(Snapshot{Version: s.version, Err: err})
		return
	}

	encoded, encErr := json.Marshal(result)
	if encErr != nil {
		s.reg.log.Warn("live query result not encodable", zap.Error(encErr))
		encoded = nil
	}
	if s.version > 0 && encoded != nil && bytes.Equal(encoded, s.last) {
		return
	}
	s.last = encoded
	s.version++
	s.push(Snapshot{Version: s.version, Result: result})
}

func (s *Subscription) push(snap Snapshot) {
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- snap:
	case <-s.done:
	}
}

func (s *Subscription) setDeps(keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(keys) == 0 {
		s.deps = nil
	} else {
		s.deps = make(map[string]struct{}, len(keys))
		for _, k := range keys {
			s.deps[k] = struct{}{}
		}
	}

	missed := s.missed
	s.refreshing = false
	s.missed = nil
	if len(missed) > 0 && s.matchLocked(missed) {
		s.markDirty()
	}
}

func (s *Subscription) dependsOn(keys []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshing {
		s.missed = append(s.missed, keys...)
	}
	return s.matchLocked(keys)
}

func (s *Subscription) matchLocked(keys []string) bool {
	if s.deps == nil {
		return true
	}
	for _, k := range keys {
		if _, ok := s.deps[k]; ok {
			return true
		}
	}
	return false
}

func (s *Subscription) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}
