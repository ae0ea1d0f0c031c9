// Package stream bridges push-style account updates into pull-style reads.
// The store holds the latest raw bytes for every subscribed ledger account
// and notifies watchers on change; it is the only component that caches raw
// account bytes.
package stream

import (
	"context"
	"log/slog"
	"sync"
)

// Subscriber opens a push channel for one account. The returned function
// tears the channel down.
type Subscriber interface {
	SubscribeAccount(ctx context.Context, address string, onUpdate func(data []byte)) (func(), error)
}

// Unsubscribe releases one reference to an account subscription.
type Unsubscribe func()

type accountSub struct {
	refs     int
	cancel   func()
	latest   []byte
	watchers map[int]chan struct{}
}

// Store is the account stream store. Safe for concurrent use.
type Store struct {
	mu         sync.Mutex
	subscriber Subscriber
	accounts   map[string]*accountSub
	nextWatch  int
	logger     *slog.Logger

	onSubCount func(int32)
}

// NewStore creates a store backed by the given subscriber.
func NewStore(subscriber Subscriber, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		subscriber: subscriber,
		accounts:   make(map[string]*accountSub),
		logger:     logger.With("module", "stream_store"),
	}
}

// OnSubscriptionCount installs an optional gauge callback.
func (s *Store) OnSubscriptionCount(fn func(int32)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSubCount = fn
}

// Subscribe registers interest in an account. At most one underlying channel
// exists per address regardless of how many callers subscribe; the last
// unsubscribe tears it down.
func (s *Store) Subscribe(ctx context.Context, address string) (Unsubscribe, error) {
	s.mu.Lock()
	if sub, ok := s.accounts[address]; ok {
		sub.refs++
		s.mu.Unlock()
		return s.releaseFunc(address), nil
	}

	sub := &accountSub{refs: 1, watchers: make(map[int]chan struct{})}
	s.accounts[address] = sub
	s.gaugeLocked()
	s.mu.Unlock()

	cancel, err := s.subscriber.SubscribeAccount(ctx, address, func(data []byte) {
		s.handleUpdate(address, data)
	})
	if err != nil {
		s.mu.Lock()
		delete(s.accounts, address)
		s.gaugeLocked()
		s.mu.Unlock()
		return nil, err
	}

	s.mu.Lock()
	if cur, ok := s.accounts[address]; ok && cur == sub {
		sub.cancel = cancel
		s.mu.Unlock()
	} else {
		// Everyone unsubscribed while the channel was being set up.
		s.mu.Unlock()
		cancel()
	}
	return s.releaseFunc(address), nil
}

func (s *Store) releaseFunc(address string) Unsubscribe {
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			sub, ok := s.accounts[address]
			if !ok {
				s.mu.Unlock()
				return
			}
			sub.refs--
			if sub.refs > 0 {
				s.mu.Unlock()
				return
			}
			delete(s.accounts, address)
			s.gaugeLocked()
			cancel := sub.cancel
			s.mu.Unlock()
			if cancel != nil {
				cancel()
			}
		})
	}
}

func (s *Store) handleUpdate(address string, data []byte) {
	s.mu.Lock()
	sub, ok := s.accounts[address]
	if !ok {
		// Update raced a teardown; drop it.
		s.mu.Unlock()
		return
	}
	sub.latest = data
	watchers := make([]chan struct{}, 0, len(sub.watchers))
	for _, ch := range sub.watchers {
		watchers = append(watchers, ch)
	}
	s.mu.Unlock()

	for _, ch := range watchers {
		select {
		case ch <- struct{}{}:
		default: // watcher is behind; it will see the latest bytes anyway
		}
	}
}

// GetLatest returns the most recent bytes for the account, or nil until the
// first push arrives. Never blocks.
func (s *Store) GetLatest(address string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.accounts[address]
	if !ok || sub.latest == nil {
		return nil
	}
	out := make([]byte, len(sub.latest))
	copy(out, sub.latest)
	return out
}

// Watch returns a channel that receives a signal whenever new bytes arrive
// for the account, plus a stop function. The account must be subscribed.
func (s *Store) Watch(address string) (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan struct{}, 1)
	sub, ok := s.accounts[address]
	if !ok {
		// Not subscribed; return an inert channel.
		return ch, func() {}
	}
	id := s.nextWatch
	s.nextWatch++
	sub.watchers[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if cur, ok := s.accounts[address]; ok {
			delete(cur.watchers, id)
		}
	}
}

func (s *Store) gaugeLocked() {
	if s.onSubCount != nil {
		s.onSubCount(int32(len(s.accounts)))
	}
}
