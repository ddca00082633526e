package live

import (
	"context"
	"sync"
)

// Feed carries the dependency keys written by committed transactions.
type Feed interface {
	Publish(ctx context.Context, keys []string) error
	// Subscribe registers fn for every published batch. fn must not block.
	Subscribe(ctx context.Context, fn func(keys []string)) (func(), error)
	Close() error
}

// LocalFeed is an in-process fan-out feed. Handlers run on the publisher's goroutine.
type LocalFeed struct {
	mu       sync.RWMutex
	handlers map[int]func([]string)
	next     int
}

func NewLocalFeed() *LocalFeed {
	return &LocalFeed{handlers: map[int]func([]string){}}
}

func (f *LocalFeed) Publish(_ context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, fn := range f.handlers {
		fn(keys)
	}
	return nil
}

func (f *LocalFeed) Subscribe(_ context.Context, fn func([]string)) (func(), error) {
	f.mu.Lock()
	id := f.next
	f.next++
	f.handlers[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.handlers, id)
			f.mu.Unlock()
		})
	}, nil
}

func (f *LocalFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = map[int]func([]string){}
	return nil
}
