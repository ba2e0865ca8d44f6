// Package refresh provides the single-flight coordination used by the token managers:
// at most one token request is in flight per key, and every concurrent caller for that key
// receives the outcome of that one request.
package refresh

import (
	"context"
	"fmt"
	"sync"
)

// Factory starts the underlying operation. The context it receives is not tied to any single
// caller; it is cancelled only when every waiting caller has given up.
type Factory func(ctx context.Context) (any, error)

type call struct {
	done    chan struct{}
	val     any
	err     error
	waiters int
	cancel  context.CancelFunc
}

// Synchronizer tracks in-flight operations by key. Create one per consumer and share it;
// the zero value is not usable, use NewSynchronizer.
type Synchronizer struct {
	mu    sync.Mutex
	calls map[string]*call
}

func NewSynchronizer() *Synchronizer {
	return &Synchronizer{
		calls: make(map[string]*call),
	}
}

// GetOrCreate returns the result of the in-flight operation for key, starting one with factory
// if none exists. The registration is removed when the operation completes, successfully or
// not, so the next call after completion starts a fresh operation.
//
// If ctx is cancelled the caller detaches and gets ctx.Err(); the operation keeps running for
// the remaining waiters. When the last waiter detaches the operation's context is cancelled.
func (s *Synchronizer) GetOrCreate(ctx context.Context, key string, factory Factory) (any, error) {
	s.mu.Lock()
	c, ok := s.calls[key]
	if !ok {
		opCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c = &call{done: make(chan struct{}), cancel: cancel}
		s.calls[key] = c
		go s.run(opCtx, key, c, factory)
	}
	c.waiters++
	s.mu.Unlock()

	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		s.detach(key, c)
		return nil, ctx.Err()
	}
}

func (s *Synchronizer) run(ctx context.Context, key string, c *call, factory Factory) {
	defer func() {
		if r := recover(); r != nil {
			c.val, c.err = nil, fmt.Errorf("refresh operation for key panicked: %v", r)
		}
		s.mu.Lock()
		if s.calls[key] == c {
			delete(s.calls, key)
		}
		s.mu.Unlock()
		c.cancel()
		close(c.done)
	}()
	c.val, c.err = factory(ctx)
}

func (s *Synchronizer) detach(key string, c *call) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.waiters--
	if c.waiters > 0 {
		return
	}
	// nobody is waiting any more: abandon the operation and let the next caller start over
	if s.calls[key] == c {
		delete(s.calls, key)
	}
	c.cancel()
}

// Do is a typed wrapper around GetOrCreate.
func Do[T any](ctx context.Context, s *Synchronizer, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	v, err := s.GetOrCreate(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("refresh: unexpected result type %T for key", v)
	}
	return t, nil
}
