package core

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ConversationLocks serializes chat turns per (user, bot) pair. Entries are
// reference counted and removed once no turn holds or waits on them.
type ConversationLocks struct {
	mu    sync.Mutex
	locks map[string]*convLock
}

type convLock struct {
	sem  *semaphore.Weighted
	refs int
}

func NewConversationLocks() *ConversationLocks {
	return &ConversationLocks{locks: make(map[string]*convLock)}
}

// Acquire blocks until the conversation is free or ctx is done. The returned
// func releases the lock and must be called exactly once.
func (c *ConversationLocks) Acquire(ctx context.Context, userID, botID string) (func(), error) {
	key := userID + ":" + botID

	c.mu.Lock()
	l, ok := c.locks[key]
	if !ok {
		l = &convLock{sem: semaphore.NewWeighted(1)}
		c.locks[key] = l
	}
	l.refs++
	c.mu.Unlock()

	if err := l.sem.Acquire(ctx, 1); err != nil {
		c.unref(key, l)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.sem.Release(1)
			c.unref(key, l)
		})
	}, nil
}

func (c *ConversationLocks) unref(key string, l *convLock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(c.locks, key)
	}
}

func (c *ConversationLocks) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.locks)
}
