package shared

import (
	"context"
	"fmt"
	"sync"
)

// OrderLockKey builds lock keys for ledger writes on one sales order.
func OrderLockKey(orderID int64) string {
	return fmt.Sprintf("recon:order:%d:lock", orderID)
}

// SeriesLockKey builds lock keys for a numbering series.
func SeriesLockKey(series string) string {
	return fmt.Sprintf("recon:series:%s:lock", series)
}

// Locker grants exclusive access to a key. The returned func releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// KeyedMutex is an in-process Locker with one mutex per key.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex constructs an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free or ctx is done.
func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{ch: make(chan struct{}, 1)}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.ch
			k.release(key, entry)
		})
	}, nil
}

func (k *KeyedMutex) release(key string, entry *keyedEntry) {
	k.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}

// NoopLocker never blocks. Useful when the database row lock is enough.
type NoopLocker struct{}

// Lock implements Locker.
func (NoopLocker) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}
