package action

import (
	"context"
	"sync"
)

// Locker serializes actions on the same key.
type Locker interface {
	// Lock blocks until the key is acquired or ctx is done.
	//
	// On success, the caller should call unlock exactly once.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// KeyedMutex is an in-process Locker.
//
// Entries for keys are removed when nobody holds nor waits them.
type KeyedMutex struct {
	m    sync.Mutex
	keys map[string]*keyEntry
}

type keyEntry struct {
	sem  chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{keys: map[string]*keyEntry{}}
}

var _ Locker = &KeyedMutex{}

func (km *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	km.m.Lock()
	if km.keys == nil {
		km.keys = map[string]*keyEntry{}
	}
	e, ok := km.keys[key]
	if !ok {
		e = &keyEntry{sem: make(chan struct{}, 1)}
		km.keys[key] = e
	}
	e.refs += 1
	km.m.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		km.release(key, e)
		return nil, ctx.Err()
	}

	once := sync.Once{}
	return func() {
		once.Do(func() {
			<-e.sem
			km.release(key, e)
		})
	}, nil
}

func (km *KeyedMutex) release(key string, e *keyEntry) {
	km.m.Lock()
	defer km.m.Unlock()
	e.refs -= 1
	if e.refs == 0 {
		delete(km.keys, key)
	}
}

// Len returns the number of keys held or waited.
func (km *KeyedMutex) Len() int {
	km.m.Lock()
	defer km.m.Unlock()
	return len(km.keys)
}
