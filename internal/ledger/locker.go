package ledger

import (
	"context"
	"sync"
)

// LocalLocker is an in-process keyed mutex. Entries live only while some
// caller holds or waits for them, so the map does not grow with the
// number of accounts ever seen.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

// NewLocalLocker creates an empty locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyLock)}
}

// Lock blocks until accountID is free or ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, accountID string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[accountID]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[accountID] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(accountID, kl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.sem
			l.release(accountID, kl)
		})
	}, nil
}

func (l *LocalLocker) release(accountID string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, accountID)
	}
}

// size is the number of tracked keys.
func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
