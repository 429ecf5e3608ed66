package splitpay

import (
	"context"
	"sync"

	"github.com/vitwit/splitpay/clients"
)

// Session is the connection context every payment call receives.
type Session = clients.Session

// PayerLocks serializes payments per payer account. Two payments from the
// same account in flight at once would race for the same nonce, so callers
// take the payer's lock around Pay.
type PayerLocks struct {
	mu    sync.Mutex
	locks map[string]*payerLock
}

type payerLock struct {
	ch   chan struct{}
	refs int
}

func NewPayerLocks() *PayerLocks {
	return &PayerLocks{locks: make(map[string]*payerLock)}
}

// Lock blocks until payer's lock is held or ctx is done. The returned func
// releases the lock and is safe to call more than once.
func (l *PayerLocks) Lock(ctx context.Context, payer string) (func(), error) {
	l.mu.Lock()
	pl, ok := l.locks[payer]
	if !ok {
		pl = &payerLock{ch: make(chan struct{}, 1)}
		l.locks[payer] = pl
	}
	pl.refs++
	l.mu.Unlock()

	select {
	case pl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(payer, pl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-pl.ch
			l.release(payer, pl)
		})
	}, nil
}

func (l *PayerLocks) release(payer string, pl *payerLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pl.refs--
	if pl.refs == 0 {
		delete(l.locks, payer)
	}
}

// Len returns the number of payers currently holding or waiting on a lock.
func (l *PayerLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
