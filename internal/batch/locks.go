package batch

import "sync"

// MemberLocks serializes reconciliation per account ID. The engine
// itself holds no locks; the OpenPath group replace is last-writer-
// wins, so callers that may run concurrently (batch workers, the HTTP
// trigger) share one of these.
type MemberLocks struct {
	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func NewMemberLocks() *MemberLocks {
	return &MemberLocks{locks: make(map[int]*sync.Mutex)}
}

func (l *MemberLocks) Lock(accountID int) {
	l.mu.Lock()
	lock, ok := l.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[accountID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
}

func (l *MemberLocks) Unlock(accountID int) {
	l.mu.Lock()
	lock := l.locks[accountID]
	l.mu.Unlock()

	lock.Unlock()
}
