package stores

import (
	"context"
	"sync"

	"github.com/liut/agrochat/pkg/models/aigc"
)

// Locker serialises work on one key
type Locker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

// NewLocker ...
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*keyLock)}
}

// Lock blocks until key is free and returns the unlock func
func (l *Locker) Lock(key string) (unlock func()) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = new(keyLock)
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.Lock()
	return func() {
		kl.Unlock()
		l.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// Sessions pairs a store with a locker so that read-modify-write of one session is atomic in process
type Sessions struct {
	SessionStore
	lk *Locker
}

// NewSessions ...
func NewSessions(ss SessionStore) *Sessions {
	return &Sessions{SessionStore: ss, lk: NewLocker()}
}

// Update loads the session, applies fn and saves it when fn succeeds
func (s *Sessions) Update(ctx context.Context, id string, fn func(sess *aigc.Session) error) (*aigc.Session, error) {
	unlock := s.lk.Lock(id)
	defer unlock()

	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err = fn(sess); err != nil {
		return sess, err
	}
	if err = s.Save(ctx, sess); err != nil {
		return sess, err
	}
	return sess, nil
}

// Reset drops the session under its lock
func (s *Sessions) Reset(ctx context.Context, id string) error {
	unlock := s.lk.Lock(id)
	defer unlock()
	return s.SessionStore.Reset(ctx, id)
}
