// Package lock provides per-tool mutual exclusion for the booking
// read-check-write sequences.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrLockTimeout is returned when the lock could not be taken before the
// caller's deadline.
var ErrLockTimeout = errors.New("timed out waiting for tool lock")

func timeoutError(toolID int32, err error) error {
	return fmt.Errorf("%w: tool %d: %v", ErrLockTimeout, toolID, err)
}

// Local serializes access per tool inside one process.
type Local struct {
	mu    sync.Mutex
	slots map[int32]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{slots: make(map[int32]*slot)}
}

func (l *Local) AcquireToolLock(ctx context.Context, toolID int32) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[toolID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[toolID] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(toolID, s)
		return nil, timeoutError(toolID, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.unref(toolID, s)
		})
	}, nil
}

func (l *Local) unref(toolID int32, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, toolID)
	}
}
