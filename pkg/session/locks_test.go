package session

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func (l *Locks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func TestLocks_SerialisesSameKey(t *testing.T) {
	var l Locks
	var inside, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("ops")
			defer unlock()
			n := atomic.AddInt32(&inside, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak)
	assert.Zero(t, l.held())
}

func TestLocks_DifferentKeysDoNotBlock(t *testing.T) {
	var l Locks
	unlockA := l.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := l.Lock("b")
		unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
	assert.Equal(t, 1, l.held())
}

func TestLocks_UnlockIsIdempotent(t *testing.T) {
	var l Locks
	unlock := l.Lock("a")
	unlock()
	unlock()
	assert.Zero(t, l.held())

	unlock = l.Lock("a")
	unlock()
}
