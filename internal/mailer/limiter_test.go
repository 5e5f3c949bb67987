package mailer

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestSessionLimiter_Acquire(t *testing.T) {
	t.Run("succeeds up to max", func(t *testing.T) {
		limiter := NewSessionLimiter(3)
		for i := 0; i < 3; i++ {
			if err := limiter.Acquire(); err != nil {
				t.Errorf("Acquire %d: %v", i+1, err)
			}
		}
		if limiter.Open() != 3 {
			t.Errorf("Open() = %d, want 3", limiter.Open())
		}
	})

	t.Run("fails at capacity", func(t *testing.T) {
		limiter := NewSessionLimiter(1)
		_ = limiter.Acquire()
		if err := limiter.Acquire(); !errors.Is(err, ErrTooManySessions) {
			t.Errorf("Acquire at capacity = %v, want ErrTooManySessions", err)
		}
	})

	t.Run("release frees a slot", func(t *testing.T) {
		limiter := NewSessionLimiter(1)
		if err := limiter.Acquire(); err != nil {
			t.Fatalf("first Acquire: %v", err)
		}
		limiter.Release()
		if err := limiter.Acquire(); err != nil {
			t.Errorf("Acquire after Release: %v", err)
		}
	})

	t.Run("nil limiter is unbounded", func(t *testing.T) {
		var limiter *SessionLimiter
		for i := 0; i < 10; i++ {
			if err := limiter.Acquire(); err != nil {
				t.Fatalf("Acquire: %v", err)
			}
		}
		limiter.Release()
		if limiter.Open() != 0 {
			t.Errorf("Open() = %d, want 0", limiter.Open())
		}
	})
}

func TestSessionLimiter_Concurrent(t *testing.T) {
	limiter := NewSessionLimiter(50)
	var wg sync.WaitGroup
	var admitted atomic.Int64

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Acquire() == nil {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if admitted.Load() != 50 {
		t.Errorf("admitted = %d, want 50", admitted.Load())
	}
	if limiter.Open() != 50 {
		t.Errorf("Open() = %d, want 50", limiter.Open())
	}

	for i := 0; i < 50; i++ {
		limiter.Release()
	}
	if limiter.Open() != 0 {
		t.Errorf("Open() after release = %d, want 0", limiter.Open())
	}
}
