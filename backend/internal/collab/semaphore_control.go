package collab

import (
	"context"
	"errors"
	"fmt"
)

const DefaultMaxSemaphore = 100

var ErrSemaphoreNotAcquired = errors.New("release failed, semaphore is not acquired")

type SemaphoreControl struct {
	ch chan struct{}
}

// NewSemaphoreControl n<=0 时用 DefaultMaxSemaphore
func NewSemaphoreControl(n int) *SemaphoreControl {
	if n <= 0 {
		n = DefaultMaxSemaphore
	}
	return &SemaphoreControl{ch: make(chan struct{}, n)}
}

func (s *SemaphoreControl) Acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("acquire semaphore: %w", ctx.Err())
	}
}

func (s *SemaphoreControl) Release() error {
	select {
	case <-s.ch:
		return nil
	default:
		return ErrSemaphoreNotAcquired
	}
}

// InUse 当前被占用的名额
func (s *SemaphoreControl) InUse() int {
	return len(s.ch)
}
