package image

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// EngineSlots bounds the number of OCR engines running at once. An engine
// whose caller has gone away keeps its slot until it actually returns, so
// abandoned cgo calls still count against the limit.
type EngineSlots struct {
	sem *semaphore.Weighted
}

func NewEngineSlots(n int) *EngineSlots {
	if n <= 0 {
		n = 1
	}
	return &EngineSlots{sem: semaphore.NewWeighted(int64(n))}
}

type engineResult struct {
	text string
	err  error
}

// Run waits for a free slot and executes fn on its own goroutine. A cancelled
// ctx returns early; fn must not depend on anything the caller cleans up
// after Run returns.
func (s *EngineSlots) Run(ctx context.Context, fn func() (string, error)) (string, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}

	done := make(chan engineResult, 1)
	go func() {
		defer s.sem.Release(1)
		text, err := fn()
		done <- engineResult{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		return res.text, res.err
	}
}
