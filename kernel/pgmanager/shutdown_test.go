package pgmanager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShutdownerRunsHooksAndAggregatesErrors(t *testing.T) {
	s := NewShutdowner(time.Second, nil)

	var mu sync.Mutex
	var ran []int
	record := func(v int) {
		mu.Lock()
		ran = append(ran, v)
		mu.Unlock()
	}

	s.Register(func(context.Context) error {
		record(1)
		return nil
	})
	s.Register(func(context.Context) error {
		record(2)
		return errors.New("boom")
	})

	err := s.Shutdown(context.Background())
	assert.ErrorContains(t, err, "boom")
	assert.ElementsMatch(t, []int{1, 2}, ran)
}

func TestShutdownerTimesOut(t *testing.T) {
	s := NewShutdowner(10*time.Millisecond, nil)
	s.Register(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	err := s.Shutdown(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
