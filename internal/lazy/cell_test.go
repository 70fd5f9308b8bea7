package lazy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCell_LoadsOnceUnderConcurrency(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	c := New(func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "model", nil
	})

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Get(context.Background())
			assert.NoError(t, err)
			results[i] = v
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, "model", r)
	}
	v, ok := c.Peek()
	assert.True(t, ok)
	assert.Equal(t, "model", v)
}

func TestCell_FailureNotCached(t *testing.T) {
	var calls atomic.Int32
	c := New(func(context.Context) (int, error) {
		if calls.Add(1) == 1 {
			return 0, errors.New("download failed")
		}
		return 42, nil
	})

	_, err := c.Get(context.Background())
	require.Error(t, err)
	_, ok := c.Peek()
	assert.False(t, ok)

	v, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCell_CallerCancelDoesNotAbortLoad(t *testing.T) {
	release := make(chan struct{})
	c := New(func(ctx context.Context) (int, error) {
		<-release
		return 7, ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	v, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}
