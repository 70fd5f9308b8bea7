// Package lazy loads expensive values once, on first use.
package lazy

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Cell holds a value produced by a loader. Concurrent first callers share
// one load. A successful result is kept forever; a failed load is not
// cached, so the next Get tries again.
type Cell[T any] struct {
	load  func(context.Context) (T, error)
	group singleflight.Group
	val   atomic.Pointer[T]
}

// New returns a cell that calls load on demand.
func New[T any](load func(context.Context) (T, error)) *Cell[T] {
	return &Cell[T]{load: load}
}

// Get returns the loaded value, loading it if needed. A caller whose ctx
// ends while waiting gets ctx.Err(); the load itself keeps running for the
// other callers.
func (c *Cell[T]) Get(ctx context.Context) (T, error) {
	if v := c.val.Load(); v != nil {
		return *v, nil
	}
	ch := c.group.DoChan("load", func() (any, error) {
		if v := c.val.Load(); v != nil {
			return *v, nil
		}
		v, err := c.load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.val.Store(&v)
		return v, nil
	})
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// Peek returns the value if it has already been loaded.
func (c *Cell[T]) Peek() (T, bool) {
	if v := c.val.Load(); v != nil {
		return *v, true
	}
	var zero T
	return zero, false
}
