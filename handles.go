package blobdb

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// handleCache memoizes container handles by key.
// Concurrent first requests for a key share a single call to the open function.
// A successful result is kept until reset;
// a failure is delivered to every waiter and not kept,
// so a later request tries again.
type handleCache struct {
	g singleflight.Group

	mu  sync.Mutex // protects m and gen
	m   map[string]Container
	gen uint64
}

func (c *handleCache) lookup(key string) (Container, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.m[key]
	return h, c.gen, ok
}

func (c *handleCache) resolve(ctx context.Context, key string, open func(context.Context) (Container, error)) (Container, error) {
	h, gen, ok := c.lookup(key)
	if ok {
		return h, nil
	}

	// The open call outlives any one waiter.
	octx := context.WithoutCancel(ctx)

	// Keying the flight by generation keeps callers arriving after a reset
	// from joining a resolution that started before it.
	flight := strconv.FormatUint(gen, 10) + "/" + key

	ch := c.g.DoChan(flight, func() (interface{}, error) {
		if h, _, ok := c.lookup(key); ok {
			return h, nil
		}
		h, err := open(octx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		defer c.mu.Unlock()

		if c.gen == gen {
			if c.m == nil {
				c.m = make(map[string]Container)
			}
			c.m[key] = h
		}
		return h, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()

	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Container), nil
	}
}

// reset discards every memoized handle.
// Resolutions already in flight deliver their result to their waiters
// but do not repopulate the cache.
func (c *handleCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.m = nil
	c.gen++
}
