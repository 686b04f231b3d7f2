// Package lru implements a blobdb backend that caches entry contents
// for a nested backend,
// discarding the least-recently-used ones when full.
package lru

import (
	"context"
	stderrs "errors"
	"net/url"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/bobg/blobdb"
	"github.com/bobg/blobdb/backend"
)

var (
	_ blobdb.Backend        = &Backend{}
	_ blobdb.QuotaEstimator = &Backend{}
)

// Backend caches the contents of up to a fixed number of entries.
// Writes pass through to the nested backend
// and evict the entry they touch.
// Blobs served from the cache are copies, never live views.
type Backend struct {
	c *lru.Cache // entry key -> blobdb.Bytes
	b blobdb.Backend

	mu  sync.Mutex
	gen uint64 // bumped by every invalidation
}

// New produces a new Backend backed by b and caching up to size entries.
func New(b blobdb.Backend, size int) (*Backend, error) {
	c, err := lru.New(size)
	return &Backend{b: b, c: c}, err
}

func (b *Backend) generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gen
}

func (b *Backend) invalidate(keys ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gen++
	for _, key := range keys {
		b.c.Remove(key)
	}
}

func (b *Backend) purge() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gen++
	b.c.Purge()
}

// fill caches data under key,
// unless something was invalidated since gen was read.
// A read that raced with a write must not repopulate the cache with what it saw.
func (b *Backend) fill(key string, gen uint64, data blobdb.Bytes) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gen != gen {
		return
	}
	b.c.Add(key, data)
}

// OpenRoot implements blobdb.Backend.
func (b *Backend) OpenRoot(ctx context.Context) (blobdb.Container, error) {
	root, err := b.b.OpenRoot(ctx)
	if err != nil {
		return nil, err
	}
	return &container{b: b, c: root, key: ""}, nil
}

// QuotaEstimate implements blobdb.QuotaEstimator by asking the nested backend.
func (b *Backend) QuotaEstimate(ctx context.Context) (int64, int64, error) {
	u, err := blobdb.Quota(ctx, b.b)
	if err != nil {
		return 0, 0, err
	}
	if u == blobdb.Unknown {
		return 0, 0, stderrs.ErrUnsupported
	}
	return u.Usage, u.Quota, nil
}

type container struct {
	b   *Backend
	c   blobdb.Container
	key string
}

func (c *container) OpenChild(ctx context.Context, name string, create bool) (blobdb.Container, error) {
	child, err := c.c.OpenChild(ctx, name, create)
	if err != nil {
		return nil, err
	}
	return &container{b: c.b, c: child, key: c.key + "/c/" + url.PathEscape(name)}, nil
}

func (c *container) entryKey(name string) string {
	return c.key + "/e/" + url.PathEscape(name)
}

func (c *container) OpenEntry(ctx context.Context, name string, flags blobdb.EntryFlags) (blobdb.Entry, error) {
	e, err := c.c.OpenEntry(ctx, name, flags)
	if err != nil {
		return nil, err
	}
	key := c.entryKey(name)
	if flags.Create {
		// A freshly created entry may have replaced one that was removed behind our back.
		c.b.invalidate(key)
	}
	return &entry{b: c.b, e: e, key: key}, nil
}

func (c *container) List(ctx context.Context, f func(string) error) error {
	return c.c.List(ctx, f)
}

// RemoveRecursively empties the whole cache,
// since any cached entry might lie beneath c.
func (c *container) RemoveRecursively(ctx context.Context) error {
	defer c.b.purge()
	return c.c.RemoveRecursively(ctx)
}

type entry struct {
	b   *Backend
	e   blobdb.Entry
	key string
}

func (e *entry) Name() string { return e.e.Name() }

func (e *entry) OpenWriter(ctx context.Context) (blobdb.Writer, error) {
	w, err := e.e.OpenWriter(ctx)
	if err != nil {
		return nil, err
	}
	return &writer{Writer: w, e: e}, nil
}

func (e *entry) ReadContent(ctx context.Context) (blobdb.Blob, error) {
	if got, ok := e.b.c.Get(e.key); ok {
		return append(blobdb.Bytes(nil), got.(blobdb.Bytes)...), nil
	}
	gen := e.b.generation()
	blob, err := e.e.ReadContent(ctx)
	if err != nil {
		return nil, err
	}
	b, err := blobdb.ReadAll(blob)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", e.e.Name())
	}
	e.b.fill(e.key, gen, append(blobdb.Bytes(nil), b...))
	return b, nil
}

func (e *entry) Remove(ctx context.Context) error {
	defer e.b.invalidate(e.key)
	return e.e.Remove(ctx)
}

func (e *entry) MoveTo(ctx context.Context, dst blobdb.Container, newName string) error {
	dc, ok := dst.(*container)
	if !ok {
		return errors.Errorf("cannot move into a %T", dst)
	}
	newKey := dc.entryKey(newName)
	defer e.b.invalidate(e.key, newKey)

	if err := e.e.MoveTo(ctx, dc.c, newName); err != nil {
		return err
	}
	e.key = newKey
	return nil
}

func (e *entry) Locator() string { return e.e.Locator() }

type writer struct {
	blobdb.Writer
	e *entry
}

func (w *writer) Write(ctx context.Context, p []byte) error {
	defer w.e.b.invalidate(w.e.key)
	return w.Writer.Write(ctx, p)
}

func (w *writer) Truncate(ctx context.Context, size int64) error {
	defer w.e.b.invalidate(w.e.key)
	return w.Writer.Truncate(ctx, size)
}

func init() {
	backend.Register("lru", func(ctx context.Context, conf map[string]interface{}) (blobdb.Backend, error) {
		size, ok, err := backend.Int(conf, "size")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.New(`missing "size" parameter`)
		}
		nested, err := backend.Nested(ctx, conf)
		if err != nil {
			return nil, err
		}
		return New(nested, int(size))
	})
}
