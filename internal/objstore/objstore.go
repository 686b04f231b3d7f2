// Package objstore emulates the blobdb container hierarchy
// on a flat object store such as Google Cloud Storage or S3.
//
// A container with key prefix P has a marker object P+".keep",
// child containers under P+"c/<name>/",
// and entries at P+"e/<name>",
// with names path-escaped.
// Objects are immutable,
// so writers rewrite the whole object on every Write and Truncate.
package objstore

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/blobdb"
)

// Client is the small set of object operations the emulation needs.
// Missing objects must be reported with an error satisfying errors.Is(err, blobdb.ErrNotFound).
type Client interface {
	// Get reads a whole object.
	Get(ctx context.Context, key string) ([]byte, error)

	// Size reports an object's size.
	Size(ctx context.Context, key string) (int64, error)

	// Put writes a whole object.
	// If ifAbsent is true and the object exists,
	// the error must satisfy errors.Is(err, blobdb.ErrAlreadyExists).
	Put(ctx context.Context, key string, data []byte, ifAbsent bool) error

	Delete(ctx context.Context, key string) error

	Copy(ctx context.Context, src, dst string) error

	// List calls f for every object key beginning with prefix,
	// in lexicographic order.
	List(ctx context.Context, prefix string, f func(key string) error) error

	// URL produces a locator for the object with the given key.
	URL(key string) string
}

// Backend is a blobdb.Backend built on a Client.
type Backend struct {
	c      Client
	prefix string

	// Concurrency is the number of objects deleted at once by RemoveRecursively.
	Concurrency int
}

var _ blobdb.Backend = &Backend{}

// New produces a Backend storing objects under prefix in c.
func New(c Client, prefix string) *Backend {
	return &Backend{c: c, prefix: prefix, Concurrency: 16}
}

const (
	markerName = ".keep"
	childInfix = "c/"
	entryInfix = "e/"
)

// OpenRoot implements blobdb.Backend.
func (b *Backend) OpenRoot(context.Context) (blobdb.Container, error) {
	return &container{b: b, prefix: b.prefix}, nil
}

type container struct {
	b      *Backend
	prefix string
}

func (c *container) OpenChild(ctx context.Context, name string, create bool) (blobdb.Container, error) {
	prefix := c.prefix + childInfix + url.PathEscape(name) + "/"
	marker := prefix + markerName

	_, err := c.b.c.Size(ctx, marker)
	switch {
	case err == nil:
	case !errors.Is(err, blobdb.ErrNotFound):
		return nil, errors.Wrapf(err, "checking %s", marker)
	case !create:
		return nil, blobdb.ErrNotFound
	default:
		err = c.b.c.Put(ctx, marker, nil, true)
		if err != nil && !errors.Is(err, blobdb.ErrAlreadyExists) {
			return nil, errors.Wrapf(err, "creating %s", marker)
		}
	}
	return &container{b: c.b, prefix: prefix}, nil
}

func (c *container) entryKey(name string) string {
	return c.prefix + entryInfix + url.PathEscape(name)
}

func (c *container) OpenEntry(ctx context.Context, name string, flags blobdb.EntryFlags) (blobdb.Entry, error) {
	key := c.entryKey(name)
	e := &entry{b: c.b, name: name, key: key}

	if flags.Create && flags.Exclusive {
		err := c.b.c.Put(ctx, key, nil, true)
		if err != nil {
			return nil, errors.Wrapf(err, "creating %s", key)
		}
		return e, nil
	}

	_, err := c.b.c.Size(ctx, key)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, blobdb.ErrNotFound) {
		return nil, errors.Wrapf(err, "checking %s", key)
	}
	if !flags.Create {
		return nil, blobdb.ErrNotFound
	}
	err = c.b.c.Put(ctx, key, nil, true)
	if err != nil && !errors.Is(err, blobdb.ErrAlreadyExists) {
		return nil, errors.Wrapf(err, "creating %s", key)
	}
	return e, nil
}

// List reports entry names in order of the unescaped name,
// which is not the order of the object keys.
func (c *container) List(ctx context.Context, f func(string) error) error {
	prefix := c.prefix + entryInfix

	var names []string
	err := c.b.c.List(ctx, prefix, func(key string) error {
		rest := strings.TrimPrefix(key, prefix)
		if strings.Contains(rest, "/") {
			return nil
		}
		name, err := url.PathUnescape(rest)
		if err != nil {
			return nil
		}
		names = append(names, name)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "listing %s", prefix)
	}

	sort.Strings(names)
	for _, name := range names {
		if err := f(name); err != nil {
			return err
		}
	}
	return nil
}

// RemoveRecursively deletes every object under the container's prefix,
// several at a time.
func (c *container) RemoveRecursively(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if c.b.Concurrency > 0 {
		g.SetLimit(c.b.Concurrency)
	}

	err := c.b.c.List(gctx, c.prefix, func(key string) error {
		g.Go(func() error {
			err := c.b.c.Delete(gctx, key)
			if errors.Is(err, blobdb.ErrNotFound) {
				return nil
			}
			return errors.Wrapf(err, "deleting %s", key)
		})
		return nil
	})
	if werr := g.Wait(); err == nil {
		err = werr
	}
	return errors.Wrapf(err, "removing %s", c.prefix)
}

type entry struct {
	b    *Backend
	name string
	key  string
}

func (e *entry) Name() string { return e.name }

func (e *entry) OpenWriter(context.Context) (blobdb.Writer, error) {
	return &writer{e: e}, nil
}

// ReadContent fetches the whole object;
// objects are immutable, so the result is never live.
func (e *entry) ReadContent(ctx context.Context) (blobdb.Blob, error) {
	data, err := e.b.c.Get(ctx, e.key)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", e.key)
	}
	return blobdb.Bytes(data), nil
}

func (e *entry) Remove(ctx context.Context) error {
	return errors.Wrapf(e.b.c.Delete(ctx, e.key), "deleting %s", e.key)
}

// MoveTo copies the object and then deletes the source.
// The move is not atomic:
// a failure between the two steps leaves both objects in place.
func (e *entry) MoveTo(ctx context.Context, dst blobdb.Container, newName string) error {
	dc, ok := dst.(*container)
	if !ok || dc.b != e.b {
		return errors.Errorf("cannot move into a %T", dst)
	}
	newKey := dc.entryKey(newName)
	if newKey == e.key {
		return nil
	}
	err := e.b.c.Copy(ctx, e.key, newKey)
	if err != nil {
		return errors.Wrapf(err, "copying %s to %s", e.key, newKey)
	}
	err = e.b.c.Delete(ctx, e.key)
	if err != nil {
		return errors.Wrapf(err, "deleting %s", e.key)
	}
	e.name, e.key = newName, newKey
	return nil
}

func (e *entry) Locator() string {
	return e.b.c.URL(e.key)
}

type writer struct {
	e   *entry
	pos int64
}

func (w *writer) Seek(pos int64)  { w.pos = pos }
func (w *writer) Position() int64 { return w.pos }

func (w *writer) Length(ctx context.Context) (int64, error) {
	n, err := w.e.b.c.Size(ctx, w.e.key)
	return n, errors.Wrapf(err, "sizing %s", w.e.key)
}

func (w *writer) Write(ctx context.Context, p []byte) error {
	data, err := w.e.b.c.Get(ctx, w.e.key)
	if err != nil {
		return errors.Wrapf(err, "reading %s", w.e.key)
	}
	end := w.pos + int64(len(p))
	if int64(len(data)) < end {
		data = append(data, make([]byte, end-int64(len(data)))...)
	}
	copy(data[w.pos:], p)

	err = w.e.b.c.Put(ctx, w.e.key, data, false)
	if err != nil {
		return errors.Wrapf(err, "writing %s", w.e.key)
	}
	w.pos = end
	return nil
}

func (w *writer) Truncate(ctx context.Context, size int64) error {
	data, err := w.e.b.c.Get(ctx, w.e.key)
	if err != nil {
		return errors.Wrapf(err, "reading %s", w.e.key)
	}
	if int64(len(data)) < size {
		data = append(data, make([]byte, size-int64(len(data)))...)
	} else {
		data = data[:size]
	}
	err = w.e.b.c.Put(ctx, w.e.key, data, false)
	return errors.Wrapf(err, "writing %s", w.e.key)
}
