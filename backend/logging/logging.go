// Package logging implements a blobdb backend that delegates everything to a nested backend,
// logging operations as they happen.
package logging

import (
	"context"
	stderrs "errors"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/bobg/blobdb"
	"github.com/bobg/blobdb/backend"
)

var (
	_ blobdb.Backend        = &Backend{}
	_ blobdb.QuotaEstimator = &Backend{}
)

// Backend logs each operation on a nested backend.
// Successful operations are logged at debug level,
// failures at error level,
// except that a missing entry or container is logged at debug level too.
type Backend struct {
	b      blobdb.Backend
	logger *slog.Logger
}

// New produces a new Backend logging operations on b to logger.
// A nil logger means slog.Default().
func New(b blobdb.Backend, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{b: b, logger: logger}
}

func (b *Backend) log(ctx context.Context, err error, msg string, args ...any) {
	if err != nil && !errors.Is(err, blobdb.ErrNotFound) {
		b.logger.ErrorContext(ctx, msg, append(args, "err", err)...)
		return
	}
	if err != nil {
		args = append(args, "err", err)
	}
	b.logger.DebugContext(ctx, msg, args...)
}

// OpenRoot implements blobdb.Backend.
func (b *Backend) OpenRoot(ctx context.Context) (blobdb.Container, error) {
	root, err := b.b.OpenRoot(ctx)
	b.log(ctx, err, "OpenRoot")
	if err != nil {
		return nil, err
	}
	return &container{b: b, c: root, path: "/"}, nil
}

// QuotaEstimate implements blobdb.QuotaEstimator by asking the nested backend.
func (b *Backend) QuotaEstimate(ctx context.Context) (int64, int64, error) {
	u, err := blobdb.Quota(ctx, b.b)
	b.log(ctx, err, "QuotaEstimate", "usage", u.Usage, "quota", u.Quota)
	if err != nil {
		return 0, 0, err
	}
	if u == blobdb.Unknown {
		return 0, 0, stderrs.ErrUnsupported
	}
	return u.Usage, u.Quota, nil
}

type container struct {
	b    *Backend
	c    blobdb.Container
	path string
}

func (c *container) OpenChild(ctx context.Context, name string, create bool) (blobdb.Container, error) {
	child, err := c.c.OpenChild(ctx, name, create)
	c.b.log(ctx, err, "OpenChild", "container", c.path, "name", name, "create", create)
	if err != nil {
		return nil, err
	}
	return &container{b: c.b, c: child, path: c.path + name + "/"}, nil
}

func (c *container) OpenEntry(ctx context.Context, name string, flags blobdb.EntryFlags) (blobdb.Entry, error) {
	e, err := c.c.OpenEntry(ctx, name, flags)
	c.b.log(ctx, err, "OpenEntry", "container", c.path, "name", name, "create", flags.Create, "exclusive", flags.Exclusive)
	if err != nil {
		return nil, err
	}
	return &entry{b: c.b, e: e, path: c.path + name}, nil
}

func (c *container) List(ctx context.Context, f func(string) error) error {
	var n int
	err := c.c.List(ctx, func(name string) error {
		n++
		return f(name)
	})
	c.b.log(ctx, err, "List", "container", c.path, "count", n)
	return err
}

func (c *container) RemoveRecursively(ctx context.Context) error {
	err := c.c.RemoveRecursively(ctx)
	c.b.log(ctx, err, "RemoveRecursively", "container", c.path)
	return err
}

type entry struct {
	b    *Backend
	e    blobdb.Entry
	path string
}

func (e *entry) Name() string { return e.e.Name() }

func (e *entry) OpenWriter(ctx context.Context) (blobdb.Writer, error) {
	w, err := e.e.OpenWriter(ctx)
	e.b.log(ctx, err, "OpenWriter", "entry", e.path)
	if err != nil {
		return nil, err
	}
	return &writer{Writer: w, e: e}, nil
}

func (e *entry) ReadContent(ctx context.Context) (blobdb.Blob, error) {
	blob, err := e.e.ReadContent(ctx)
	var size int64
	if err == nil {
		size = blob.Size()
	}
	e.b.log(ctx, err, "ReadContent", "entry", e.path, "size", size)
	return blob, err
}

func (e *entry) Remove(ctx context.Context) error {
	err := e.e.Remove(ctx)
	e.b.log(ctx, err, "Remove", "entry", e.path)
	return err
}

func (e *entry) MoveTo(ctx context.Context, dst blobdb.Container, newName string) error {
	dc, ok := dst.(*container)
	if !ok {
		return errors.Errorf("cannot move into a %T", dst)
	}
	err := e.e.MoveTo(ctx, dc.c, newName)
	e.b.log(ctx, err, "MoveTo", "entry", e.path, "dst", dc.path+newName)
	if err == nil {
		e.path = dc.path + newName
	}
	return err
}

func (e *entry) Locator() string { return e.e.Locator() }

type writer struct {
	blobdb.Writer
	e *entry
}

func (w *writer) Write(ctx context.Context, p []byte) error {
	pos := w.Position()
	err := w.Writer.Write(ctx, p)
	w.e.b.log(ctx, err, "Write", "entry", w.e.path, "pos", pos, "len", len(p))
	return err
}

func (w *writer) Truncate(ctx context.Context, size int64) error {
	err := w.Writer.Truncate(ctx, size)
	w.e.b.log(ctx, err, "Truncate", "entry", w.e.path, "size", size)
	return err
}

func init() {
	backend.Register("logging", func(ctx context.Context, conf map[string]interface{}) (blobdb.Backend, error) {
		nested, err := backend.Nested(ctx, conf)
		if err != nil {
			return nil, err
		}
		return New(nested, nil), nil
	})
}
