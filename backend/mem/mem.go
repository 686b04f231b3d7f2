// Package mem implements an in-memory blobdb backend.
//
// Entry contents read from this backend are live:
// a Blob from ReadContent reflects whatever the entry holds
// at the moment the Blob is opened.
package mem

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/bobg/blobdb"
	"github.com/bobg/blobdb/backend"
)

var (
	_ blobdb.Backend        = &Backend{}
	_ blobdb.QuotaEstimator = &Backend{}
)

// ErrQuotaExceeded is the error for a write that would take the backend past its capacity.
var ErrQuotaExceeded = errors.New("quota exceeded")

// Backend is a memory-based blobdb backend.
type Backend struct {
	mu       sync.Mutex // protects everything reachable from root
	root     *dir
	used     int64
	capacity int64
}

type dir struct {
	name     string
	parent   *dir
	children map[string]*dir
	entries  map[string]*entry
	removed  bool
}

type entry struct {
	name string
	dir  *dir // nil once removed
	data []byte
}

// New produces a new Backend.
// If capacity is positive,
// writes that would take the total size of all entries beyond it fail with ErrQuotaExceeded.
func New(capacity int64) *Backend {
	return &Backend{root: newDir("", nil), capacity: capacity}
}

func newDir(name string, parent *dir) *dir {
	return &dir{
		name:     name,
		parent:   parent,
		children: make(map[string]*dir),
		entries:  make(map[string]*entry),
	}
}

// Caller must obtain a lock.
func (d *dir) path() string {
	if d.parent == nil {
		return "/"
	}
	return path.Join(d.parent.path(), d.name)
}

// OpenRoot implements blobdb.Backend.
func (b *Backend) OpenRoot(context.Context) (blobdb.Container, error) {
	return &container{b: b, d: b.root}, nil
}

// QuotaEstimate implements blobdb.QuotaEstimator.
// The capacity is -1 if none was given to New.
func (b *Backend) QuotaEstimate(context.Context) (int64, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.capacity <= 0 {
		return b.used, -1, nil
	}
	return b.used, b.capacity, nil
}

type container struct {
	b *Backend
	d *dir
}

func (c *container) OpenChild(_ context.Context, name string, create bool) (blobdb.Container, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	if c.d.removed {
		return nil, blobdb.ErrNotFound
	}
	child, ok := c.d.children[name]
	if !ok {
		if !create {
			return nil, blobdb.ErrNotFound
		}
		child = newDir(name, c.d)
		c.d.children[name] = child
	}
	return &container{b: c.b, d: child}, nil
}

func (c *container) OpenEntry(_ context.Context, name string, flags blobdb.EntryFlags) (blobdb.Entry, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	if c.d.removed {
		return nil, blobdb.ErrNotFound
	}
	e, ok := c.d.entries[name]
	switch {
	case ok && flags.Create && flags.Exclusive:
		return nil, blobdb.ErrAlreadyExists
	case !ok && !flags.Create:
		return nil, blobdb.ErrNotFound
	case !ok:
		e = &entry{name: name, dir: c.d}
		c.d.entries[name] = e
	}
	return &entryHandle{b: c.b, e: e}, nil
}

func (c *container) List(ctx context.Context, f func(string) error) error {
	c.b.mu.Lock()
	if c.d.removed {
		c.b.mu.Unlock()
		return blobdb.ErrNotFound
	}
	names := make([]string, 0, len(c.d.entries))
	for name := range c.d.entries {
		names = append(names, name)
	}
	c.b.mu.Unlock()

	sort.Strings(names)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f(name); err != nil {
			return err
		}
	}
	return nil
}

func (c *container) RemoveRecursively(context.Context) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	if c.d.removed {
		return blobdb.ErrNotFound
	}
	if c.d.parent != nil {
		delete(c.d.parent.children, c.d.name)
	}
	c.b.removeDir(c.d)
	if c.d == c.b.root {
		c.b.root = newDir("", nil)
	}
	return nil
}

// Caller must obtain a lock.
func (b *Backend) removeDir(d *dir) {
	for _, child := range d.children {
		b.removeDir(child)
	}
	for _, e := range d.entries {
		b.used -= int64(len(e.data))
		e.dir = nil
	}
	d.children = nil
	d.entries = nil
	d.removed = true
}

type entryHandle struct {
	b *Backend
	e *entry
}

func (h *entryHandle) Name() string {
	h.b.mu.Lock()
	defer h.b.mu.Unlock()
	return h.e.name
}

func (h *entryHandle) OpenWriter(context.Context) (blobdb.Writer, error) {
	h.b.mu.Lock()
	defer h.b.mu.Unlock()

	if h.e.dir == nil {
		return nil, blobdb.ErrNotFound
	}
	return &writer{b: h.b, e: h.e}, nil
}

func (h *entryHandle) ReadContent(context.Context) (blobdb.Blob, error) {
	h.b.mu.Lock()
	defer h.b.mu.Unlock()

	if h.e.dir == nil {
		return nil, blobdb.ErrNotFound
	}
	return &liveBlob{b: h.b, e: h.e}, nil
}

func (h *entryHandle) Remove(context.Context) error {
	h.b.mu.Lock()
	defer h.b.mu.Unlock()

	if h.e.dir == nil {
		return blobdb.ErrNotFound
	}
	delete(h.e.dir.entries, h.e.name)
	h.b.used -= int64(len(h.e.data))
	h.e.dir = nil
	h.e.data = nil
	return nil
}

func (h *entryHandle) MoveTo(_ context.Context, dst blobdb.Container, newName string) error {
	dc, ok := dst.(*container)
	if !ok || dc.b != h.b {
		return errors.Errorf("cannot move into a %T", dst)
	}

	h.b.mu.Lock()
	defer h.b.mu.Unlock()

	if h.e.dir == nil || dc.d.removed {
		return blobdb.ErrNotFound
	}
	if h.e.dir == dc.d && h.e.name == newName {
		return nil
	}
	if old, ok := dc.d.entries[newName]; ok {
		h.b.used -= int64(len(old.data))
		old.dir = nil
	}
	delete(h.e.dir.entries, h.e.name)
	h.e.name = newName
	h.e.dir = dc.d
	dc.d.entries[newName] = h.e
	return nil
}

func (h *entryHandle) Locator() string {
	h.b.mu.Lock()
	defer h.b.mu.Unlock()

	if h.e.dir == nil {
		return "mem://" + h.e.name
	}
	return "mem://" + path.Join(h.e.dir.path(), h.e.name)
}

type liveBlob struct {
	b *Backend
	e *entry
}

func (l *liveBlob) Size() int64 {
	l.b.mu.Lock()
	defer l.b.mu.Unlock()
	return int64(len(l.e.data))
}

func (l *liveBlob) Open() (io.ReadCloser, error) {
	l.b.mu.Lock()
	defer l.b.mu.Unlock()

	if l.e.dir == nil {
		return nil, blobdb.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), l.e.data...))), nil
}

type writer struct {
	b   *Backend
	e   *entry
	pos int64
}

func (w *writer) Seek(pos int64)  { w.pos = pos }
func (w *writer) Position() int64 { return w.pos }

func (w *writer) Length(context.Context) (int64, error) {
	w.b.mu.Lock()
	defer w.b.mu.Unlock()

	if w.e.dir == nil {
		return 0, blobdb.ErrNotFound
	}
	return int64(len(w.e.data)), nil
}

func (w *writer) Write(_ context.Context, p []byte) error {
	w.b.mu.Lock()
	defer w.b.mu.Unlock()

	if w.e.dir == nil {
		return blobdb.ErrNotFound
	}
	end := w.pos + int64(len(p))
	if err := w.b.resize(w.e, end, false); err != nil {
		return err
	}
	copy(w.e.data[w.pos:], p)
	w.pos = end
	return nil
}

func (w *writer) Truncate(_ context.Context, size int64) error {
	w.b.mu.Lock()
	defer w.b.mu.Unlock()

	if w.e.dir == nil {
		return blobdb.ErrNotFound
	}
	return w.b.resize(w.e, size, true)
}

// resize grows e to at least size bytes, zero-filling,
// and if shrink is true also cuts it back to exactly size.
// Caller must obtain a lock.
func (b *Backend) resize(e *entry, size int64, shrink bool) error {
	cur := int64(len(e.data))
	switch {
	case size > cur:
		if b.capacity > 0 && b.used+size-cur > b.capacity {
			return ErrQuotaExceeded
		}
		e.data = append(e.data, make([]byte, size-cur)...)
	case size < cur && shrink:
		e.data = e.data[:size]
	default:
		return nil
	}
	b.used += int64(len(e.data)) - cur
	return nil
}

func init() {
	backend.Register("mem", func(_ context.Context, conf map[string]interface{}) (blobdb.Backend, error) {
		capacity, _, err := backend.Int(conf, "capacity")
		if err != nil {
			return nil, err
		}
		return New(capacity), nil
	})
}
