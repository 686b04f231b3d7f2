// Package file implements a blobdb backend as a file hierarchy.
//
// Containers are directories and entries are regular files.
// Names are path-escaped,
// so any string may be used as a database, store, or entry name.
// Blobs read from this backend are live:
// opening one reads the file as it is at that moment.
package file

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"

	"github.com/bobg/flock"
	"github.com/pkg/errors"

	"github.com/bobg/blobdb"
	"github.com/bobg/blobdb/backend"
)

var (
	_ blobdb.Backend        = &Backend{}
	_ blobdb.QuotaEstimator = &Backend{}
)

// Backend is a file-based blobdb backend.
type Backend struct {
	root    string
	flocker flock.Locker
}

// New produces a new Backend storing data beneath root.
func New(root string) *Backend {
	return &Backend{root: root}
}

// OpenRoot implements blobdb.Backend.
func (b *Backend) OpenRoot(context.Context) (blobdb.Container, error) {
	err := os.MkdirAll(b.root, 0755)
	if err != nil {
		return nil, errors.Wrapf(err, "ensuring %s exists", b.root)
	}
	return &container{b: b, dir: b.root}, nil
}

func escape(name string) string {
	switch name {
	case ".":
		return "%2E"
	case "..":
		return "%2E%2E"
	}
	return url.PathEscape(name)
}

func unescape(name string) (string, error) {
	return url.PathUnescape(name)
}

func notExist(err error) error {
	if os.IsNotExist(err) {
		return blobdb.ErrNotFound
	}
	return err
}

type container struct {
	b   *Backend
	dir string
}

func (c *container) OpenChild(_ context.Context, name string, create bool) (blobdb.Container, error) {
	dir := filepath.Join(c.dir, escape(name))
	if create {
		err := os.MkdirAll(dir, 0755)
		if err != nil {
			return nil, errors.Wrapf(err, "creating %s", dir)
		}
		return &container{b: c.b, dir: dir}, nil
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrapf(notExist(err), "statting %s", dir)
	}
	if !info.IsDir() {
		return nil, errors.Wrapf(blobdb.ErrNotFound, "%s is not a directory", dir)
	}
	return &container{b: c.b, dir: dir}, nil
}

func (c *container) OpenEntry(_ context.Context, name string, flags blobdb.EntryFlags) (blobdb.Entry, error) {
	path := filepath.Join(c.dir, escape(name))
	e := &entry{b: c.b, name: name, path: path}

	if !flags.Create {
		info, err := os.Stat(path)
		if err != nil {
			return nil, errors.Wrapf(notExist(err), "statting %s", path)
		}
		if info.IsDir() {
			return nil, errors.Wrapf(blobdb.ErrNotFound, "%s is a directory", path)
		}
		return e, nil
	}

	mode := os.O_WRONLY | os.O_CREATE
	if flags.Exclusive {
		mode |= os.O_EXCL
	}
	f, err := os.OpenFile(path, mode, 0644)
	if os.IsExist(err) {
		return nil, blobdb.ErrAlreadyExists
	}
	if err != nil {
		return nil, errors.Wrapf(notExist(err), "creating %s", path)
	}
	return e, errors.Wrapf(f.Close(), "closing %s", path)
}

// List produces the names of the regular files in the directory,
// in lexicographic order.
func (c *container) List(ctx context.Context, f func(string) error) error {
	dirents, err := os.ReadDir(c.dir)
	if err != nil {
		return errors.Wrapf(notExist(err), "reading dir %s", c.dir)
	}

	names := make([]string, 0, len(dirents))
	for _, d := range dirents {
		if !d.Type().IsRegular() {
			continue
		}
		name, err := unescape(d.Name())
		if err != nil {
			continue
		}
		names = append(names, name)
	}
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
	return errors.Wrapf(os.RemoveAll(c.dir), "removing %s", c.dir)
}

type entry struct {
	b    *Backend
	name string
	path string
}

func (e *entry) Name() string { return e.name }

func (e *entry) OpenWriter(context.Context) (blobdb.Writer, error) {
	return &writer{e: e}, nil
}

func (e *entry) ReadContent(context.Context) (blobdb.Blob, error) {
	_, err := os.Stat(e.path)
	if err != nil {
		return nil, errors.Wrapf(notExist(err), "statting %s", e.path)
	}
	return &liveBlob{path: e.path}, nil
}

func (e *entry) Remove(context.Context) error {
	return errors.Wrapf(notExist(os.Remove(e.path)), "removing %s", e.path)
}

func (e *entry) MoveTo(_ context.Context, dst blobdb.Container, newName string) error {
	dc, ok := dst.(*container)
	if !ok {
		return errors.Errorf("cannot move into a %T", dst)
	}
	newPath := filepath.Join(dc.dir, escape(newName))
	err := os.Rename(e.path, newPath)
	if err != nil {
		return errors.Wrapf(notExist(err), "renaming %s to %s", e.path, newPath)
	}
	e.name, e.path = newName, newPath
	return nil
}

func (e *entry) Locator() string {
	abs, err := filepath.Abs(e.path)
	if err != nil {
		abs = e.path
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String()
}

// liveBlob reads the file anew each time it is opened.
type liveBlob struct {
	path string
}

func (l *liveBlob) Size() int64 {
	info, err := os.Stat(l.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func (l *liveBlob) Open() (io.ReadCloser, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, errors.Wrapf(notExist(err), "opening %s", l.path)
	}
	return f, nil
}

type writer struct {
	e   *entry
	pos int64
}

func (w *writer) Seek(pos int64)  { w.pos = pos }
func (w *writer) Position() int64 { return w.pos }

func (w *writer) Length(context.Context) (int64, error) {
	info, err := os.Stat(w.e.path)
	if err != nil {
		return 0, errors.Wrapf(notExist(err), "statting %s", w.e.path)
	}
	return info.Size(), nil
}

// Write holds an advisory lock on the file for the duration of the write.
func (w *writer) Write(_ context.Context, p []byte) error {
	return w.withLock(func() error {
		f, err := os.OpenFile(w.e.path, os.O_WRONLY, 0)
		if err != nil {
			return errors.Wrapf(notExist(err), "opening %s", w.e.path)
		}
		defer f.Close()

		_, err = f.WriteAt(p, w.pos)
		if err != nil {
			return errors.Wrapf(err, "writing to %s", w.e.path)
		}
		w.pos += int64(len(p))
		return errors.Wrapf(f.Close(), "closing %s", w.e.path)
	})
}

func (w *writer) Truncate(_ context.Context, size int64) error {
	return w.withLock(func() error {
		err := os.Truncate(w.e.path, size)
		return errors.Wrapf(notExist(err), "truncating %s", w.e.path)
	})
}

func (w *writer) withLock(f func() error) error {
	if _, err := os.Stat(w.e.path); err != nil {
		return errors.Wrapf(notExist(err), "statting %s", w.e.path)
	}
	err := w.e.b.flocker.Lock(w.e.path)
	if err != nil {
		return errors.Wrapf(err, "locking %s", w.e.path)
	}
	defer w.e.b.flocker.Unlock(w.e.path)

	return f()
}

func init() {
	backend.Register("file", func(_ context.Context, conf map[string]interface{}) (blobdb.Backend, error) {
		root, ok := conf["root"].(string)
		if !ok {
			return nil, errors.New(`missing "root" parameter`)
		}
		return New(root), nil
	})
}
