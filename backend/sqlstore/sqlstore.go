// Package sqlstore implements a blobdb backend on a SQL database.
// It is shared by the sqlite3 and pg backends,
// which differ only in schema and driver.
//
// Containers are rows identified by a path built from their escaped names.
// Entries are rows keyed by container path and name,
// holding the entry's bytes in a single column.
// Writes are read-modify-write in a transaction.
package sqlstore

import (
	"context"
	"database/sql"
	stderrs "errors"
	"net/url"
	"sort"

	"github.com/bobg/sqlutil"
	"github.com/pkg/errors"

	"github.com/bobg/blobdb"
)

var (
	_ blobdb.Backend        = &Backend{}
	_ blobdb.QuotaEstimator = &Backend{}
)

// Backend is a SQL-based blobdb backend.
type Backend struct {
	db     *sql.DB
	scheme string
}

// New produces a new Backend using db for storage.
// It executes schema,
// which must create tables `containers` and `entries`
// (see the sqlite3 and pg packages)
// if they do not exist.
// Locators produced by the backend begin with scheme.
func New(ctx context.Context, db *sql.DB, schema, scheme string) (*Backend, error) {
	_, err := db.ExecContext(ctx, schema)
	if err != nil {
		return nil, errors.Wrap(err, "creating schema")
	}
	return &Backend{db: db, scheme: scheme}, nil
}

// DB is the underlying database handle.
func (b *Backend) DB() *sql.DB { return b.db }

// OpenRoot implements blobdb.Backend.
func (b *Backend) OpenRoot(context.Context) (blobdb.Container, error) {
	return &container{b: b, path: ""}, nil
}

// QuotaEstimate implements blobdb.QuotaEstimator.
// Usage is the total size of all entries.
// Capacity is unknown and reported as -1.
func (b *Backend) QuotaEstimate(ctx context.Context) (int64, int64, error) {
	const q = `SELECT COALESCE(SUM(LENGTH(data)), 0) FROM entries`

	var usage int64
	err := b.db.QueryRowContext(ctx, q).Scan(&usage)
	return usage, -1, errors.Wrap(err, "summing entry sizes")
}

type container struct {
	b    *Backend
	path string
}

func (c *container) child(name string) string {
	return c.path + "/" + url.PathEscape(name)
}

func (c *container) OpenChild(ctx context.Context, name string, create bool) (blobdb.Container, error) {
	path := c.child(name)

	if create {
		const q = `INSERT INTO containers (path) VALUES ($1) ON CONFLICT DO NOTHING`
		_, err := c.b.db.ExecContext(ctx, q, path)
		if err != nil {
			return nil, errors.Wrapf(err, "creating container %s", path)
		}
		return &container{b: c.b, path: path}, nil
	}

	const q = `SELECT 1 FROM containers WHERE path = $1`
	var one int
	err := c.b.db.QueryRowContext(ctx, q, path).Scan(&one)
	if stderrs.Is(err, sql.ErrNoRows) {
		return nil, blobdb.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "looking up container %s", path)
	}
	return &container{b: c.b, path: path}, nil
}

func (c *container) OpenEntry(ctx context.Context, name string, flags blobdb.EntryFlags) (blobdb.Entry, error) {
	e := &entry{b: c.b, container: c.path, name: name}

	if !flags.Create {
		const q = `SELECT 1 FROM entries WHERE container = $1 AND name = $2`
		var one int
		err := c.b.db.QueryRowContext(ctx, q, c.path, name).Scan(&one)
		if stderrs.Is(err, sql.ErrNoRows) {
			return nil, blobdb.ErrNotFound
		}
		if err != nil {
			return nil, errors.Wrapf(err, "looking up entry %s", name)
		}
		return e, nil
	}

	const q = `INSERT INTO entries (container, name, data) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
	res, err := c.b.db.ExecContext(ctx, q, c.path, name, []byte{})
	if err != nil {
		return nil, errors.Wrapf(err, "creating entry %s", name)
	}
	if flags.Exclusive {
		aff, err := res.RowsAffected()
		if err != nil {
			return nil, errors.Wrap(err, "counting affected rows")
		}
		if aff == 0 {
			return nil, blobdb.ErrAlreadyExists
		}
	}
	return e, nil
}

func (c *container) List(ctx context.Context, f func(string) error) error {
	const q = `SELECT name FROM entries WHERE container = $1`

	var names []string
	err := sqlutil.ForQueryRows(ctx, c.b.db, q, c.path, func(name string) {
		names = append(names, name)
	})
	if err != nil {
		return errors.Wrapf(err, "listing entries in %s", c.path)
	}

	// Collation differs between databases; this ordering does not.
	sort.Strings(names)

	for _, name := range names {
		if err := f(name); err != nil {
			return err
		}
	}
	return nil
}

func (c *container) RemoveRecursively(ctx context.Context) error {
	prefix := c.path + "/"

	return c.b.tx(ctx, func(tx *sql.Tx) error {
		const q1 = `DELETE FROM entries WHERE container = $1 OR SUBSTR(container, 1, $2) = $3`
		_, err := tx.ExecContext(ctx, q1, c.path, len(prefix), prefix)
		if err != nil {
			return errors.Wrapf(err, "deleting entries beneath %s", c.path)
		}

		const q2 = `DELETE FROM containers WHERE path = $1 OR SUBSTR(path, 1, $2) = $3`
		_, err = tx.ExecContext(ctx, q2, c.path, len(prefix), prefix)
		return errors.Wrapf(err, "deleting containers beneath %s", c.path)
	})
}

func (b *Backend) tx(ctx context.Context, f func(*sql.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	if err = f(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

type entry struct {
	b         *Backend
	container string
	name      string
}

func (e *entry) Name() string { return e.name }

func (e *entry) OpenWriter(context.Context) (blobdb.Writer, error) {
	return &writer{e: e}, nil
}

// ReadContent produces a copy of the entry's bytes;
// this backend has no live views.
func (e *entry) ReadContent(ctx context.Context) (blobdb.Blob, error) {
	const q = `SELECT data FROM entries WHERE container = $1 AND name = $2`

	var data []byte
	err := e.b.db.QueryRowContext(ctx, q, e.container, e.name).Scan(&data)
	if stderrs.Is(err, sql.ErrNoRows) {
		return nil, blobdb.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading entry %s", e.name)
	}
	return blobdb.Bytes(data), nil
}

func (e *entry) Remove(ctx context.Context) error {
	const q = `DELETE FROM entries WHERE container = $1 AND name = $2`

	res, err := e.b.db.ExecContext(ctx, q, e.container, e.name)
	if err != nil {
		return errors.Wrapf(err, "deleting entry %s", e.name)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows")
	}
	if aff == 0 {
		return blobdb.ErrNotFound
	}
	return nil
}

func (e *entry) MoveTo(ctx context.Context, dst blobdb.Container, newName string) error {
	dc, ok := dst.(*container)
	if !ok {
		return errors.Errorf("cannot move into a %T", dst)
	}
	if dc.path == e.container && newName == e.name {
		return nil
	}

	err := e.b.tx(ctx, func(tx *sql.Tx) error {
		const q1 = `DELETE FROM entries WHERE container = $1 AND name = $2`
		_, err := tx.ExecContext(ctx, q1, dc.path, newName)
		if err != nil {
			return errors.Wrapf(err, "clearing destination %s", newName)
		}

		const q2 = `UPDATE entries SET container = $1, name = $2 WHERE container = $3 AND name = $4`
		res, err := tx.ExecContext(ctx, q2, dc.path, newName, e.container, e.name)
		if err != nil {
			return errors.Wrapf(err, "renaming entry %s", e.name)
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "counting affected rows")
		}
		if aff == 0 {
			return blobdb.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.container, e.name = dc.path, newName
	return nil
}

func (e *entry) Locator() string {
	return e.b.scheme + ":" + e.container + "/" + url.PathEscape(e.name)
}

type writer struct {
	e   *entry
	pos int64
}

func (w *writer) Seek(pos int64)  { w.pos = pos }
func (w *writer) Position() int64 { return w.pos }

func (w *writer) Length(ctx context.Context) (int64, error) {
	const q = `SELECT LENGTH(data) FROM entries WHERE container = $1 AND name = $2`

	var n sql.NullInt64
	err := w.e.b.db.QueryRowContext(ctx, q, w.e.container, w.e.name).Scan(&n)
	if stderrs.Is(err, sql.ErrNoRows) {
		return 0, blobdb.ErrNotFound
	}
	return n.Int64, errors.Wrapf(err, "getting length of %s", w.e.name)
}

func (w *writer) Write(ctx context.Context, p []byte) error {
	end := w.pos + int64(len(p))
	err := w.update(ctx, func(data []byte) []byte {
		if int64(len(data)) < end {
			data = append(data, make([]byte, end-int64(len(data)))...)
		}
		copy(data[w.pos:], p)
		return data
	})
	if err != nil {
		return err
	}
	w.pos = end
	return nil
}

func (w *writer) Truncate(ctx context.Context, size int64) error {
	return w.update(ctx, func(data []byte) []byte {
		if int64(len(data)) < size {
			return append(data, make([]byte, size-int64(len(data)))...)
		}
		return data[:size]
	})
}

func (w *writer) update(ctx context.Context, f func([]byte) []byte) error {
	return w.e.b.tx(ctx, func(tx *sql.Tx) error {
		const q1 = `SELECT data FROM entries WHERE container = $1 AND name = $2`

		var data []byte
		err := tx.QueryRowContext(ctx, q1, w.e.container, w.e.name).Scan(&data)
		if stderrs.Is(err, sql.ErrNoRows) {
			return blobdb.ErrNotFound
		}
		if err != nil {
			return errors.Wrapf(err, "reading entry %s", w.e.name)
		}

		data = f(data)
		if data == nil {
			data = []byte{}
		}

		const q2 = `UPDATE entries SET data = $1 WHERE container = $2 AND name = $3`
		_, err = tx.ExecContext(ctx, q2, data, w.e.container, w.e.name)
		return errors.Wrapf(err, "updating entry %s", w.e.name)
	})
}
