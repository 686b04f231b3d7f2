package blobdb

import (
	"context"

	"github.com/pkg/errors"
)

// Store is a named collection of entries in a DB.
// It is safe for concurrent use,
// but concurrent writers to the same entry race at the backend's discretion.
type Store struct {
	db      *DB
	name    string
	mutable bool
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithMutableBlob makes GetData return the backend's live view of an entry
// rather than a copy.
// A live view may change when the entry is later written.
func WithMutableBlob() StoreOption {
	return func(s *Store) { s.mutable = true }
}

// Name is the store name.
func (s *Store) Name() string { return s.name }

// DB is the database containing s.
func (s *Store) DB() *DB { return s.db }

func (s *Store) handle(ctx context.Context) (Container, error) {
	return s.db.resolveStore(ctx, s.name)
}

// CreateData stores content under a new entry name.
// It fails with ErrAlreadyExists if the name is taken.
// The name comes from the name argument or, if that is empty, from opts.Name.
func (s *Store) CreateData(ctx context.Context, content Blob, name string, opts *Options) error {
	name, err := entryName(name, opts)
	if err != nil {
		return err
	}
	c, err := s.createCursor(ctx, name)
	if err != nil {
		return err
	}
	return c.writeBlob(ctx, content, false)
}

// SetData writes content into the named entry,
// creating the entry if necessary.
// The write begins at opts.Offset,
// or at the end of the entry if opts.Append is set.
// If opts.Truncate is set,
// anything in the entry beyond the end of the write is discarded.
func (s *Store) SetData(ctx context.Context, content Blob, name string, opts *Options) error {
	in, err := intentFor(name, opts)
	if err != nil {
		return err
	}
	return s.write(ctx, content, in)
}

// AppendData is SetData with opts.Append forced on.
func (s *Store) AppendData(ctx context.Context, content Blob, name string, opts *Options) error {
	in, err := intentFor(name, opts)
	if err != nil {
		return err
	}
	in.Append = true
	return s.write(ctx, content, in)
}

func (s *Store) write(ctx context.Context, content Blob, in Intent) error {
	c, err := s.openCursor(ctx, in)
	if err != nil {
		return err
	}
	return c.writeBlob(ctx, content, in.Truncate)
}

// lookup opens an existing entry.
// The boolean is false if the entry does not exist.
func (s *Store) lookup(ctx context.Context, name string) (Entry, bool, error) {
	sh, err := s.handle(ctx)
	if err != nil {
		return nil, false, err
	}
	e, err := sh.OpenEntry(ctx, name, EntryFlags{})
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "opening %s", name)
	}
	return e, true, nil
}

// GetData gets the content of the named entry.
// The boolean is false, and the error nil, if there is no such entry.
// Unless the store was created WithMutableBlob,
// the content is a copy unaffected by later writes.
func (s *Store) GetData(ctx context.Context, name string, opts *Options) (Blob, bool, error) {
	name, err := entryName(name, opts)
	if err != nil {
		return nil, false, err
	}
	e, ok, err := s.lookup(ctx, name)
	if err != nil || !ok {
		return nil, false, err
	}
	b, err := snapshot(ctx, e, s.mutable)
	if errors.Is(err, ErrNotFound) {
		// Removed between open and read.
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// HasData tells whether the named entry exists.
func (s *Store) HasData(ctx context.Context, name string, opts *Options) (bool, error) {
	name, err := entryName(name, opts)
	if err != nil {
		return false, err
	}
	_, ok, err := s.lookup(ctx, name)
	return ok, err
}

// DeleteData removes the named entry.
// The boolean is false, and the error nil, if there was no such entry.
func (s *Store) DeleteData(ctx context.Context, name string, opts *Options) (bool, error) {
	name, err := entryName(name, opts)
	if err != nil {
		return false, err
	}
	e, ok, err := s.lookup(ctx, name)
	if err != nil || !ok {
		return false, err
	}
	err = e.Remove(ctx)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "removing %s", name)
	}
	return true, nil
}

// DeleteAllData removes every entry in the store.
// The store itself remains usable.
func (s *Store) DeleteAllData(ctx context.Context) error {
	sh, err := s.handle(ctx)
	if err != nil {
		return err
	}

	var names []string
	err = sh.List(ctx, func(name string) error {
		names = append(names, name)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "listing store %s", s.name)
	}

	for _, name := range names {
		e, err := sh.OpenEntry(ctx, name, EntryFlags{})
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "opening %s", name)
		}
		err = e.Remove(ctx)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return errors.Wrapf(err, "removing %s", name)
		}
	}
	return nil
}

// DeleteEntireDB removes the database containing s,
// with all its stores and entries.
func (s *Store) DeleteEntireDB(ctx context.Context) error {
	return s.db.DeleteEntireDB(ctx)
}

// RenameData moves the entry oldName to newName within the store.
// It fails with ErrNotFound if there is no entry named oldName.
func (s *Store) RenameData(ctx context.Context, oldName, newName string) error {
	if oldName == "" || newName == "" {
		return errors.Wrap(ErrInvalidArgument, "rename needs two entry names")
	}
	sh, err := s.handle(ctx)
	if err != nil {
		return err
	}
	e, err := sh.OpenEntry(ctx, oldName, EntryFlags{})
	if err != nil {
		return errors.Wrapf(err, "opening %s", oldName)
	}
	err = e.MoveTo(ctx, sh, newName)
	return errors.Wrapf(err, "renaming %s to %s", oldName, newName)
}

// GetFileURL produces a locator for the named entry.
// The boolean is false, and the error nil, if there is no such entry.
func (s *Store) GetFileURL(ctx context.Context, name string, opts *Options) (string, bool, error) {
	name, err := entryName(name, opts)
	if err != nil {
		return "", false, err
	}
	e, ok, err := s.lookup(ctx, name)
	if err != nil || !ok {
		return "", false, err
	}
	return e.Locator(), true, nil
}

// ListData calls a function for each entry name in the store,
// in lexicographic order.
// If the callback returns an error,
// ListData exits with that error.
func (s *Store) ListData(ctx context.Context, f func(name string) error) error {
	sh, err := s.handle(ctx)
	if err != nil {
		return err
	}
	return sh.List(ctx, f)
}
