package blobdb

import (
	"context"

	"github.com/pkg/errors"
)

// cursor is a sequential writer positioned on one entry.
// Writes on a cursor must be serialized by the caller.
type cursor struct {
	name string
	w    Writer
}

// openCursor opens or creates the entry named in the intent
// and positions a writer on it.
// A nonzero offset is applied first;
// append then moves the writer to the end of the entry,
// overriding the offset.
func (s *Store) openCursor(ctx context.Context, in Intent) (*cursor, error) {
	sh, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}

	e, err := sh.OpenEntry(ctx, in.Name, EntryFlags{Create: true})
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", in.Name)
	}

	w, err := e.OpenWriter(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "opening writer on %s", in.Name)
	}

	if in.Offset != 0 {
		w.Seek(in.Offset)
	}
	if in.Append {
		n, err := w.Length(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "getting length of %s", in.Name)
		}
		w.Seek(n)
	}

	return &cursor{name: in.Name, w: w}, nil
}

// createCursor creates the named entry,
// failing with ErrAlreadyExists if it is already present,
// and positions a writer at its start.
func (s *Store) createCursor(ctx context.Context, name string) (*cursor, error) {
	sh, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}

	e, err := sh.OpenEntry(ctx, name, EntryFlags{Create: true, Exclusive: true})
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s", name)
	}

	w, err := e.OpenWriter(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "opening writer on %s", name)
	}
	return &cursor{name: name, w: w}, nil
}

// write writes b at the cursor's position and advances it.
// It returns once the backend has completed the write.
func (c *cursor) write(ctx context.Context, b []byte) error {
	pos := c.w.Position()
	err := c.w.Write(ctx, b)
	return errors.Wrapf(err, "writing %d bytes to %s at %d", len(b), c.name, pos)
}

// truncate cuts the entry back to the cursor's position,
// discarding anything beyond it.
func (c *cursor) truncate(ctx context.Context) error {
	pos := c.w.Position()
	err := c.w.Truncate(ctx, pos)
	return errors.Wrapf(err, "truncating %s to %d", c.name, pos)
}

// writeBlob writes content through the cursor,
// then truncates if asked.
// The write is complete only once the truncation is.
func (c *cursor) writeBlob(ctx context.Context, content Blob, truncate bool) error {
	b, err := ReadAll(content)
	if err != nil {
		return err
	}
	if err = c.write(ctx, b); err != nil {
		return err
	}
	if truncate {
		return c.truncate(ctx)
	}
	return nil
}
