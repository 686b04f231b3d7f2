package blobdb

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// WriteSink accepts content in chunks and writes it sequentially to one entry.
// Each Write returns only once the backend has finished with the chunk;
// callers must not issue a Write before the previous one returns.
type WriteSink struct {
	c        *cursor
	truncate bool
	closed   bool
}

// CreateWriteSink opens a WriteSink on the named entry,
// creating the entry if necessary and positioning it per opts
// as SetData does.
//
// If opts.Truncate is set,
// the entry is truncated after every Write.
// Otherwise Close truncates it once,
// at the end of the last Write.
func (s *Store) CreateWriteSink(ctx context.Context, name string, opts *Options) (*WriteSink, error) {
	in, err := intentFor(name, opts)
	if err != nil {
		return nil, err
	}
	c, err := s.openCursor(ctx, in)
	if err != nil {
		return nil, err
	}
	return &WriteSink{c: c, truncate: in.Truncate}, nil
}

// Write writes a chunk at the sink's position.
func (w *WriteSink) Write(ctx context.Context, chunk Blob) error {
	if w.closed {
		return errors.Errorf("write to closed sink on %s", w.c.name)
	}
	return w.c.writeBlob(ctx, chunk, w.truncate)
}

// Close finishes the sink.
// Closing an already-closed sink does nothing.
func (w *WriteSink) Close(ctx context.Context) error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.truncate {
		return nil
	}
	return w.c.truncate(ctx)
}

// WriteStream adapts a WriteSink to io.WriteCloser.
// It uses the context it was created with for every operation.
type WriteStream struct {
	ctx  context.Context
	sink *WriteSink
}

var _ io.WriteCloser = (*WriteStream)(nil)

// CreateWriteStream is CreateWriteSink producing an io.WriteCloser.
func (s *Store) CreateWriteStream(ctx context.Context, name string, opts *Options) (*WriteStream, error) {
	sink, err := s.CreateWriteSink(ctx, name, opts)
	if err != nil {
		return nil, err
	}
	return &WriteStream{ctx: ctx, sink: sink}, nil
}

// Write implements io.Writer.
// The chunk is copied before it is handed to the backend.
func (w *WriteStream) Write(p []byte) (int, error) {
	if err := w.sink.Write(w.ctx, append(Bytes(nil), p...)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close implements io.Closer.
func (w *WriteStream) Close() error {
	return w.sink.Close(w.ctx)
}
