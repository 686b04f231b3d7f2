package blobdb

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// Blob is a length-bearing sequence of bytes.
// A Blob returned by a backend may be a live view of the entry it came from,
// in which case its size and contents track later changes to that entry.
type Blob interface {
	// Size is the number of bytes in the blob.
	Size() int64

	// Open produces a reader over the blob's bytes.
	Open() (io.ReadCloser, error)
}

// Bytes is a byte slice implementing Blob.
// It is the owned, point-in-time form of a blob.
type Bytes []byte

var _ Blob = Bytes(nil)

// Size implements Blob.
func (b Bytes) Size() int64 { return int64(len(b)) }

// Open implements Blob.
func (b Bytes) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

// ReadAll produces the bytes of a blob.
// If b is already Bytes it is returned as-is,
// otherwise b is drained into a newly allocated buffer.
func ReadAll(b Blob) (Bytes, error) {
	if bb, ok := b.(Bytes); ok {
		return bb, nil
	}

	r, err := b.Open()
	if err != nil {
		return nil, errors.Wrap(err, "opening blob")
	}
	defer r.Close()

	buf := bytes.NewBuffer(make([]byte, 0, b.Size()))
	_, err = io.Copy(buf, r)
	if err != nil {
		return nil, errors.Wrap(err, "reading blob")
	}
	return buf.Bytes(), nil
}
