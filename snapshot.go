package blobdb

import (
	"context"

	"github.com/pkg/errors"
)

// snapshot reads an entry's content.
// Unless mutable is true,
// the live content is drained into an owned buffer
// so later changes to the entry cannot alter what the caller sees.
func snapshot(ctx context.Context, e Entry, mutable bool) (Blob, error) {
	live, err := e.ReadContent(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", e.Name())
	}
	if mutable {
		return live, nil
	}
	if b, ok := live.(Bytes); ok {
		// Backends may hand back their own slice.
		return append(Bytes(nil), b...), nil
	}
	b, err := ReadAll(live)
	return b, errors.Wrapf(err, "copying %s", e.Name())
}
