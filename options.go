package blobdb

import "github.com/pkg/errors"

// Options is the caller-facing record accepted by Store operations.
// Fields that do not apply to an operation are ignored.
type Options struct {
	// Name is the entry name.
	// A non-empty name passed positionally takes precedence.
	Name string

	// Offset is where a write begins.
	Offset int64

	// Append positions a write at the end of the entry.
	// It takes precedence over Offset.
	Append bool

	// Truncate cuts the entry back to the end of a write once the write completes.
	Truncate bool
}

// Intent describes where a write to an entry begins
// and whether the entry is shortened afterward.
type Intent struct {
	Name     string
	Offset   int64
	Append   bool
	Truncate bool
}

func entryName(name string, opts *Options) (string, error) {
	if name == "" && opts != nil {
		name = opts.Name
	}
	if name == "" {
		return "", errors.Wrap(ErrInvalidArgument, "no entry name")
	}
	return name, nil
}

func intentFor(name string, opts *Options) (Intent, error) {
	name, err := entryName(name, opts)
	if err != nil {
		return Intent{}, err
	}
	in := Intent{Name: name}
	if opts != nil {
		in.Offset = opts.Offset
		in.Append = opts.Append
		in.Truncate = opts.Truncate
	}
	if in.Offset < 0 {
		return Intent{}, errors.Wrapf(ErrInvalidArgument, "negative offset %d", in.Offset)
	}
	return in, nil
}
