package blobdb

import (
	"context"
	"errors"
)

// Backend is the hierarchical storage capability a DB is built on.
// The root container holds one child container per database,
// each database container holds one child container per store,
// and each store container holds the entries.
type Backend interface {
	// OpenRoot produces the backend's root container.
	OpenRoot(context.Context) (Container, error)
}

// Container is a handle to a named container: the root, a database, or a store.
// Handles are reusable across operations.
type Container interface {
	// OpenChild opens the named child container.
	// If it does not exist and create is false,
	// the error is ErrNotFound.
	OpenChild(ctx context.Context, name string, create bool) (Container, error)

	// OpenEntry opens the named entry.
	// Without flags.Create a missing entry yields ErrNotFound.
	// With flags.Create and flags.Exclusive an existing entry yields ErrAlreadyExists.
	OpenEntry(ctx context.Context, name string, flags EntryFlags) (Entry, error)

	// List calls a function for each entry name in the container,
	// in lexicographic order.
	// Child containers are not reported.
	// If the callback returns an error,
	// List exits with that error.
	List(ctx context.Context, f func(name string) error) error

	// RemoveRecursively removes the container and everything beneath it.
	RemoveRecursively(context.Context) error
}

// EntryFlags tell Container.OpenEntry how to treat a missing or existing entry.
type EntryFlags struct {
	Create    bool
	Exclusive bool
}

// Entry is a handle to a named entry in a store container.
type Entry interface {
	Name() string

	// OpenWriter produces a sequential writer positioned at the start of the entry.
	OpenWriter(context.Context) (Writer, error)

	// ReadContent produces the entry's content.
	// Backends may return a live view.
	ReadContent(context.Context) (Blob, error)

	// Remove deletes the entry.
	Remove(context.Context) error

	// MoveTo renames the entry, possibly into a different container.
	MoveTo(ctx context.Context, dst Container, newName string) error

	// Locator produces a string addressing the entry,
	// such as a URL.
	Locator() string
}

// Writer is a positioned sequential writer on one entry.
// Each Write advances the position by the number of bytes written.
type Writer interface {
	Seek(pos int64)
	Position() int64

	// Length is the entry's current length.
	Length(context.Context) (int64, error)

	Write(context.Context, []byte) error

	// Truncate sets the entry's length to size.
	Truncate(ctx context.Context, size int64) error
}

// QuotaEstimator is an optional interface for a Backend
// that can report storage usage and capacity.
type QuotaEstimator interface {
	QuotaEstimate(context.Context) (usage, capacity int64, err error)
}

var (
	// ErrNotFound is the error for a missing entry or container.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is the error from an exclusive create of an existing entry.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidArgument is the error for a call from which no entry name can be derived.
	ErrInvalidArgument = errors.New("invalid argument")
)
