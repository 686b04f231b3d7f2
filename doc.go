// Package blobdb is a namespaced blob store.
//
// A database,
// identified by a name,
// contains one or more stores,
// and each store holds named entries:
// sequences of bytes that can be created,
// overwritten,
// appended to,
// truncated,
// renamed,
// listed,
// and deleted.
//
// The storage itself is supplied by a Backend,
// a hierarchy of containers and entries with positioned sequential writers.
// Backends for memory,
// the local filesystem,
// SQLite,
// Postgresql,
// Google Cloud Storage,
// and MinIO/S3
// live in subpackages of the backend package,
// along with decorators that add caching and logging.
//
// The database and store containers are opened
// (and created if need be)
// lazily,
// the first time they are needed,
// and exactly once no matter how many callers need them at the same time.
// A failed open is not remembered:
// the next caller tries again.
//
// Writes go through a cursor.
// SetData writes at an offset,
// or at the end of the entry when appending,
// and may cut the entry back to the end of what it just wrote.
// CreateData is the insert-only path:
// it fails with ErrAlreadyExists rather than overwrite anything.
// For producers that have their data in pieces,
// CreateWriteSink and CreateWriteStream write chunk by chunk.
//
// Some backends hand out live views of their entries,
// which change underfoot when the entry is written.
// By default GetData copies what it reads so that callers never see that happen.
// A store opened WithMutableBlob skips the copy.
//
// Absence is not an error for reads, existence checks, and deletes:
// GetData, HasData, DeleteData, and GetFileURL report a missing entry with a false boolean.
// Everything else that goes wrong is returned to the caller.
package blobdb
