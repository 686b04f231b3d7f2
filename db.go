package blobdb

import (
	"context"

	"github.com/pkg/errors"
)

// DB is a named database in a Backend.
// Its container, and the container of each store requested from it,
// are opened (and created if necessary) on first use
// and reused afterward.
type DB struct {
	b    Backend
	name string

	dbh    handleCache // key: db name
	stores handleCache // key: store name
}

// New produces a DB named name in backend b.
// No backend calls are made until the DB is used.
func New(b Backend, name string) *DB {
	return &DB{b: b, name: name}
}

// Name is the database name.
func (db *DB) Name() string { return db.name }

// Store produces a handle on the named store in db.
func (db *DB) Store(name string, opts ...StoreOption) *Store {
	s := &Store{db: db, name: name}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open is shorthand for New(b, dbName).Store(storeName, opts...).
func Open(b Backend, dbName, storeName string, opts ...StoreOption) *Store {
	return New(b, dbName).Store(storeName, opts...)
}

func (db *DB) resolveDatabase(ctx context.Context) (Container, error) {
	return db.dbh.resolve(ctx, db.name, func(ctx context.Context) (Container, error) {
		root, err := db.b.OpenRoot(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "opening root")
		}
		h, err := root.OpenChild(ctx, db.name, true)
		return h, errors.Wrapf(err, "opening database %s", db.name)
	})
}

func (db *DB) resolveStore(ctx context.Context, name string) (Container, error) {
	return db.stores.resolve(ctx, name, func(ctx context.Context) (Container, error) {
		dbh, err := db.resolveDatabase(ctx)
		if err != nil {
			return nil, err
		}
		h, err := dbh.OpenChild(ctx, name, true)
		return h, errors.Wrapf(err, "opening store %s in database %s", name, db.name)
	})
}

// DeleteEntireDB removes the database and every store and entry beneath it.
// Later use of db or its stores creates the database afresh.
func (db *DB) DeleteEntireDB(ctx context.Context) error {
	dbh, err := db.resolveDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.stores.reset()
	defer db.dbh.reset()

	err = dbh.RemoveRecursively(ctx)
	return errors.Wrapf(err, "removing database %s", db.name)
}
