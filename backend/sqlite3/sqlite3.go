// Package sqlite3 implements a blobdb backend on SQLite.
package sqlite3

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3" // register the sqlite3 type for sql.Open
	"github.com/pkg/errors"

	"github.com/bobg/blobdb"
	"github.com/bobg/blobdb/backend"
	"github.com/bobg/blobdb/backend/sqlstore"
)

// Schema is the SQL that New executes.
// It creates the `containers` and `entries` tables if they do not exist.
// (If they do exist, they must have the columns, constraints, and indexing described here.)
const Schema = `
CREATE TABLE IF NOT EXISTS containers (
  path TEXT PRIMARY KEY NOT NULL
);

CREATE TABLE IF NOT EXISTS entries (
  container TEXT NOT NULL,
  name TEXT NOT NULL,
  data BLOB,
  PRIMARY KEY (container, name)
);
`

// New produces a new sqlstore.Backend using db for storage.
func New(ctx context.Context, db *sql.DB) (*sqlstore.Backend, error) {
	return sqlstore.New(ctx, db, Schema, "sqlite3")
}

func init() {
	backend.Register("sqlite3", func(ctx context.Context, conf map[string]interface{}) (blobdb.Backend, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		db, err := sql.Open("sqlite3", conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		// SQLite allows one writer at a time.
		db.SetMaxOpenConns(1)
		return New(ctx, db)
	})
}
