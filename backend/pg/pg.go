// Package pg implements a blobdb backend on Postgresql.
package pg

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq" // register the postgres type for sql.Open
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
  data BYTEA,
  PRIMARY KEY (container, name)
);
`

// New produces a new sqlstore.Backend using db for storage.
func New(ctx context.Context, db *sql.DB) (*sqlstore.Backend, error) {
	return sqlstore.New(ctx, db, Schema, "postgres")
}

func init() {
	backend.Register("pg", func(ctx context.Context, conf map[string]interface{}) (blobdb.Backend, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		db, err := sql.Open("postgres", conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		return New(ctx, db)
	})
}
