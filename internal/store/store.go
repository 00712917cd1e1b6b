// Package store is the persistence gateway (spec §4.1). It is the only
// package that imports a database driver; every other package talks to it
// through the typed operations below and never sees query text.
package store

import (
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"

	// SQLite driver, registered under "sqlite3". Adopted from the
	// 2389-research-coven-gateway example, since the teacher's own
	// go-sql-driver/mysql doesn't fit spec §6's "relational file (embedded
	// store)" requirement.
	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the single *sqlx.DB connection to the embedded relational
// file. A busy-timeout baked into the DSN lets concurrent transactions
// queue instead of failing immediately (spec §5 "shared-resource policy").
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if necessary) the SQLite file at path and ensures
// the schema described in spec §6 exists.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, wrapErr(KindStoreError, "opening store", err)
	}
	// A single physical file behind database/sql's pool; serialize writers
	// the way the teacher's adapters assume a single-connection backend.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	log.Printf("store: opened %s", path)
	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on any error — the "all-or-nothing" discipline spec §3 invariant 7
// requires for every multi-table mutation.
func (s *Store) withTx(fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return wrapErr(KindStoreError, "begin transaction", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		if _, ok := err.(*Error); ok {
			return err
		}
		return wrapErr(KindStoreError, "transaction failed", err)
	}
	if err := tx.Commit(); err != nil {
		return wrapErr(KindStoreError, "commit transaction", err)
	}
	return nil
}
