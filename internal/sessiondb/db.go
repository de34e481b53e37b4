// Package sessiondb persists sessions, branches, messages, environment
// grants, shell jobs, prompts, MCP configs, and provider credentials in
// an embedded SQLite database with full-text search over message text.
//
// All writes go through a single serialized connection (see the C2
// entry in DESIGN.md): SQLite allows only one writer at a time,
// and serializing in Go avoids `SQLITE_BUSY` retries under contention.
// Reads use a separate pooled connection since they never block on the
// writer's transaction.
package sessiondb

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/agentserver/agentserver/internal/apierror"
)

// DB wraps a session database: one write connection serialized behind
// a mutex, and a pooled set of read-only connections.
type DB struct {
	write   *sql.DB
	read    *sql.DB
	writeMu sync.Mutex
}

// Open opens (creating if necessary) the SQLite database at path and
// applies the schema.
func Open(path string) (*DB, error) {
	writeDSN := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	write, err := sql.Open("sqlite", writeDSN)
	if err != nil {
		return nil, fmt.Errorf("open write connection: %w", err)
	}
	write.SetMaxOpenConns(1)

	readDSN := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&mode=ro&_pragma=foreign_keys(1)"
	read, err := sql.Open("sqlite", readDSN)
	if err != nil {
		write.Close()
		return nil, fmt.Errorf("open read pool: %w", err)
	}
	read.SetMaxOpenConns(4)

	db := &DB{write: write, read: read}
	if err := db.migrate(); err != nil {
		write.Close()
		read.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) migrate() error {
	_, err := db.write.Exec(schema)
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases both connections.
func (db *DB) Close() error {
	werr := db.write.Close()
	rerr := db.read.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// withWriteTx serializes f behind the single write connection, running
// it inside a transaction that commits on success and rolls back on
// error or panic.
func (db *DB) withWriteTx(ctx context.Context, f func(tx *sql.Tx) error) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.write.BeginTx(ctx, nil)
	if err != nil {
		return apierror.Wrap(apierror.KindInternal, "begin transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if err := f(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apierror.Wrap(apierror.KindInternal, "commit transaction", err)
	}
	committed = true
	return nil
}

func isNoRows(err error) bool {
	return err == sql.ErrNoRows
}
