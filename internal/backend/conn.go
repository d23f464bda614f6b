// Package backend wraps a single database/sql connection as the unit of
// work borrowed from a connection-hash pool (internal/connpool) or handed
// out of an XA backend session (internal/xapool). It is the Go analogue
// of a JDBC Connection: every
// borrowed Conn is exactly one physical backend connection, never shared
// across concurrent callers.
package backend

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/ojp-io/ojp/internal/db"
)

// Conn is a borrowed backend connection. It implements db.Executor directly
// so session and dispatch code can issue statements against it exactly
// as it would against a Tx.
type Conn struct {
	// Hash identifies which connpool.Manager hash this connection was
	// dialed for. Stored as a plain string to avoid an import cycle with
	// internal/connpool (which imports backend).
	Hash string
	// DriverFamily names the vendor driver family this connection was
	// opened with (e.g. "postgresql"), used by xareflect to pick a
	// matching XA datasource when the session is promoted to XA.
	DriverFamily string

	sc *sql.Conn
}

// NewConn wraps a *sql.Conn borrowed from a database/sql.DB pool.
func NewConn(hash, driverFamily string, sc *sql.Conn) *Conn {
	return &Conn{Hash: hash, DriverFamily: driverFamily, sc: sc}
}

// Raw exposes the underlying *sql.Conn for pool-internal use (health
// checks, Close, BeginTx) without leaking database/sql types into session
// or dispatch code.
func (c *Conn) Raw() *sql.Conn { return c.sc }

// Ping verifies the connection is alive. Used by the XA pool to validate
// an idle session before handing it back out on borrow.
func (c *Conn) Ping(ctx context.Context) error {
	return c.sc.PingContext(ctx)
}

// Close returns the underlying connection to its database/sql pool (or, for
// a connection pulled out via sql.Conn.Raw, marks it for discard).
func (c *Conn) Close() error {
	return c.sc.Close()
}

// Invalidate forces database/sql to discard rather than recycle the
// physical connection on the next Close, by surfacing driver.ErrBadConn
// from inside a Raw callback. Used when the caller has observed the
// backend connection is unhealthy (a failed ping, a class-08 sqlState)
// but still needs to hand it back through the normal release path.
func (c *Conn) Invalidate() error {
	return c.sc.Raw(func(any) error { return driver.ErrBadConn })
}

// Exec implements db.Executor.
func (c *Conn) Exec(ctx context.Context, q string, args ...any) (db.Result, error) {
	res, err := c.sc.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return sqlResult{res}, nil
}

// QueryRow implements db.Executor.
func (c *Conn) QueryRow(ctx context.Context, q string, args ...any) db.Row {
	return c.sc.QueryRowContext(ctx, q, args...)
}

// Query implements db.Executor.
func (c *Conn) Query(ctx context.Context, q string, args ...any) (db.Rows, error) {
	rows, err := c.sc.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

// BeginTx starts a local (non-XA) transaction on this connection, used
// via Session.BeginTx by the dispatcher's setSavepoint action.
func (c *Conn) BeginTx(ctx context.Context, opts db.TxOptions) (db.Tx, error) {
	sqlOpts := &sql.TxOptions{ReadOnly: opts.ReadOnly}
	if lvl, ok := isolationLevels[opts.IsolationLevel]; ok {
		sqlOpts.Isolation = lvl
	}
	tx, err := c.sc.BeginTx(ctx, sqlOpts)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &txWrapper{tx: tx}, nil
}

var isolationLevels = map[string]sql.IsolationLevel{
	"read uncommitted": sql.LevelReadUncommitted,
	"read committed":    sql.LevelReadCommitted,
	"repeatable read":   sql.LevelRepeatableRead,
	"serializable":      sql.LevelSerializable,
}
