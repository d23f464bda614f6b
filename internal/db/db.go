// Package db defines the small query-execution interface shared by a
// directly-borrowed backend connection (internal/backend) and a pooled XA
// backend session (internal/xapool). Session and dispatch code talks to
// whichever concrete connection it currently owns through this interface,
// without caring whether it is inside or outside an XA branch.
package db

import (
	"context"
)

// Row represents a single row returned by a query.
type Row interface {
	Scan(dest ...any) error
}

// Rows represents a set of rows returned by a query.
type Rows interface {
	// Next advances to the next row, returning false when exhausted.
	Next() bool
	// Scan reads column values from the current row.
	Scan(dest ...any) error
	// Columns returns the result set's column names, in order.
	Columns() ([]string, error)
	// Err returns any error encountered during iteration.
	Err() error
	// Close releases the rows.
	Close()
}

// Result describes the outcome of an executed statement.
type Result interface {
	// RowsAffected returns the number of rows affected by the statement.
	RowsAffected() int64
}

// Executor can execute queries and statements. A raw backend connection and
// a transaction both satisfy this interface, enabling statement/result-set
// handling code in internal/session to work inside or outside a transaction identically.
type Executor interface {
	// Exec executes a statement that does not return rows.
	Exec(ctx context.Context, sql string, args ...any) (Result, error)
	// QueryRow executes a query expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...any) Row
	// Query executes a query that returns multiple rows.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
}

// Tx represents a local (non-XA) database transaction started by a
// session's setSavepoint action and finished by its commit/rollback
// actions. Implementations must
// ensure Commit or Rollback is called exactly once.
type Tx interface {
	Executor
	// Commit commits the transaction.
	Commit(ctx context.Context) error
	// Rollback rolls back the transaction.
	Rollback(ctx context.Context) error
	// Savepoint creates a named savepoint.
	Savepoint(ctx context.Context, name string) error
	// ReleaseSavepoint releases a named savepoint.
	ReleaseSavepoint(ctx context.Context, name string) error
	// RollbackToSavepoint rolls back to a named savepoint.
	RollbackToSavepoint(ctx context.Context, name string) error
}

// TxOptions configures transaction behavior.
type TxOptions struct {
	// ReadOnly hints that the transaction will only perform reads.
	ReadOnly bool
	// IsolationLevel sets the transaction isolation level.
	// Supported values are implementation-specific (e.g. "serializable",
	// "read committed").
	IsolationLevel string
}
