package backend

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ojp-io/ojp/internal/db"
)

// txWrapper adapts a *sql.Tx to db.Tx, adding the SAVEPOINT statements that
// database/sql does not model natively. Savepoint names are taken from the
// caller (the dispatcher's setSavepoint and releaseSavepoint actions) as
// given; neither this wrapper nor those actions validate them.
type txWrapper struct {
	tx *sql.Tx
}

func (t *txWrapper) Exec(ctx context.Context, q string, args ...any) (db.Result, error) {
	res, err := t.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return sqlResult{res}, nil
}

func (t *txWrapper) QueryRow(ctx context.Context, q string, args ...any) db.Row {
	return t.tx.QueryRowContext(ctx, q, args...)
}

func (t *txWrapper) Query(ctx context.Context, q string, args ...any) (db.Rows, error) {
	rows, err := t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

func (t *txWrapper) Commit(ctx context.Context) error {
	return t.tx.Commit()
}

func (t *txWrapper) Rollback(ctx context.Context) error {
	return t.tx.Rollback()
}

func (t *txWrapper) Savepoint(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, fmt.Sprintf("SAVEPOINT %s", name))
	return err
}

func (t *txWrapper) ReleaseSavepoint(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, fmt.Sprintf("RELEASE SAVEPOINT %s", name))
	return err
}

func (t *txWrapper) RollbackToSavepoint(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, fmt.Sprintf("ROLLBACK TO SAVEPOINT %s", name))
	return err
}
