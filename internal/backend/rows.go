package backend

import "database/sql"

// sqlRows adapts *sql.Rows to db.Rows.
type sqlRows struct {
	rows *sql.Rows
}

func (r sqlRows) Next() bool                    { return r.rows.Next() }
func (r sqlRows) Scan(dest ...any) error        { return r.rows.Scan(dest...) }
func (r sqlRows) Columns() ([]string, error)    { return r.rows.Columns() }
func (r sqlRows) Err() error                    { return r.rows.Err() }
func (r sqlRows) Close()                        { _ = r.rows.Close() }

// sqlResult adapts sql.Result to db.Result.
type sqlResult struct {
	res sql.Result
}

func (r sqlResult) RowsAffected() int64 {
	n, err := r.res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
