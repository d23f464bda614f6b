// Package pgxprovider is OJP's default STANDARD pool provider: it opens
// database/sql connections through jackc/pgx/v5's stdlib adapter, and
// registers an XA datasource factory under the "postgresql" driver family
// for internal/backend/xareflect to discover.
package pgxprovider

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ojp-io/ojp/internal/backend/xareflect"
)

// DriverFamily identifies this provider to the pool provider registry and to the
// reflective XA factory.
const DriverFamily = "postgresql"

// SQLDriverName is the database/sql driver name registered by the pgx
// stdlib adapter's init().
const SQLDriverName = "pgx"

func init() {
	xareflect.Register(DriverFamily, xareflect.FactorySpec{
		New: func() any { return &XADataSource{} },
	})
}

// Open opens a database/sql.DB against dsn via the pgx stdlib driver, the
// STANDARD (non-XA) path used by internal/connpool.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open(SQLDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxprovider: open: %w", err)
	}
	return db, nil
}

// XADataSource is the reflectively-configured XA datasource for Postgres.
// Its Set* methods are discovered and invoked by xareflect.Build. OJP's XA
// backend sessions drive two-phase commit via PREPARE TRANSACTION /
// COMMIT PREPARED SQL rather than a distinct XA connection object, since
// pgx has no javax.sql.XAConnection analogue — this datasource exists to
// hold the connection properties that shape that DSN.
type XADataSource struct {
	ServerName   string
	PortNumber   int
	DatabaseName string
	User         string
	Password     string
	URL          string
}

func (x *XADataSource) SetServerName(v string)  { x.ServerName = v }
func (x *XADataSource) SetPortNumber(v int)      { x.PortNumber = v }
func (x *XADataSource) SetDatabaseName(v string) { x.DatabaseName = v }
func (x *XADataSource) SetUser(v string)         { x.User = v }
func (x *XADataSource) SetPassword(v string)     { x.Password = v }
func (x *XADataSource) SetURL(v string)          { x.URL = v }

// DSN renders the configured fields into a postgres connection string
// understood by pgx stdlib. If URL was set directly (the common case, since
// OJP sessions already carry a parsed backend URL), it takes precedence.
func (x *XADataSource) DSN() string {
	if x.URL != "" {
		return x.URL
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s",
		x.ServerName, x.PortNumber, x.DatabaseName, x.User, x.Password)
}
