// Package session tracks the client-visible handles a connected caller
// holds: a UUID, the backend connection hash it resolved to, and the
// pooled connection currently checked out on its behalf.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ojp-io/ojp/internal/backend"
	"github.com/ojp-io/ojp/internal/connpool"
	"github.com/ojp-io/ojp/internal/db"
	"github.com/ojp-io/ojp/internal/dsconfig"
	"github.com/ojp-io/ojp/internal/xapool"
)

// Session is the server-side handle for one client connection: the
// resolved backend identity plus whichever pooled connection is
// currently checked out for it.
type Session struct {
	UUID       string
	Hash       connpool.Hash
	BackendURL string
	Config     *dsconfig.Configuration

	mu         sync.Mutex
	conn       *backend.Conn
	tx         db.Tx
	xa         *xapool.Session
	createdAt  time.Time
	lastActive time.Time

	handles *handles
}

func newSession(hash connpool.Hash, backendURL string, cfg *dsconfig.Configuration) *Session {
	now := time.Now()
	return &Session{
		UUID:       uuid.NewString(),
		Hash:       hash,
		BackendURL: backendURL,
		Config:     cfg,
		createdAt:  now,
		lastActive: now,
		handles:    newHandles(),
	}
}

// PrepareStatement registers sql text for repeated execution, returning
// a handle the client can refer to in place of re-sending it.
func (s *Session) PrepareStatement(sql string) string {
	return s.handles.addStatement(sql)
}

// Statement returns the SQL text registered under a prior
// PrepareStatement handle.
func (s *Session) Statement(id string) (string, error) {
	return s.handles.statement(id)
}

// OpenCursor registers an in-flight result set under a new handle, for
// the caller to page through via FetchRows.
func (s *Session) OpenCursor(rows db.Rows, columns []string) string {
	return s.handles.addCursor(rows, columns)
}

// FetchRows scans up to maxRows rows from the cursor identified by id,
// returning the values scanned and whether further rows remain. Since
// db.Rows offers no peek operation, hasMore is determined by scanning
// one row past maxRows and holding it on the cursor for the next call.
// An exhausted cursor is closed automatically.
func (s *Session) FetchRows(id string, maxRows int) ([][]any, []string, bool, error) {
	c, err := s.handles.cursor(id)
	if err != nil {
		return nil, nil, false, err
	}

	scanRow := func() ([]any, error) {
		vals := make([]any, len(c.columns))
		ptrs := make([]any, len(vals))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := c.rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		return vals, nil
	}

	var out [][]any
	if c.pending != nil {
		out = append(out, c.pending)
		c.pending = nil
	}
	for len(out) < maxRows && c.rows.Next() {
		vals, err := scanRow()
		if err != nil {
			s.handles.closeCursor(id)
			return nil, nil, false, err
		}
		out = append(out, vals)
	}

	hasMore := c.rows.Next()
	if hasMore {
		vals, err := scanRow()
		if err != nil {
			s.handles.closeCursor(id)
			return nil, nil, false, err
		}
		c.pending = vals
	} else {
		s.handles.closeCursor(id)
	}
	return out, c.columns, hasMore, nil
}

// CreateLob stores a fully-assembled LOB payload under a new handle.
func (s *Session) CreateLob(data []byte) string {
	return s.handles.addLob(data)
}

// ReadLob returns the byte range [offset, offset+length) of a
// previously created LOB. A non-positive length reads to the end.
func (s *Session) ReadLob(id string, offset, length int64) ([]byte, error) {
	data, err := s.handles.lob(id)
	if err != nil {
		return nil, err
	}
	if offset < 0 || offset > int64(len(data)) {
		offset = int64(len(data))
	}
	end := int64(len(data))
	if length > 0 && offset+length < end {
		end = offset + length
	}
	return data[offset:end], nil
}

// Conn returns the connection currently bound to this session, if any.
func (s *Session) Conn() *backend.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// bind attaches a freshly borrowed connection to the session.
func (s *Session) bind(c *backend.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = c
	s.lastActive = time.Now()
}

// unbind detaches the session's connection, returning it for release by
// the caller (the Manager), and records an access time so idle eviction
// does not fire on a session that was just active. Any open local
// transaction is discarded along with the connection: returning a
// connection to the pool with an uncommitted transaction still open
// would leak it onto the next borrower.
func (s *Session) unbind() *backend.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conn
	s.conn = nil
	s.tx = nil
	s.lastActive = time.Now()
	return c
}

// Executor returns the connection a plain statement should run against:
// the pinned XA backend session if one is bound (the session is inside
// a distributed transaction branch), otherwise the session's open local
// transaction if one has been started via BeginTx, otherwise its bound
// ordinary connection. Savepoint operations require a local transaction
// and fail against a bare connection.
func (s *Session) Executor() db.Executor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.xa != nil {
		return s.xa.Conn
	}
	if s.tx != nil {
		return s.tx
	}
	return s.conn
}

// BindXA attaches a pinned XA backend session borrowed from the XA pool, once
// XAStartAction's initial (TMNOFLAGS) branch registers it with the XA registry.
// Statement execution routes to it in place of the session's ordinary
// pooled connection until the branch completes.
func (s *Session) BindXA(xa *xapool.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.xa = xa
	s.lastActive = time.Now()
}

// UnbindXA detaches and returns the session's pinned XA backend session
// once its branch completes (XACommitAction/XARollbackAction), for
// release back to the XA pool.
func (s *Session) UnbindXA() *xapool.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	xa := s.xa
	s.xa = nil
	return xa
}

// XA returns the session's currently pinned XA backend session, or nil
// if it is not inside an XA branch.
func (s *Session) XA() *xapool.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.xa
}

// BeginTx lazily starts a local transaction on the session's bound
// connection, returning the existing one if already open.
func (s *Session) BeginTx(ctx context.Context, opts db.TxOptions) (db.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return s.tx, nil
	}
	tx, err := s.conn.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	s.tx = tx
	return tx, nil
}

// OpenTx returns the session's open local transaction, or nil if
// setSavepoint has never started one.
func (s *Session) OpenTx() db.Tx {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx
}

// EndTx clears the session's open transaction after a commit or
// rollback has already been issued against it by the caller.
func (s *Session) EndTx() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tx = nil
}

// Touch records that the session was used, resetting its idle clock.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
}

// Idle reports how long the session has gone unused.
func (s *Session) Idle() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActive)
}

// HasBorrowedConn reports whether the session currently holds a checked
// out connection, which idle eviction must never reclaim out from under.
func (s *Session) HasBorrowedConn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}
