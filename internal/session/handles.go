package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ojp-io/ojp/internal/db"
)

// cursor is an open result set paged out across one or more fetch
// calls. It owns the underlying db.Rows until exhausted or explicitly
// closed.
type cursor struct {
	rows    db.Rows
	columns []string
	// pending holds one row already scanned off rows while probing for
	// hasMore on the previous fetch, carried over so it is not lost.
	pending []any
}

// ErrHandleNotFound reports a statement, cursor, or LOB handle that the
// session does not currently hold open.
var ErrHandleNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "session: handle not found" }

// handles tracks the open statements, cursors, and LOBs a session holds.
// Kept as plain maps behind a dedicated mutex: none of this state is
// shared beyond a single session, so there is no concurrency shape an
// off-the-shelf cache library would improve on.
type handles struct {
	mu    sync.Mutex
	stmts map[string]string
	curs  map[string]*cursor
	lobs  map[string][]byte
}

func newHandles() *handles {
	return &handles{
		stmts: make(map[string]string),
		curs:  make(map[string]*cursor),
		lobs:  make(map[string][]byte),
	}
}

func (h *handles) addStatement(sql string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := uuid.NewString()
	h.stmts[id] = sql
	return id
}

func (h *handles) statement(id string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sql, ok := h.stmts[id]
	if !ok {
		return "", ErrHandleNotFound
	}
	return sql, nil
}

func (h *handles) addCursor(rows db.Rows, columns []string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := uuid.NewString()
	h.curs[id] = &cursor{rows: rows, columns: columns}
	return id
}

func (h *handles) cursor(id string) (*cursor, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.curs[id]
	if !ok {
		return nil, ErrHandleNotFound
	}
	return c, nil
}

func (h *handles) closeCursor(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.curs[id]; ok {
		c.rows.Close()
		delete(h.curs, id)
	}
}

func (h *handles) addLob(data []byte) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := uuid.NewString()
	h.lobs[id] = data
	return id
}

func (h *handles) lob(id string) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	data, ok := h.lobs[id]
	if !ok {
		return nil, ErrHandleNotFound
	}
	return data, nil
}

// closeAll releases every open cursor, in no particular order since
// none depend on another, as the session itself is torn down.
func (h *handles) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.curs {
		c.rows.Close()
		delete(h.curs, id)
	}
	h.stmts = make(map[string]string)
	h.lobs = make(map[string][]byte)
}
