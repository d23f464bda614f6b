// Package xaregistry tracks in-flight XA branches for a single backend
// connection hash: which session owns each Xid, which pinned XA session
// it is currently bound to, and what lifecycle state it is in.
package xaregistry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ojp-io/ojp/internal/connpool"
	"github.com/ojp-io/ojp/internal/db"
	"github.com/ojp-io/ojp/internal/xapool"
	"github.com/ojp-io/ojp/internal/xaregistry/keylock"
)

// ErrNoEntry corresponds to XAER_NOTA: the Xid named by the caller is not
// known to this registry.
var ErrNoEntry = errors.New("xaregistry: no entry for xid (XAER_NOTA)")

// ErrProtocol corresponds to XAER_PROTO: the requested transition is not
// legal from the entry's current state.
var ErrProtocol = errors.New("xaregistry: illegal state transition (XAER_PROTO)")

// ErrDuplicateXid is returned when RegisterExistingSession is called for
// an Xid that already has a live entry.
var ErrDuplicateXid = errors.New("xaregistry: xid already registered (XAER_DUPID)")

// PrepareVote mirrors the XAResource.prepare return contract: either the
// branch has durable work to commit, or it was read-only and the
// transaction manager may skip it in phase two.
type PrepareVote int

const (
	VoteOK PrepareVote = iota
	VoteReadOnly
)

type entry struct {
	session  *xapool.Session
	ownerUUID string
	state    State
}

// Registry holds one entry per live Xid for a single backend connection
// hash. All mutating operations take the Xid's stripe lock before
// touching the entry map, so branches on different Xids never block each
// other — only operations racing on the *same* Xid serialize.
type Registry struct {
	mu      sync.RWMutex
	entries map[XidKey]*entry
	locks   *keylock.Map[XidKey]
}

// NewRegistry creates an empty XA registry for one backend connection hash.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[XidKey]*entry),
		locks:   keylock.NewMap[XidKey](),
	}
}

// RegisterExistingSession binds xid to a pinned XA session already
// borrowed from the xapool group, putting the entry in ACTIVE state. This
// is the absent→ACTIVE edge of the transition table and is not looked up
// in it, since it is the only operation that may create an entry.
func (r *Registry) RegisterExistingSession(xid XidKey, ownerUUID string, s *xapool.Session) error {
	unlock := r.locks.Lock(xid)
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[xid]; exists {
		return ErrDuplicateXid
	}
	r.entries[xid] = &entry{session: s, ownerUUID: ownerUUID, state: StateActive}
	return nil
}

func (r *Registry) get(xid XidKey) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[xid]
	if !ok {
		return nil, ErrNoEntry
	}
	return e, nil
}

func (r *Registry) transition(xid XidKey, ev event) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[xid]
	if !ok {
		return nil, ErrNoEntry
	}
	to, ok := next(e.state, ev)
	if !ok {
		return nil, ErrProtocol
	}
	e.state = to
	return e, nil
}

// XaStart joins or resumes an existing branch (TMJOIN / TMRESUME). The
// initial start (TMNOFLAGS) goes through RegisterExistingSession instead,
// since it has no prior entry to transition from.
func (r *Registry) XaStart(xid XidKey, flags int32) error {
	unlock := r.locks.Lock(xid)
	defer unlock()

	_, err := r.transition(xid, eventStartJoinResume)
	_ = flags
	return err
}

// XaEnd dissociates the calling thread from the branch: TMSUCCESS/TMFAIL
// move it to IDLE, TMSUSPEND moves it to SUSPENDED.
func (r *Registry) XaEnd(xid XidKey, flags int32) error {
	unlock := r.locks.Lock(xid)
	defer unlock()

	ev := eventEndSuccessFail
	if flags&TMSUSPEND != 0 {
		ev = eventEndSuspend
	}
	_, err := r.transition(xid, ev)
	return err
}

// XaPrepare votes on phase one of two-phase commit: it issues PREPARE
// TRANSACTION against the branch's pinned backend session and only
// advances the entry to PREPARED once Postgres has durably recorded the
// prepared transaction, so a failed PREPARE TRANSACTION leaves the
// branch exactly where it was.
func (r *Registry) XaPrepare(ctx context.Context, xid XidKey) (PrepareVote, error) {
	unlock := r.locks.Lock(xid)
	defer unlock()

	r.mu.RLock()
	e, ok := r.entries[xid]
	var state State
	if ok {
		state = e.state
	}
	r.mu.RUnlock()
	if !ok {
		return 0, ErrNoEntry
	}
	if _, ok := next(state, eventPrepare); !ok {
		return 0, ErrProtocol
	}

	if _, err := e.session.Conn.Exec(ctx, fmt.Sprintf("PREPARE TRANSACTION '%s'", xid.String())); err != nil {
		return 0, fmt.Errorf("xaregistry: prepare transaction: %w", err)
	}

	if _, err := r.transition(xid, eventPrepare); err != nil {
		return 0, err
	}
	return VoteOK, nil
}

// XaCommit completes the branch (one-phase or two-phase), issuing the
// matching commit SQL against the pinned backend session, and returns
// it so the caller can release it back to the xapool group.
func (r *Registry) XaCommit(ctx context.Context, xid XidKey, onePhase bool) (*xapool.Session, error) {
	return r.complete(ctx, xid, onePhase, true)
}

// XaRollback aborts the branch, issuing the matching rollback SQL
// against the pinned backend session, and returns it for release.
func (r *Registry) XaRollback(ctx context.Context, xid XidKey) (*xapool.Session, error) {
	return r.complete(ctx, xid, false, false)
}

// complete runs the terminal SQL for a branch and drops its registry
// entry. A branch already PREPARED always completes via COMMIT
// PREPARED/ROLLBACK PREPARED, addressed by gid, since phase one already
// detached it from any particular connection's open transaction block;
// a one-phase commit or a rollback issued before prepare instead targets
// the BEGIN block XAStartAction opened on the pinned session directly.
func (r *Registry) complete(ctx context.Context, xid XidKey, onePhase, commit bool) (*xapool.Session, error) {
	unlock := r.locks.Lock(xid)
	defer unlock()

	var e *entry
	var err error
	var from State
	if onePhase {
		// One-phase commit may be issued directly from ACTIVE or IDLE,
		// skipping the PREPARED step entirely.
		r.mu.Lock()
		ent, ok := r.entries[xid]
		if !ok {
			r.mu.Unlock()
			return nil, ErrNoEntry
		}
		if ent.state != StateActive && ent.state != StateIdle && ent.state != StatePrepared {
			r.mu.Unlock()
			return nil, ErrProtocol
		}
		e = ent
		from = ent.state
		r.mu.Unlock()
	} else {
		r.mu.RLock()
		if ent, ok := r.entries[xid]; ok {
			from = ent.state
		}
		r.mu.RUnlock()
		e, err = r.transition(xid, eventCommitRollback)
		if err != nil {
			return nil, err
		}
	}

	var stmt string
	switch {
	case from == StatePrepared && commit:
		stmt = fmt.Sprintf("COMMIT PREPARED '%s'", xid.String())
	case from == StatePrepared && !commit:
		stmt = fmt.Sprintf("ROLLBACK PREPARED '%s'", xid.String())
	case commit:
		stmt = "COMMIT"
	default:
		stmt = "ROLLBACK"
	}
	if _, err := e.session.Conn.Exec(ctx, stmt); err != nil {
		return nil, fmt.Errorf("xaregistry: %s: %w", stmt, err)
	}

	r.mu.Lock()
	if onePhase {
		if ent, ok := r.entries[xid]; ok {
			ent.state = StateCompleted
		}
	}
	delete(r.entries, xid)
	r.mu.Unlock()
	return e.session, nil
}

// XaForget discards a heuristically-completed branch's bookkeeping.
func (r *Registry) XaForget(xid XidKey) error {
	unlock := r.locks.Lock(xid)
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[xid]
	if !ok {
		return ErrNoEntry
	}
	if e.state != StateCompleted {
		return ErrProtocol
	}
	delete(r.entries, xid)
	return nil
}

// XaRecover lists Xids left in PREPARED state in this node's in-memory
// bookkeeping, for a TMSTARTRSCAN / TMNOFLAGS scan cycle after a
// transaction manager restart. It does not by itself see prepared
// transactions left on the backend by a process that has since
// restarted — callers needing a full scan must union this with
// RecoverFromBackend against a live backend session.
func (r *Registry) XaRecover() []XidKey {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]XidKey, 0, len(r.entries))
	for xid, e := range r.entries {
		if e.state == StatePrepared {
			out = append(out, xid)
		}
	}
	return out
}

// RecoverFromBackend queries the backend's own prepared-transaction
// catalog for branches left PREPARED there, covering the case where a
// transaction manager restart lost this node's in-memory registry but
// Postgres itself still holds the prepared transaction durably. exec is
// any live connection against the same backend the branches were
// prepared on — prepared transactions are visible cluster-wide within
// one Postgres instance, not pinned to the connection that prepared
// them.
func RecoverFromBackend(ctx context.Context, exec db.Executor) ([]XidKey, error) {
	rows, err := exec.Query(ctx, "SELECT gid FROM pg_prepared_xacts")
	if err != nil {
		return nil, fmt.Errorf("xaregistry: query pg_prepared_xacts: %w", err)
	}
	defer rows.Close()

	var out []XidKey
	for rows.Next() {
		var gid string
		if err := rows.Scan(&gid); err != nil {
			return nil, fmt.Errorf("xaregistry: scan gid: %w", err)
		}
		if xid, ok := ParseXidKey(gid); ok {
			out = append(out, xid)
		}
	}
	return out, rows.Err()
}

// Len reports the number of live branches, for metrics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Registries fans Registry out per backend connection hash, so XA
// bookkeeping for one backend never contends with another's.
type Registries struct {
	m sync.Map // connpool.Hash -> *Registry
}

// NewRegistries creates an empty per-hash registry table.
func NewRegistries() *Registries {
	return &Registries{}
}

// For returns the Registry for hash, creating it on first use.
func (rs *Registries) For(hash connpool.Hash) *Registry {
	if v, ok := rs.m.Load(hash); ok {
		return v.(*Registry)
	}
	v, _ := rs.m.LoadOrStore(hash, NewRegistry())
	return v.(*Registry)
}

// Drop discards the registry for hash entirely, e.g. when its pool is
// shut down.
func (rs *Registries) Drop(hash connpool.Hash) {
	rs.m.Delete(hash)
}

// TotalLen sums Len() across every per-hash registry, for a single
// process-wide "active XA branches" metric.
func (rs *Registries) TotalLen() int {
	total := 0
	rs.m.Range(func(_, v any) bool {
		total += v.(*Registry).Len()
		return true
	})
	return total
}
