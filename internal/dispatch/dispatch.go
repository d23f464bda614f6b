// Package dispatch routes each incoming RPC message to a singleton,
// stateless Action and supplies it with an ActionContext carrying
// references to every other component.
package dispatch

import (
	"context"

	"github.com/ojp-io/ojp/internal/cluster"
	"github.com/ojp-io/ojp/internal/connpool"
	"github.com/ojp-io/ojp/internal/dsconfig"
	"github.com/ojp-io/ojp/internal/providerreg"
	"github.com/ojp-io/ojp/internal/session"
	"github.com/ojp-io/ojp/internal/xapool"
	"github.com/ojp-io/ojp/internal/xaregistry"
)

// ActionKind names one of the request message kinds a client can send.
type ActionKind string

const (
	KindConnect          ActionKind = "connect"
	KindClose            ActionKind = "close"
	KindPrepare          ActionKind = "prepare"
	KindExecute          ActionKind = "execute"
	KindExecuteUpdate    ActionKind = "executeUpdate"
	KindExecuteQuery     ActionKind = "executeQuery"
	KindFetch            ActionKind = "fetch"
	KindCreateLob        ActionKind = "createLob"
	KindReadLob          ActionKind = "readLob"
	KindCommit           ActionKind = "commit"
	KindRollback         ActionKind = "rollback"
	KindSetSavepoint     ActionKind = "setSavepoint"
	KindReleaseSavepoint ActionKind = "releaseSavepoint"
	KindXAStart          ActionKind = "xaStart"
	KindXAEnd            ActionKind = "xaEnd"
	KindXAPrepare        ActionKind = "xaPrepare"
	KindXACommit         ActionKind = "xaCommit"
	KindXARollback       ActionKind = "xaRollback"
	KindXAForget         ActionKind = "xaForget"
	KindXARecover        ActionKind = "xaRecover"
)

// Request is the dispatcher-facing envelope for one client RPC message.
// Payload holds the action-specific, already-decoded request struct from
// api/ojppb.
type Request struct {
	Kind        ActionKind
	SessionUUID string
	Payload     any
}

// Response is the dispatcher-facing envelope for one action's result.
type Response struct {
	Payload any
}

// Action is implemented by every singleton request handler. Handlers
// must be stateless: the dispatcher constructs them once at startup and
// calls them concurrently from many goroutines.
type Action interface {
	Kind() ActionKind
}

// UnaryAction emits exactly one response then completes.
type UnaryAction interface {
	Action
	Invoke(ctx context.Context, ac *ActionContext, req *Request) (*Response, error)
}

// StreamingAction receives zero or more chunks from the caller and a
// terminal signal, used for LOB ingestion (createLob).
type StreamingAction interface {
	Action
	Stream(ctx context.Context, ac *ActionContext, req *Request, chunks <-chan []byte) (*Response, error)
}

// InitAction runs once at startup, with no per-request payload.
type InitAction interface {
	Action
	Init(ctx context.Context, ac *ActionContext) error
}

// ActionContext carries every component an Action may need: the
// provider registry, datasource config resolver, connection and XA
// pools, XA registries, session manager, and cluster health coordinator.
// The dispatcher itself is never referenced by an Action.
type ActionContext struct {
	Providers  *providerreg.Registry
	DSConfig   *dsconfig.Resolver
	ConnPool   *connpool.Manager
	XAPool     *xapool.Manager
	XARegistry *xaregistry.Registries
	Sessions   *session.Manager
	Cluster    *cluster.Health
}
