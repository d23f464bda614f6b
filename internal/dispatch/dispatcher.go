package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ojp-io/ojp/internal/cluster"
	"github.com/ojp-io/ojp/internal/metrics"
	"github.com/ojp-io/ojp/internal/tracing"
)

// ErrUnknownAction is returned when no Action is registered for a
// request's Kind.
var ErrUnknownAction = errors.New("dispatch: no handler registered for action kind")

// ErrNotStreaming is returned when DispatchStream is called for a Kind
// whose registered Action does not implement StreamingAction.
var ErrNotStreaming = errors.New("dispatch: action does not support streaming")

// ErrNotUnary is returned when Dispatch is called for a Kind whose
// registered Action only implements StreamingAction.
var ErrNotUnary = errors.New("dispatch: action does not support unary dispatch")

// Dispatcher holds one singleton, stateless Action per ActionKind and
// routes each incoming request to it through a bounded worker pool.
type Dispatcher struct {
	ac      *ActionContext
	actions map[ActionKind]Action
	pool    *WorkerPool
}

// New builds a Dispatcher from ac and the given Actions, keyed by each
// Action's own Kind(). It does not start the worker pool — call Start.
func New(ac *ActionContext, poolCfg WorkerPoolConfig, actions ...Action) (*Dispatcher, error) {
	m := make(map[ActionKind]Action, len(actions))
	for _, a := range actions {
		if _, dup := m[a.Kind()]; dup {
			return nil, fmt.Errorf("dispatch: duplicate action registered for kind %q", a.Kind())
		}
		m[a.Kind()] = a
	}
	return &Dispatcher{
		ac:      ac,
		actions: m,
		pool:    NewWorkerPool(poolCfg),
	}, nil
}

// Start launches the dispatcher's worker pool and runs every registered
// InitAction once, in no particular order (actions are held in a map).
func (d *Dispatcher) Start(ctx context.Context) error {
	for _, a := range d.actions {
		if init, ok := a.(InitAction); ok {
			if err := init.Init(ctx, d.ac); err != nil {
				return fmt.Errorf("dispatch: init action %q failed: %w", a.Kind(), err)
			}
		}
	}
	d.pool.Start()
	return nil
}

// Stop drains in-flight requests and stops the worker pool.
func (d *Dispatcher) Stop(ctx context.Context) error {
	_ = ctx
	return d.pool.Stop(d.pool.taskTimeout)
}

// preDispatch runs the per-request cluster-health check before any
// action body executes, consulting the cluster coordinator for a
// redirect hint when the dispatcher knows the request's connection
// hash. Sessions not yet connected (e.g. the connect action itself) have
// no hash yet and always run locally.
func (d *Dispatcher) preDispatch(req *Request) (*cluster.RedirectHint, error) {
	if d.ac.Cluster == nil {
		return nil, nil
	}
	s, ok := d.ac.Sessions.Get(req.SessionUUID)
	if !ok {
		return nil, nil
	}
	xaPinned := d.ac.XARegistry != nil && d.ac.XARegistry.For(s.Hash).Len() > 0
	return d.ac.Cluster.OnSessionRequest(cluster.SessionInfo{
		SessionUUID: req.SessionUUID,
		Hash:        s.Hash,
		XAPinned:    xaPinned,
	})
}

// Dispatch routes req to its registered UnaryAction through the bounded
// worker pool. A cluster-health check runs first; a non-nil redirect
// hint is returned as the response payload instead of invoking the
// action, so the transport layer can tell the client to reconnect
// elsewhere.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (resp *Response, err error) {
	ctx, span := tracing.StartAction(ctx, string(req.Kind), d.connHash(req.SessionUUID), req.SessionUUID)
	start := time.Now()
	defer func() {
		tracing.End(span, err)
		metrics.Global().RecordDispatch(string(req.Kind), time.Since(start).Milliseconds(), err == nil)
	}()

	hint, err := d.preDispatch(req)
	if err != nil {
		return nil, err
	}
	if hint != nil {
		metrics.Global().RecordRedirect()
		return &Response{Payload: hint}, nil
	}

	a, ok := d.actions[req.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, req.Kind)
	}
	unary, ok := a.(UnaryAction)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotUnary, req.Kind)
	}

	return d.pool.Submit(ctx, func(taskCtx context.Context) (*Response, error) {
		return unary.Invoke(taskCtx, d.ac, req)
	})
}

// DispatchStream routes req to its registered StreamingAction, bypassing
// the bounded worker pool since a LOB ingestion stream can remain open
// far longer than a single queued task should.
func (d *Dispatcher) DispatchStream(ctx context.Context, req *Request, chunks <-chan []byte) (resp *Response, err error) {
	ctx, span := tracing.StartAction(ctx, string(req.Kind), d.connHash(req.SessionUUID), req.SessionUUID)
	start := time.Now()
	defer func() {
		tracing.End(span, err)
		metrics.Global().RecordDispatch(string(req.Kind), time.Since(start).Milliseconds(), err == nil)
	}()

	hint, err := d.preDispatch(req)
	if err != nil {
		return nil, err
	}
	if hint != nil {
		metrics.Global().RecordRedirect()
		return &Response{Payload: hint}, nil
	}

	a, ok := d.actions[req.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, req.Kind)
	}
	streaming, ok := a.(StreamingAction)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotStreaming, req.Kind)
	}
	return streaming.Stream(ctx, d.ac, req, chunks)
}

// connHash looks up the pool connection hash for an already-connected
// session, used only to attach it as a span attribute. Sessions without
// a hash yet (e.g. the connect action itself) trace with an empty value.
func (d *Dispatcher) connHash(sessionUUID string) string {
	s, ok := d.ac.Sessions.Get(sessionUUID)
	if !ok {
		return ""
	}
	return s.Hash.String()
}

// Stats reports the dispatcher's worker pool load.
func (d *Dispatcher) Stats() Stats {
	return d.pool.Stats()
}
