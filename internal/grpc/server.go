// Package grpc binds the action dispatcher to a gRPC transport: one
// generated-shape method per ActionKind (api/ojppb/ojp_grpc.go), the
// "ojp" gob codec (internal/rpccodec) in place of protoc-generated
// protobuf marshaling, and a pair of interceptors that log every call
// and translate ojperr failures into gRPC status/trailer pairs.
package grpc

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/ojp-io/ojp/api/ojppb"
	"github.com/ojp-io/ojp/internal/cluster"
	"github.com/ojp-io/ojp/internal/dispatch"
	"github.com/ojp-io/ojp/internal/logging"
	"github.com/ojp-io/ojp/internal/ojperr"
	"github.com/ojp-io/ojp/internal/rpccodec"
)

// Server implements ojppb.OJPServiceServer over a Dispatcher.
type Server struct {
	ojppb.UnimplementedOJPServiceServer
	dispatcher *dispatch.Dispatcher
	grpcServer *grpc.Server
	listener   net.Listener
}

// NewServer wires a Dispatcher to a gRPC service, registering the health
// and reflection services alongside OJPService.
func NewServer(d *dispatch.Dispatcher) *Server {
	s := &Server{dispatcher: d}

	s.grpcServer = grpc.NewServer(
		grpc.ForceServerCodec(rpccodec.Codec{}),
		grpc.ChainUnaryInterceptor(loggingInterceptor, errorTranslationInterceptor),
		grpc.ChainStreamInterceptor(streamLoggingInterceptor),
	)
	ojppb.RegisterOJPServiceServer(s.grpcServer, s)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s.grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(s.grpcServer)

	return s
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	lis, err := reusableListen(addr)
	if err != nil {
		return fmt.Errorf("grpc: listen: %w", err)
	}
	s.listener = lis

	logging.Op().Info().Str("addr", addr).Msg("ojp gRPC server starting")
	go func() {
		if err := s.grpcServer.Serve(lis); err != nil {
			logging.Op().Error().Err(err).Msg("ojp gRPC server stopped")
		}
	}()
	return nil
}

// Stop gracefully drains in-flight calls and stops serving.
func (s *Server) Stop() {
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
}

// dispatchUnary builds a dispatch.Request from req, runs it through the
// dispatcher, and type-asserts the response payload back to *Resp. A
// redirect-hint payload is surfaced as a gRPC error carrying the
// redirect in its trailer (via ojperr.ClusterRedirect's ToTrailer),
// since unary RPCs cannot return a different message type in-band.
func dispatchUnary[Resp any](ctx context.Context, s *Server, kind dispatch.ActionKind, sessionUUID string, req any) (*Resp, error) {
	resp, err := s.dispatcher.Dispatch(ctx, &dispatch.Request{Kind: kind, SessionUUID: sessionUUID, Payload: req})
	if err != nil {
		return nil, err
	}
	if hint, ok := resp.Payload.(*cluster.RedirectHint); ok {
		return nil, &ojperr.ClusterRedirect{PeerID: hint.PeerID, Address: hint.Address}
	}
	out, ok := resp.Payload.(*Resp)
	if !ok {
		var zero Resp
		return &zero, nil
	}
	return out, nil
}

func (s *Server) Connect(ctx context.Context, req *ojppb.ConnectRequest) (*ojppb.ConnectResponse, error) {
	return dispatchUnary[ojppb.ConnectResponse](ctx, s, dispatch.KindConnect, "", req)
}

func (s *Server) Close(ctx context.Context, req *ojppb.CloseRequest) (*ojppb.CloseResponse, error) {
	return dispatchUnary[ojppb.CloseResponse](ctx, s, dispatch.KindClose, req.SessionUUID, req)
}

func (s *Server) Prepare(ctx context.Context, req *ojppb.PrepareRequest) (*ojppb.PrepareResponse, error) {
	return dispatchUnary[ojppb.PrepareResponse](ctx, s, dispatch.KindPrepare, req.SessionUUID, req)
}

func (s *Server) Execute(ctx context.Context, req *ojppb.ExecuteRequest) (*ojppb.ExecuteResponse, error) {
	return dispatchUnary[ojppb.ExecuteResponse](ctx, s, dispatch.KindExecute, req.SessionUUID, req)
}

func (s *Server) Fetch(ctx context.Context, req *ojppb.FetchRequest) (*ojppb.FetchResponse, error) {
	return dispatchUnary[ojppb.FetchResponse](ctx, s, dispatch.KindFetch, req.SessionUUID, req)
}

func (s *Server) ReadLob(ctx context.Context, req *ojppb.ReadLobRequest) (*ojppb.ReadLobResponse, error) {
	return dispatchUnary[ojppb.ReadLobResponse](ctx, s, dispatch.KindReadLob, req.SessionUUID, req)
}

func (s *Server) ExecuteQuery(ctx context.Context, req *ojppb.ExecuteQueryRequest) (*ojppb.ExecuteQueryResponse, error) {
	return dispatchUnary[ojppb.ExecuteQueryResponse](ctx, s, dispatch.KindExecuteQuery, req.SessionUUID, req)
}

func (s *Server) ExecuteUpdate(ctx context.Context, req *ojppb.ExecuteUpdateRequest) (*ojppb.ExecuteUpdateResponse, error) {
	return dispatchUnary[ojppb.ExecuteUpdateResponse](ctx, s, dispatch.KindExecuteUpdate, req.SessionUUID, req)
}

func (s *Server) Commit(ctx context.Context, req *ojppb.CommitRequest) (*ojppb.CommitResponse, error) {
	return dispatchUnary[ojppb.CommitResponse](ctx, s, dispatch.KindCommit, req.SessionUUID, req)
}

func (s *Server) Rollback(ctx context.Context, req *ojppb.RollbackRequest) (*ojppb.RollbackResponse, error) {
	return dispatchUnary[ojppb.RollbackResponse](ctx, s, dispatch.KindRollback, req.SessionUUID, req)
}

func (s *Server) SetSavepoint(ctx context.Context, req *ojppb.SetSavepointRequest) (*ojppb.SetSavepointResponse, error) {
	return dispatchUnary[ojppb.SetSavepointResponse](ctx, s, dispatch.KindSetSavepoint, req.SessionUUID, req)
}

func (s *Server) ReleaseSavepoint(ctx context.Context, req *ojppb.ReleaseSavepointRequest) (*ojppb.ReleaseSavepointResponse, error) {
	return dispatchUnary[ojppb.ReleaseSavepointResponse](ctx, s, dispatch.KindReleaseSavepoint, req.SessionUUID, req)
}

func (s *Server) XAStart(ctx context.Context, req *ojppb.XaStartRequest) (*ojppb.XaStartResponse, error) {
	return dispatchUnary[ojppb.XaStartResponse](ctx, s, dispatch.KindXAStart, req.SessionUUID, req)
}

func (s *Server) XAEnd(ctx context.Context, req *ojppb.XaEndRequest) (*ojppb.XaEndResponse, error) {
	return dispatchUnary[ojppb.XaEndResponse](ctx, s, dispatch.KindXAEnd, req.SessionUUID, req)
}

func (s *Server) XAPrepare(ctx context.Context, req *ojppb.XaPrepareRequest) (*ojppb.XaPrepareResponse, error) {
	return dispatchUnary[ojppb.XaPrepareResponse](ctx, s, dispatch.KindXAPrepare, req.SessionUUID, req)
}

func (s *Server) XACommit(ctx context.Context, req *ojppb.XaCommitRequest) (*ojppb.XaCommitResponse, error) {
	return dispatchUnary[ojppb.XaCommitResponse](ctx, s, dispatch.KindXACommit, req.SessionUUID, req)
}

func (s *Server) XARollback(ctx context.Context, req *ojppb.XaRollbackRequest) (*ojppb.XaRollbackResponse, error) {
	return dispatchUnary[ojppb.XaRollbackResponse](ctx, s, dispatch.KindXARollback, req.SessionUUID, req)
}

func (s *Server) XAForget(ctx context.Context, req *ojppb.XaForgetRequest) (*ojppb.XaForgetResponse, error) {
	return dispatchUnary[ojppb.XaForgetResponse](ctx, s, dispatch.KindXAForget, req.SessionUUID, req)
}

func (s *Server) XARecover(ctx context.Context, req *ojppb.XaRecoverRequest) (*ojppb.XaRecoverResponse, error) {
	return dispatchUnary[ojppb.XaRecoverResponse](ctx, s, dispatch.KindXARecover, req.SessionUUID, req)
}

// CreateLob streams a LOB upload in over chunks, feeding them to the dispatcher's one
// StreamingAction on a background goroutine so Recv() and the dispatch
// call run concurrently rather than buffering the whole upload first.
func (s *Server) CreateLob(stream ojppb.OJPService_CreateLobServer) error {
	first, err := stream.Recv()
	if err != nil {
		return err
	}

	chunks := make(chan []byte, 4)
	done := make(chan error, 1)
	go func() {
		resp, err := s.dispatcher.DispatchStream(stream.Context(), &dispatch.Request{
			Kind:        dispatch.KindCreateLob,
			SessionUUID: first.SessionUUID,
			Payload:     first,
		}, chunks)
		if err != nil {
			done <- err
			return
		}
		out, _ := resp.Payload.(*ojppb.CreateLobResponse)
		done <- stream.SendAndClose(out)
	}()

	chunks <- first.Data
	if first.Last {
		close(chunks)
		return <-done
	}
	for {
		chunk, err := stream.Recv()
		if err != nil {
			close(chunks)
			return <-done
		}
		chunks <- chunk.Data
		if chunk.Last {
			close(chunks)
			return <-done
		}
	}
}
