// Hand-written in place of protoc-gen-go-grpc output (no protoc toolchain
// available in this environment — see ojp.proto's header comment). The
// method set and framing below are exactly what running protoc against
// ojp.proto would generate: one unary gRPC method per request/response
// pair, plus a client-streaming method for createLob's chunked upload.
package ojppb

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

const ServiceName = "ojppb.OJPService"

// OJPServiceServer is implemented by the dispatcher-backed gRPC service,
// one method per action kind the wire protocol defines.
type OJPServiceServer interface {
	Connect(context.Context, *ConnectRequest) (*ConnectResponse, error)
	Close(context.Context, *CloseRequest) (*CloseResponse, error)
	Prepare(context.Context, *PrepareRequest) (*PrepareResponse, error)
	Execute(context.Context, *ExecuteRequest) (*ExecuteResponse, error)
	Fetch(context.Context, *FetchRequest) (*FetchResponse, error)
	CreateLob(OJPService_CreateLobServer) error
	ReadLob(context.Context, *ReadLobRequest) (*ReadLobResponse, error)
	ExecuteQuery(context.Context, *ExecuteQueryRequest) (*ExecuteQueryResponse, error)
	ExecuteUpdate(context.Context, *ExecuteUpdateRequest) (*ExecuteUpdateResponse, error)
	Commit(context.Context, *CommitRequest) (*CommitResponse, error)
	Rollback(context.Context, *RollbackRequest) (*RollbackResponse, error)
	SetSavepoint(context.Context, *SetSavepointRequest) (*SetSavepointResponse, error)
	ReleaseSavepoint(context.Context, *ReleaseSavepointRequest) (*ReleaseSavepointResponse, error)
	XAStart(context.Context, *XaStartRequest) (*XaStartResponse, error)
	XAEnd(context.Context, *XaEndRequest) (*XaEndResponse, error)
	XAPrepare(context.Context, *XaPrepareRequest) (*XaPrepareResponse, error)
	XACommit(context.Context, *XaCommitRequest) (*XaCommitResponse, error)
	XARollback(context.Context, *XaRollbackRequest) (*XaRollbackResponse, error)
	XAForget(context.Context, *XaForgetRequest) (*XaForgetResponse, error)
	XARecover(context.Context, *XaRecoverRequest) (*XaRecoverResponse, error)
}

// UnimplementedOJPServiceServer can be embedded in a server implementation
// for forward compatibility: a method added to OJPServiceServer later
// won't break existing embedders until they implement it.
type UnimplementedOJPServiceServer struct{}

func (UnimplementedOJPServiceServer) Connect(context.Context, *ConnectRequest) (*ConnectResponse, error) {
	return nil, fmt.Errorf("ojppb: method Connect not implemented")
}
func (UnimplementedOJPServiceServer) Close(context.Context, *CloseRequest) (*CloseResponse, error) {
	return nil, fmt.Errorf("ojppb: method Close not implemented")
}
func (UnimplementedOJPServiceServer) Prepare(context.Context, *PrepareRequest) (*PrepareResponse, error) {
	return nil, fmt.Errorf("ojppb: method Prepare not implemented")
}
func (UnimplementedOJPServiceServer) Execute(context.Context, *ExecuteRequest) (*ExecuteResponse, error) {
	return nil, fmt.Errorf("ojppb: method Execute not implemented")
}
func (UnimplementedOJPServiceServer) Fetch(context.Context, *FetchRequest) (*FetchResponse, error) {
	return nil, fmt.Errorf("ojppb: method Fetch not implemented")
}
func (UnimplementedOJPServiceServer) CreateLob(OJPService_CreateLobServer) error {
	return fmt.Errorf("ojppb: method CreateLob not implemented")
}
func (UnimplementedOJPServiceServer) ReadLob(context.Context, *ReadLobRequest) (*ReadLobResponse, error) {
	return nil, fmt.Errorf("ojppb: method ReadLob not implemented")
}
func (UnimplementedOJPServiceServer) ExecuteQuery(context.Context, *ExecuteQueryRequest) (*ExecuteQueryResponse, error) {
	return nil, fmt.Errorf("ojppb: method ExecuteQuery not implemented")
}
func (UnimplementedOJPServiceServer) ExecuteUpdate(context.Context, *ExecuteUpdateRequest) (*ExecuteUpdateResponse, error) {
	return nil, fmt.Errorf("ojppb: method ExecuteUpdate not implemented")
}
func (UnimplementedOJPServiceServer) Commit(context.Context, *CommitRequest) (*CommitResponse, error) {
	return nil, fmt.Errorf("ojppb: method Commit not implemented")
}
func (UnimplementedOJPServiceServer) Rollback(context.Context, *RollbackRequest) (*RollbackResponse, error) {
	return nil, fmt.Errorf("ojppb: method Rollback not implemented")
}
func (UnimplementedOJPServiceServer) SetSavepoint(context.Context, *SetSavepointRequest) (*SetSavepointResponse, error) {
	return nil, fmt.Errorf("ojppb: method SetSavepoint not implemented")
}
func (UnimplementedOJPServiceServer) ReleaseSavepoint(context.Context, *ReleaseSavepointRequest) (*ReleaseSavepointResponse, error) {
	return nil, fmt.Errorf("ojppb: method ReleaseSavepoint not implemented")
}
func (UnimplementedOJPServiceServer) XAStart(context.Context, *XaStartRequest) (*XaStartResponse, error) {
	return nil, fmt.Errorf("ojppb: method XAStart not implemented")
}
func (UnimplementedOJPServiceServer) XAEnd(context.Context, *XaEndRequest) (*XaEndResponse, error) {
	return nil, fmt.Errorf("ojppb: method XAEnd not implemented")
}
func (UnimplementedOJPServiceServer) XAPrepare(context.Context, *XaPrepareRequest) (*XaPrepareResponse, error) {
	return nil, fmt.Errorf("ojppb: method XAPrepare not implemented")
}
func (UnimplementedOJPServiceServer) XACommit(context.Context, *XaCommitRequest) (*XaCommitResponse, error) {
	return nil, fmt.Errorf("ojppb: method XACommit not implemented")
}
func (UnimplementedOJPServiceServer) XARollback(context.Context, *XaRollbackRequest) (*XaRollbackResponse, error) {
	return nil, fmt.Errorf("ojppb: method XARollback not implemented")
}
func (UnimplementedOJPServiceServer) XAForget(context.Context, *XaForgetRequest) (*XaForgetResponse, error) {
	return nil, fmt.Errorf("ojppb: method XAForget not implemented")
}
func (UnimplementedOJPServiceServer) XARecover(context.Context, *XaRecoverRequest) (*XaRecoverResponse, error) {
	return nil, fmt.Errorf("ojppb: method XARecover not implemented")
}

// CommitResponse/RollbackResponse etc. are empty acknowledgements, mirroring
// CloseResponse's shape.
type CommitResponse struct{}
type RollbackResponse struct{}
type SetSavepointResponse struct{}
type ReleaseSavepointResponse struct{}
type XaStartResponse struct{}
type XaEndResponse struct{}
type XaCommitResponse struct{}
type XaRollbackResponse struct{}
type XaForgetResponse struct{}

// OJPService_CreateLobServer is the client-streaming handle createLob's
// Stream method receives: one Recv per uploaded chunk, a single SendAndClose
// once the upload completes.
type OJPService_CreateLobServer interface {
	Recv() (*CreateLobChunk, error)
	SendAndClose(*CreateLobResponse) error
	grpc.ServerStream
}

type ojpServiceCreateLobServer struct {
	grpc.ServerStream
}

func (s *ojpServiceCreateLobServer) Recv() (*CreateLobChunk, error) {
	m := new(CreateLobChunk)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *ojpServiceCreateLobServer) SendAndClose(resp *CreateLobResponse) error {
	return s.ServerStream.SendMsg(resp)
}

func RegisterOJPServiceServer(s grpc.ServiceRegistrar, srv OJPServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

// unaryHandler adapts a method expression (e.g. OJPServiceServer.Connect,
// whose receiver comes first: func(OJPServiceServer, context.Context, *Req)
// (*Resp, error)) into the shape grpc.MethodDesc.Handler requires.
func unaryHandler[Req any, Resp any](
	invoke func(OJPServiceServer, context.Context, *Req) (*Resp, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return invoke(srv.(OJPServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName}
		handler := func(ctx context.Context, req any) (any, error) {
			return invoke(srv.(OJPServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func createLobHandler(srv any, stream grpc.ServerStream) error {
	return srv.(OJPServiceServer).CreateLob(&ojpServiceCreateLobServer{ServerStream: stream})
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OJPServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Connect", Handler: unaryHandler(OJPServiceServer.Connect)},
		{MethodName: "Close", Handler: unaryHandler(OJPServiceServer.Close)},
		{MethodName: "Prepare", Handler: unaryHandler(OJPServiceServer.Prepare)},
		{MethodName: "Execute", Handler: unaryHandler(OJPServiceServer.Execute)},
		{MethodName: "Fetch", Handler: unaryHandler(OJPServiceServer.Fetch)},
		{MethodName: "ReadLob", Handler: unaryHandler(OJPServiceServer.ReadLob)},
		{MethodName: "ExecuteQuery", Handler: unaryHandler(OJPServiceServer.ExecuteQuery)},
		{MethodName: "ExecuteUpdate", Handler: unaryHandler(OJPServiceServer.ExecuteUpdate)},
		{MethodName: "Commit", Handler: unaryHandler(OJPServiceServer.Commit)},
		{MethodName: "Rollback", Handler: unaryHandler(OJPServiceServer.Rollback)},
		{MethodName: "SetSavepoint", Handler: unaryHandler(OJPServiceServer.SetSavepoint)},
		{MethodName: "ReleaseSavepoint", Handler: unaryHandler(OJPServiceServer.ReleaseSavepoint)},
		{MethodName: "XAStart", Handler: unaryHandler(OJPServiceServer.XAStart)},
		{MethodName: "XAEnd", Handler: unaryHandler(OJPServiceServer.XAEnd)},
		{MethodName: "XAPrepare", Handler: unaryHandler(OJPServiceServer.XAPrepare)},
		{MethodName: "XACommit", Handler: unaryHandler(OJPServiceServer.XACommit)},
		{MethodName: "XARollback", Handler: unaryHandler(OJPServiceServer.XARollback)},
		{MethodName: "XAForget", Handler: unaryHandler(OJPServiceServer.XAForget)},
		{MethodName: "XARecover", Handler: unaryHandler(OJPServiceServer.XARecover)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "CreateLob", Handler: createLobHandler, ClientStreams: true},
	},
	Metadata: "ojp.proto",
}
