package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/ojp-io/ojp/internal/logging"
	"github.com/ojp-io/ojp/internal/ojperr"
)

// loggingInterceptor logs one line per dispatched RPC with its duration,
// using the structured zerolog operational logger.
func loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	dur := time.Since(start)

	evt := logging.Op().Info()
	if err != nil {
		evt = logging.Op().Warn()
	}
	evt.Str("method", info.FullMethod).Dur("duration", dur).Err(err).Msg("ojp rpc")
	return resp, err
}

// errorTranslationInterceptor maps ojperr.Translatable failures to a gRPC
// status code with a structured trailer, so the client-side driver can
// reconstruct a precise SQLException instead of a generic "Internal"
// status. Errors that aren't ojperr types still pass through
// ojperr.Translate, which falls back to InternalError and never leaks
// the underlying cause to the client.
func errorTranslationInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	if err == nil {
		return resp, nil
	}
	if _, ok := status.FromError(err); ok {
		return nil, err
	}

	code, trailer := ojperr.Translate(err)
	pairs := make([]string, 0, len(trailer)*2)
	for k, v := range trailer {
		pairs = append(pairs, k, v)
	}
	_ = grpc.SetTrailer(ctx, metadata.Pairs(pairs...))
	return nil, status.Error(code, trailer["message"])
}

// streamLoggingInterceptor is the streaming counterpart used for
// createLob's client-streamed upload.
func streamLoggingInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()
	err := handler(srv, ss)
	dur := time.Since(start)

	evt := logging.Op().Info()
	if err != nil {
		evt = logging.Op().Warn()
	}
	evt.Str("method", info.FullMethod).Dur("duration", dur).Err(err).Msg("ojp rpc stream")
	return err
}
