package middleware

import (
	"context"
	"runtime/debug"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RecoverWithStack logs a recovered panic together with its stack. It must
// be called directly by a deferred function.
func RecoverWithStack(log *zap.Logger, where string) {
	if r := recover(); r != nil {
		logPanic(log, where, r)
	}
}

func logPanic(log *zap.Logger, where string, r any) {
	log.Error("panic recovered",
		zap.String("where", where),
		zap.Any("panic", r),
		zap.ByteString("stack", debug.Stack()))
}

// SafeGo runs fn in a goroutine that survives a panic in fn.
func SafeGo(log *zap.Logger, name string, fn func()) {
	go func() {
		defer RecoverWithStack(log, name)
		fn()
	}()
}

// RecoveryUnaryInterceptor turns a panicking handler into codes.Internal.
func RecoveryUnaryInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logPanic(log, info.FullMethod, r)
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// RecoveryStreamInterceptor is the stream equivalent of RecoveryUnaryInterceptor.
func RecoveryStreamInterceptor(log *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logPanic(log, info.FullMethod, r)
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(srv, ss)
	}
}
