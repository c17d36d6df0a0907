package main

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	v1 "github.com/PaulBabatuyi/marketChat-gRPC/api/chat/v1"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/chat"
)

// toStatus maps a domain error to a gRPC status. Internal failures are logged
// here and reach the client only as an opaque tag.
func (s *Server) toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var fe *chat.FieldError
	switch {
	case errors.As(err, &fe):
		st := status.New(codes.InvalidArgument, err.Error())
		if d, derr := st.WithDetails(&errdetails.BadRequest{
			FieldViolations: []*errdetails.BadRequest_FieldViolation{{Field: fe.Field, Description: fe.Reason}},
		}); derr == nil {
			st = d
		}
		return st.Err()
	case errors.Is(err, chat.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, chat.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, chat.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, chat.ErrConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	info := &errdetails.ErrorInfo{Reason: "INTERNAL", Domain: v1.ServiceName}
	var ie *chat.InternalError
	if errors.As(err, &ie) {
		info.Metadata = map[string]string{"op": ie.Op, "ref": ie.Ref}
		s.log.Error("internal error", zap.String("op", ie.Op), zap.String("ref", ie.Ref), zap.Error(ie.Err))
	} else {
		s.log.Error("internal error", zap.Error(err))
	}
	st := status.New(codes.Internal, "internal error")
	if d, derr := st.WithDetails(info); derr == nil {
		st = d
	}
	return st.Err()
}

// frameErrorCode is the code carried by an error frame for err.
func frameErrorCode(err error) string {
	switch {
	case errors.Is(err, chat.ErrValidation):
		return "invalid_argument"
	case errors.Is(err, chat.ErrForbidden):
		return "permission_denied"
	case errors.Is(err, chat.ErrNotFound):
		return "not_found"
	case errors.Is(err, chat.ErrConflict):
		return "conflict"
	}
	return "internal"
}
