package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	v1 "github.com/PaulBabatuyi/marketChat-gRPC/api/chat/v1"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/chat"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/middleware"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/realtime"
)

// Connect is the duplex event stream. Outbound events are written only by the
// connection's writer goroutine; this goroutine reads and handles client
// frames.
func (s *Server) Connect(stream v1.ChatService_ConnectServer) error {
	c, err := claims(stream.Context())
	if err != nil {
		return err
	}
	ctx := stream.Context()
	log := s.log.With(zap.String("user_id", c.UserID))

	conn := realtime.NewStreamConn(c.UserID, func(ev realtime.Event) error {
		data, err := json.Marshal(ev.Data)
		if err != nil {
			return err
		}
		return stream.Send(&v1.ServerFrame{Type: string(ev.Type), ConversationID: ev.ConversationID, Data: data})
	}, s.outboxSize, s.writeTimeout, s.log)

	// Register this stream so broadcasts reach the user. A newer Connect from
	// the same user replaces and closes this one.
	s.registry.Register(c.UserID, conn)
	conn.Open()
	defer func() {
		s.registry.Release(c.UserID, conn)
		_ = conn.Close()
	}()
	log.Debug("stream connected")

	quit := make(chan struct{})
	defer close(quit)
	frames := make(chan *v1.ClientFrame)
	errCh := make(chan error, 1)
	middleware.SafeGo(s.log, "connect-recv", func() {
		for {
			f, err := stream.Recv()
			if err != nil {
				errCh <- err
				return
			}
			select {
			case frames <- f:
			case <-quit:
				return
			}
		}
	})

	for {
		select {
		case <-conn.Done():
			log.Debug("stream closed by server")
			return status.Error(codes.Aborted, "connection closed")
		case err := <-errCh:
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) || status.Code(err) == codes.Canceled {
				log.Debug("stream disconnected")
				return nil
			}
			return status.Errorf(codes.Internal, "receive error: %v", err)
		case f := <-frames:
			s.handleFrame(ctx, c.UserID, conn, f)
		}
	}
}

// handleFrame applies one client frame. Problems are reported to the sender
// as error frames and never end the stream.
func (s *Server) handleFrame(ctx context.Context, userID string, conn realtime.Conn, f *v1.ClientFrame) {
	if !s.frames.Allow("frame:" + userID) {
		s.rejectFrame(ctx, conn, f, "rate_limited", "resource_exhausted", "too many frames")
		return
	}
	if f.Malformed != "" {
		s.rejectFrame(ctx, conn, f, "malformed", "invalid_argument", "malformed frame: "+f.Malformed)
		return
	}
	if f.ConversationID == "" {
		s.rejectFrame(ctx, conn, f, "invalid", "invalid_argument", "conversation_id is required")
		return
	}

	var err error
	switch f.Type {
	case v1.FrameTyping:
		_, err = s.typing.Start(ctx, f.ConversationID, userID)
	case v1.FrameTypingStopped:
		err = s.typing.Stop(ctx, f.ConversationID, userID)
	case v1.FrameReadReceipt:
		if f.MessageID == "" {
			err = chat.Invalid("message_id", "required")
			break
		}
		_, err = s.markRead(ctx, f.ConversationID, userID, f.MessageID)
	case v1.FrameDelivered:
		if f.MessageID == "" {
			err = chat.Invalid("message_id", "required")
			break
		}
		_, err = s.msgs.MarkDelivered(ctx, f.ConversationID, userID, f.MessageID)
	default:
		s.rejectFrame(ctx, conn, f, "unknown_type", "invalid_argument", "unknown frame type "+f.Type)
		return
	}
	if err == nil {
		return
	}

	msg := err.Error()
	if !chat.IsDomain(err) {
		s.log.Error("frame failed", zap.String("type", f.Type), zap.String("user_id", userID), zap.Error(err))
		msg = "internal error"
	}
	s.rejectFrame(ctx, conn, f, "failed", frameErrorCode(err), msg)
}

func (s *Server) rejectFrame(ctx context.Context, conn realtime.Conn, f *v1.ClientFrame, reason, code, msg string) {
	s.metrics.FrameRejected(reason)
	ctx, cancel := context.WithTimeout(ctx, realtime.DefaultSendTimeout)
	defer cancel()
	err := conn.Send(ctx, realtime.Event{
		Type:           realtime.EventError,
		ConversationID: f.ConversationID,
		Data:           realtime.ErrorData{Code: code, Message: msg},
	})
	if err != nil {
		s.log.Debug("error frame not delivered", zap.Error(err))
	}
}
