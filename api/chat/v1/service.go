package v1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "chat.v1.ChatService"

// FullMethod returns the gRPC method path of method.
func FullMethod(method string) string { return "/" + ServiceName + "/" + method }

// ChatServiceServer is the server API for ChatService.
type ChatServiceServer interface {
	CreateConversation(context.Context, *CreateConversationRequest) (*CreateConversationResponse, error)
	ListConversations(context.Context, *ListConversationsRequest) (*ListConversationsResponse, error)
	GetConversation(context.Context, *GetConversationRequest) (*GetConversationResponse, error)
	SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error)
	EditMessage(context.Context, *EditMessageRequest) (*EditMessageResponse, error)
	DeleteMessage(context.Context, *DeleteMessageRequest) (*DeleteMessageResponse, error)
	ListMessages(context.Context, *ListMessagesRequest) (*ListMessagesResponse, error)
	MarkRead(context.Context, *MarkReadRequest) (*MarkReadResponse, error)
	SetReaction(context.Context, *SetReactionRequest) (*SetReactionResponse, error)
	RemoveReaction(context.Context, *RemoveReactionRequest) (*RemoveReactionResponse, error)
	ListReactions(context.Context, *ListReactionsRequest) (*ListReactionsResponse, error)
	FileReport(context.Context, *FileReportRequest) (*FileReportResponse, error)
	TransitionReport(context.Context, *TransitionReportRequest) (*TransitionReportResponse, error)
	ListReports(context.Context, *ListReportsRequest) (*ListReportsResponse, error)
	UpdateSettings(context.Context, *UpdateSettingsRequest) (*UpdateSettingsResponse, error)
	LeaveConversation(context.Context, *LeaveConversationRequest) (*LeaveConversationResponse, error)
	Connect(ChatService_ConnectServer) error
}

type ChatService_ConnectServer = grpc.BidiStreamingServer[ClientFrame, ServerFrame]

// UnimplementedChatServiceServer answers every call with codes.Unimplemented.
type UnimplementedChatServiceServer struct{}

func (UnimplementedChatServiceServer) CreateConversation(context.Context, *CreateConversationRequest) (*CreateConversationResponse, error) {
	return nil, unimplemented("CreateConversation")
}
func (UnimplementedChatServiceServer) ListConversations(context.Context, *ListConversationsRequest) (*ListConversationsResponse, error) {
	return nil, unimplemented("ListConversations")
}
func (UnimplementedChatServiceServer) GetConversation(context.Context, *GetConversationRequest) (*GetConversationResponse, error) {
	return nil, unimplemented("GetConversation")
}
func (UnimplementedChatServiceServer) SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error) {
	return nil, unimplemented("SendMessage")
}
func (UnimplementedChatServiceServer) EditMessage(context.Context, *EditMessageRequest) (*EditMessageResponse, error) {
	return nil, unimplemented("EditMessage")
}
func (UnimplementedChatServiceServer) DeleteMessage(context.Context, *DeleteMessageRequest) (*DeleteMessageResponse, error) {
	return nil, unimplemented("DeleteMessage")
}
func (UnimplementedChatServiceServer) ListMessages(context.Context, *ListMessagesRequest) (*ListMessagesResponse, error) {
	return nil, unimplemented("ListMessages")
}
func (UnimplementedChatServiceServer) MarkRead(context.Context, *MarkReadRequest) (*MarkReadResponse, error) {
	return nil, unimplemented("MarkRead")
}
func (UnimplementedChatServiceServer) SetReaction(context.Context, *SetReactionRequest) (*SetReactionResponse, error) {
	return nil, unimplemented("SetReaction")
}
func (UnimplementedChatServiceServer) RemoveReaction(context.Context, *RemoveReactionRequest) (*RemoveReactionResponse, error) {
	return nil, unimplemented("RemoveReaction")
}
func (UnimplementedChatServiceServer) ListReactions(context.Context, *ListReactionsRequest) (*ListReactionsResponse, error) {
	return nil, unimplemented("ListReactions")
}
func (UnimplementedChatServiceServer) FileReport(context.Context, *FileReportRequest) (*FileReportResponse, error) {
	return nil, unimplemented("FileReport")
}
func (UnimplementedChatServiceServer) TransitionReport(context.Context, *TransitionReportRequest) (*TransitionReportResponse, error) {
	return nil, unimplemented("TransitionReport")
}
func (UnimplementedChatServiceServer) ListReports(context.Context, *ListReportsRequest) (*ListReportsResponse, error) {
	return nil, unimplemented("ListReports")
}
func (UnimplementedChatServiceServer) UpdateSettings(context.Context, *UpdateSettingsRequest) (*UpdateSettingsResponse, error) {
	return nil, unimplemented("UpdateSettings")
}
func (UnimplementedChatServiceServer) LeaveConversation(context.Context, *LeaveConversationRequest) (*LeaveConversationResponse, error) {
	return nil, unimplemented("LeaveConversation")
}
func (UnimplementedChatServiceServer) Connect(ChatService_ConnectServer) error {
	return unimplemented("Connect")
}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

// unary builds the method descriptor of one unary RPC.
func unary[Req, Resp any](method string, call func(ChatServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	full := FullMethod(method)
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ChatServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ChatServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func connectHandler(srv any, stream grpc.ServerStream) error {
	return srv.(ChatServiceServer).Connect(&grpc.GenericServerStream[ClientFrame, ServerFrame]{ServerStream: stream})
}

// ServiceDesc is the grpc.ServiceDesc for ChatService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateConversation", ChatServiceServer.CreateConversation),
		unary("ListConversations", ChatServiceServer.ListConversations),
		unary("GetConversation", ChatServiceServer.GetConversation),
		unary("SendMessage", ChatServiceServer.SendMessage),
		unary("EditMessage", ChatServiceServer.EditMessage),
		unary("DeleteMessage", ChatServiceServer.DeleteMessage),
		unary("ListMessages", ChatServiceServer.ListMessages),
		unary("MarkRead", ChatServiceServer.MarkRead),
		unary("SetReaction", ChatServiceServer.SetReaction),
		unary("RemoveReaction", ChatServiceServer.RemoveReaction),
		unary("ListReactions", ChatServiceServer.ListReactions),
		unary("FileReport", ChatServiceServer.FileReport),
		unary("TransitionReport", ChatServiceServer.TransitionReport),
		unary("ListReports", ChatServiceServer.ListReports),
		unary("UpdateSettings", ChatServiceServer.UpdateSettings),
		unary("LeaveConversation", ChatServiceServer.LeaveConversation),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Connect",
			Handler:       connectHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "chat/v1",
}

func RegisterChatServiceServer(s grpc.ServiceRegistrar, srv ChatServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}
