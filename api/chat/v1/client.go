package v1

import (
	"context"

	"google.golang.org/grpc"
)

type ChatService_ConnectClient = grpc.BidiStreamingClient[ClientFrame, ServerFrame]

// ChatServiceClient calls ChatService over cc using the JSON codec.
type ChatServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewChatServiceClient(cc grpc.ClientConnInterface) *ChatServiceClient {
	return &ChatServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ChatServiceClient) CreateConversation(ctx context.Context, in *CreateConversationRequest, opts ...grpc.CallOption) (*CreateConversationResponse, error) {
	return invoke[CreateConversationResponse](ctx, c.cc, "CreateConversation", in, opts)
}

func (c *ChatServiceClient) ListConversations(ctx context.Context, in *ListConversationsRequest, opts ...grpc.CallOption) (*ListConversationsResponse, error) {
	return invoke[ListConversationsResponse](ctx, c.cc, "ListConversations", in, opts)
}

func (c *ChatServiceClient) GetConversation(ctx context.Context, in *GetConversationRequest, opts ...grpc.CallOption) (*GetConversationResponse, error) {
	return invoke[GetConversationResponse](ctx, c.cc, "GetConversation", in, opts)
}

func (c *ChatServiceClient) SendMessage(ctx context.Context, in *SendMessageRequest, opts ...grpc.CallOption) (*SendMessageResponse, error) {
	return invoke[SendMessageResponse](ctx, c.cc, "SendMessage", in, opts)
}

func (c *ChatServiceClient) EditMessage(ctx context.Context, in *EditMessageRequest, opts ...grpc.CallOption) (*EditMessageResponse, error) {
	return invoke[EditMessageResponse](ctx, c.cc, "EditMessage", in, opts)
}

func (c *ChatServiceClient) DeleteMessage(ctx context.Context, in *DeleteMessageRequest, opts ...grpc.CallOption) (*DeleteMessageResponse, error) {
	return invoke[DeleteMessageResponse](ctx, c.cc, "DeleteMessage", in, opts)
}

func (c *ChatServiceClient) ListMessages(ctx context.Context, in *ListMessagesRequest, opts ...grpc.CallOption) (*ListMessagesResponse, error) {
	return invoke[ListMessagesResponse](ctx, c.cc, "ListMessages", in, opts)
}

func (c *ChatServiceClient) MarkRead(ctx context.Context, in *MarkReadRequest, opts ...grpc.CallOption) (*MarkReadResponse, error) {
	return invoke[MarkReadResponse](ctx, c.cc, "MarkRead", in, opts)
}

func (c *ChatServiceClient) SetReaction(ctx context.Context, in *SetReactionRequest, opts ...grpc.CallOption) (*SetReactionResponse, error) {
	return invoke[SetReactionResponse](ctx, c.cc, "SetReaction", in, opts)
}

func (c *ChatServiceClient) RemoveReaction(ctx context.Context, in *RemoveReactionRequest, opts ...grpc.CallOption) (*RemoveReactionResponse, error) {
	return invoke[RemoveReactionResponse](ctx, c.cc, "RemoveReaction", in, opts)
}

func (c *ChatServiceClient) ListReactions(ctx context.Context, in *ListReactionsRequest, opts ...grpc.CallOption) (*ListReactionsResponse, error) {
	return invoke[ListReactionsResponse](ctx, c.cc, "ListReactions", in, opts)
}

func (c *ChatServiceClient) FileReport(ctx context.Context, in *FileReportRequest, opts ...grpc.CallOption) (*FileReportResponse, error) {
	return invoke[FileReportResponse](ctx, c.cc, "FileReport", in, opts)
}

func (c *ChatServiceClient) TransitionReport(ctx context.Context, in *TransitionReportRequest, opts ...grpc.CallOption) (*TransitionReportResponse, error) {
	return invoke[TransitionReportResponse](ctx, c.cc, "TransitionReport", in, opts)
}

func (c *ChatServiceClient) ListReports(ctx context.Context, in *ListReportsRequest, opts ...grpc.CallOption) (*ListReportsResponse, error) {
	return invoke[ListReportsResponse](ctx, c.cc, "ListReports", in, opts)
}

func (c *ChatServiceClient) UpdateSettings(ctx context.Context, in *UpdateSettingsRequest, opts ...grpc.CallOption) (*UpdateSettingsResponse, error) {
	return invoke[UpdateSettingsResponse](ctx, c.cc, "UpdateSettings", in, opts)
}

func (c *ChatServiceClient) LeaveConversation(ctx context.Context, in *LeaveConversationRequest, opts ...grpc.CallOption) (*LeaveConversationResponse, error) {
	return invoke[LeaveConversationResponse](ctx, c.cc, "LeaveConversation", in, opts)
}

// Connect opens the duplex event stream.
func (c *ChatServiceClient) Connect(ctx context.Context, opts ...grpc.CallOption) (ChatService_ConnectClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], FullMethod("Connect"), opts...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[ClientFrame, ServerFrame]{ClientStream: stream}, nil
}
