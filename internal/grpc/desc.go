package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "endlessdrive.v1.Leaderboard"

const (
	submitScoreMethod      = "/" + ServiceName + "/SubmitScore"
	topScoresMethod        = "/" + ServiceName + "/TopScores"
	streamTelemetryMethod  = "/" + ServiceName + "/StreamTelemetry"
	streamSceneDiffsMethod = "/" + ServiceName + "/StreamSceneDiffs"
)

// LeaderboardServer is the server API. Messages are well-known protobuf
// types so no generated code is required.
type LeaderboardServer interface {
	SubmitScore(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	TopScores(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	StreamTelemetry(*emptypb.Empty, grpc.ServerStreamingServer[wrapperspb.BytesValue]) error
	StreamSceneDiffs(*emptypb.Empty, grpc.ServerStreamingServer[wrapperspb.BytesValue]) error
}

// ServiceDesc describes the leaderboard service for grpc.Server registration.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LeaderboardServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitScore", Handler: submitScoreHandler},
		{MethodName: "TopScores", Handler: topScoresHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamTelemetry", Handler: streamTelemetryHandler, ServerStreams: true},
		{StreamName: "StreamSceneDiffs", Handler: streamSceneDiffsHandler, ServerStreams: true},
	},
	Metadata: "endlessdrive/v1/leaderboard.proto",
}

// Register attaches the service implementation to a gRPC server.
func Register(registrar grpc.ServiceRegistrar, srv LeaderboardServer) {
	registrar.RegisterService(&ServiceDesc, srv)
}

func submitScoreHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LeaderboardServer).SubmitScore(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: submitScoreMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LeaderboardServer).SubmitScore(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func topScoresHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LeaderboardServer).TopScores(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: topScoresMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LeaderboardServer).TopScores(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func streamTelemetryHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(LeaderboardServer).StreamTelemetry(in, &grpc.GenericServerStream[emptypb.Empty, wrapperspb.BytesValue]{ServerStream: stream})
}

func streamSceneDiffsHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(LeaderboardServer).StreamSceneDiffs(in, &grpc.GenericServerStream[emptypb.Empty, wrapperspb.BytesValue]{ServerStream: stream})
}

// Client is the hand-written counterpart of ServiceDesc.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// SubmitScore sends {"name": string, "score": number}.
func (c *Client) SubmitScore(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, submitScoreMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// TopScores returns a list of {"name","score"} structs.
func (c *Client) TopScores(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, topScoresMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// StreamTelemetry opens the compressed telemetry feed.
func (c *Client) StreamTelemetry(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (grpc.ServerStreamingClient[wrapperspb.BytesValue], error) {
	return c.openStream(ctx, &ServiceDesc.Streams[0], streamTelemetryMethod, in, opts...)
}

// StreamSceneDiffs opens the compressed scene diff feed.
func (c *Client) StreamSceneDiffs(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (grpc.ServerStreamingClient[wrapperspb.BytesValue], error) {
	return c.openStream(ctx, &ServiceDesc.Streams[1], streamSceneDiffsMethod, in, opts...)
}

func (c *Client) openStream(ctx context.Context, desc *grpc.StreamDesc, method string, in *emptypb.Empty, opts ...grpc.CallOption) (grpc.ServerStreamingClient[wrapperspb.BytesValue], error) {
	stream, err := c.cc.NewStream(ctx, desc, method, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, wrapperspb.BytesValue]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
