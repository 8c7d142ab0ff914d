package coinpb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Full method names of the CoinFlipper service.
const (
	ServiceName           = "coinflipper.CoinFlipper"
	SubmitBatchFullMethod = "/coinflipper.CoinFlipper/SubmitBatch"
	GetStatusFullMethod   = "/coinflipper.CoinFlipper/GetStatus"
)

// CoinFlipperClient is the client API for the CoinFlipper service.
type CoinFlipperClient interface {
	SubmitBatch(ctx context.Context, in *Coinbatch, opts ...grpc.CallOption) (*SubmitResponse, error)
	GetStatus(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*Coinstatus, error)
}

type coinFlipperClient struct {
	cc grpc.ClientConnInterface
}

// NewCoinFlipperClient returns a client that encodes calls with Codec.
func NewCoinFlipperClient(cc grpc.ClientConnInterface) CoinFlipperClient {
	return &coinFlipperClient{cc: cc}
}

func (c *coinFlipperClient) SubmitBatch(ctx context.Context, in *Coinbatch, opts ...grpc.CallOption) (*SubmitResponse, error) {
	out := new(SubmitResponse)
	if err := c.cc.Invoke(ctx, SubmitBatchFullMethod, in, out, callOptions(opts)...); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *coinFlipperClient) GetStatus(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*Coinstatus, error) {
	out := new(Coinstatus)
	if err := c.cc.Invoke(ctx, GetStatusFullMethod, in, out, callOptions(opts)...); err != nil {
		return nil, err
	}

	return out, nil
}

func callOptions(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

// CoinFlipperServer is the server API for the CoinFlipper service.
// Implementations must embed UnimplementedCoinFlipperServer.
type CoinFlipperServer interface {
	SubmitBatch(context.Context, *Coinbatch) (*SubmitResponse, error)
	GetStatus(context.Context, *StatusRequest) (*Coinstatus, error)
	mustEmbedUnimplementedCoinFlipperServer()
}

// UnimplementedCoinFlipperServer returns Unimplemented for every method.
type UnimplementedCoinFlipperServer struct{}

func (UnimplementedCoinFlipperServer) SubmitBatch(context.Context, *Coinbatch) (*SubmitResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SubmitBatch not implemented")
}

func (UnimplementedCoinFlipperServer) GetStatus(context.Context, *StatusRequest) (*Coinstatus, error) {
	return nil, status.Error(codes.Unimplemented, "method GetStatus not implemented")
}

func (UnimplementedCoinFlipperServer) mustEmbedUnimplementedCoinFlipperServer() {}

// RegisterCoinFlipperServer registers srv on s.
func RegisterCoinFlipperServer(s grpc.ServiceRegistrar, srv CoinFlipperServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func submitBatchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Coinbatch)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(CoinFlipperServer).SubmitBatch(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SubmitBatchFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CoinFlipperServer).SubmitBatch(ctx, req.(*Coinbatch))
	}

	return interceptor(ctx, in, info, handler)
}

func getStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(StatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(CoinFlipperServer).GetStatus(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetStatusFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CoinFlipperServer).GetStatus(ctx, req.(*StatusRequest))
	}

	return interceptor(ctx, in, info, handler)
}

// ServiceDesc describes the CoinFlipper service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CoinFlipperServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitBatch", Handler: submitBatchHandler},
		{MethodName: "GetStatus", Handler: getStatusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "coinflipper.proto",
}
