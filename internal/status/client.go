package status

import (
	"context"
	"fmt"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/coinflipper/coinflipper/internal/coinpb"
)

// Fetch queries the collector at target once. It fails fast: an
// unreachable collector is an error, not a retry.
func Fetch(ctx context.Context, target string, opts ...grpc.DialOption) (*coinpb.Coinstatus, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, opts...)

	cc, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("create client for %s: %w", target, err)
	}
	defer cc.Close()

	st, err := coinpb.NewCoinFlipperClient(cc).GetStatus(ctx, &coinpb.StatusRequest{})
	if err != nil {
		return nil, fmt.Errorf("get status from %s: %w", target, err)
	}

	return st, nil
}
