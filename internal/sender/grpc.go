package sender

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/coinflipper/coinflipper/internal/coinpb"
)

// GRPCDialer dials the collector's CoinFlipper service.
type GRPCDialer struct {
	target  string
	timeout time.Duration
	opts    []grpc.DialOption
}

// NewGRPCDialer returns a Dialer for target. timeout bounds both the
// connection handshake and every submission. Extra options are appended to
// the defaults (plaintext, OTel client stats handler).
func NewGRPCDialer(target string, timeout time.Duration, opts ...grpc.DialOption) *GRPCDialer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &GRPCDialer{
		target:  target,
		timeout: timeout,
		opts: append([]grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		}, opts...),
	}
}

// Dial connects eagerly and waits until the channel is ready, so a
// collector that is down is reported here and not on the first send.
func (d *GRPCDialer) Dial(ctx context.Context) (Conn, error) {
	cc, err := grpc.NewClient(d.target, d.opts...)
	if err != nil {
		return nil, fmt.Errorf("create client for %s: %w", d.target, err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	cc.Connect()

	for {
		state := cc.GetState()

		switch state {
		case connectivity.Ready:
			return &grpcConn{cc: cc, client: coinpb.NewCoinFlipperClient(cc), timeout: d.timeout}, nil
		case connectivity.TransientFailure, connectivity.Shutdown:
			_ = cc.Close()
			return nil, fmt.Errorf("connect to %s: channel %s", d.target, state)
		}

		if !cc.WaitForStateChange(ctx, state) {
			_ = cc.Close()
			return nil, fmt.Errorf("connect to %s: %w", d.target, ctx.Err())
		}
	}
}

type grpcConn struct {
	cc      *grpc.ClientConn
	client  coinpb.CoinFlipperClient
	timeout time.Duration
}

func (c *grpcConn) Submit(ctx context.Context, batch *coinpb.Coinbatch) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.client.SubmitBatch(ctx, batch)

	return err
}

func (c *grpcConn) Close() error { return c.cc.Close() }
