package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/coinflipper/coinflipper/internal/coinpb"
	cfgpkg "github.com/coinflipper/coinflipper/internal/config"
	"github.com/coinflipper/coinflipper/internal/orchestrator"
	"github.com/coinflipper/coinflipper/internal/persistence"
	"github.com/coinflipper/coinflipper/internal/rpcsrv"
)

func runServer(ctx context.Context, args []string) (err error) {
	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	readFlags := cfgpkg.RegisterServerFlags(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := readFlags()
	if err != nil {
		return err
	}

	// Set up OpenTelemetry.
	otelShutdown, err := setupTelemetry(ctx, "coinflipper-server", cfg.MetricsAddr)
	if err != nil {
		return err
	}

	defer func() { err = errors.Join(err, otelShutdown(context.Background())) }()

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	logger.Info("Starting collector")

	backend, closeBackend, err := openBackend(cfg)
	if err != nil {
		return err
	}

	defer func() { err = errors.Join(err, closeBackend()) }()

	logger.Info("Using storage backend", slog.String("backend", fmt.Sprint(backend)))

	orchestratorSvc, err := orchestrator.New(cfg, logger, orchestrator.WithBackend(backend))
	if err != nil {
		return err
	}

	// Resume from the last durable snapshot before anything is persisted.
	if err := orchestratorSvc.Restore(ctx); err != nil {
		return err
	}

	slog.Debug("Starting listener", slog.String("listenAddr", cfg.ListenAddr))

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}

	// The persistence loop outlives the signal; Close stops it after the
	// last in-flight RPC has merged.
	orchestratorSvc.Start(context.WithoutCancel(ctx))

	grpcServer := newGRPCServer(cfg, orchestratorSvc)

	slog.Info("Serving CoinFlipper", slog.String("addr", listener.Addr().String()))

	// Serve in a goroutine so we can handle signals
	serveErr := make(chan error, 1)

	go func() { serveErr <- grpcServer.Serve(listener) }()

	select {
	case err := <-serveErr:
		return errors.Join(err, orchestratorSvc.Close(context.Background()))
	case <-ctx.Done():
		slog.Info("Shutdown signal received; beginning graceful shutdown")

		stopGRPC(grpcServer, cfg.GracefulTimeout)

		// Final persistence cycle.
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
		defer cancel()

		return orchestratorSvc.Close(closeCtx)
	}
}

func newGRPCServer(cfg cfgpkg.Server, svc orchestrator.Orchestrator) *grpc.Server {
	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.MaxRecvMsgSize(cfg.MaxReceiveMessageSize),
		grpc.Creds(insecure.NewCredentials()),
	)
	coinpb.RegisterCoinFlipperServer(grpcServer, rpcsrv.NewServer(svc))

	return grpcServer
}

// stopGRPC stops accepting new connections and allows in-flight RPCs to
// complete, forcing a stop after timeout.
func stopGRPC(s *grpc.Server, timeout time.Duration) {
	done := make(chan struct{})

	go func() {
		s.GracefulStop()
		close(done)
	}()

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-done:
	case <-t.C:
		slog.Warn("Graceful stop timed out; forcing stop")
		s.Stop()
		<-done
	}
}

// openBackend selects S3, then Redis, then the filesystem.
func openBackend(cfg cfgpkg.Server) (persistence.Backend, func() error, error) {
	noop := func() error { return nil }

	switch {
	case cfg.S3Bucket != "":
		b, err := persistence.OpenS3(cfg.S3Bucket, cfg.S3Prefix)
		if err != nil {
			return nil, nil, err
		}

		return b, noop, nil
	case cfg.RedisAddr != "":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

		return persistence.NewRedis(client, cfg.RedisPrefix), client.Close, nil
	default:
		return persistence.NewFilesystem(cfg.StoragePath), noop, nil
	}
}
