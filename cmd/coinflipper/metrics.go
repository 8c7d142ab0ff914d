package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	otelsetup "github.com/coinflipper/coinflipper/internal/otel"
)

// setupTelemetry starts the OTel pipeline. With a non-empty metricsAddr it
// also serves /metrics there; the returned shutdown stops both.
func setupTelemetry(ctx context.Context, service, metricsAddr string) (func(context.Context) error, error) {
	opts := []otelsetup.Option{otelsetup.WithServiceName(service)}

	var reg *prometheus.Registry
	if metricsAddr != "" {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, otelsetup.WithPrometheus(reg))
	}

	otelShutdown, err := otelsetup.Setup(ctx, opts...)
	if err != nil {
		return nil, err
	}

	if reg == nil {
		return otelShutdown, nil
	}

	srv, err := startMetricsServer(metricsAddr, reg)
	if err != nil {
		return nil, errors.Join(err, otelShutdown(ctx))
	}

	return func(ctx context.Context) error {
		return errors.Join(srv.Shutdown(ctx), otelShutdown(ctx))
	}, nil
}

func startMetricsServer(addr string, reg *prometheus.Registry) (*http.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", slog.String("err", err.Error()))
		}
	}()

	slog.Debug("Serving metrics", slog.String("addr", lis.Addr().String()))

	return srv, nil
}
