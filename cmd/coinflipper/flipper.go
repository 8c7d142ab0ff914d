package main

import (
	"context"
	"errors"

	"github.com/spf13/pflag"

	cfgpkg "github.com/coinflipper/coinflipper/internal/config"
	"github.com/coinflipper/coinflipper/internal/flipper"
	"github.com/coinflipper/coinflipper/internal/sender"
)

func runFlipper(ctx context.Context, args []string) (err error) {
	fs := pflag.NewFlagSet("flipper", pflag.ContinueOnError)
	readFlags := cfgpkg.RegisterFlipperFlags(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := readFlags()
	if err != nil {
		return err
	}

	otelShutdown, err := setupTelemetry(ctx, "coinflipper-flipper", cfg.MetricsAddr)
	if err != nil {
		return err
	}

	defer func() { err = errors.Join(err, otelShutdown(context.Background())) }()

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	w := flipper.NewWorker(cfg, sender.NewGRPCDialer(cfg.Server, cfg.SendTimeout), logger)

	return w.Run(ctx)
}
