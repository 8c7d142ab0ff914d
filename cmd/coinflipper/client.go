package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	cfgpkg "github.com/coinflipper/coinflipper/internal/config"
	"github.com/coinflipper/coinflipper/internal/status"
)

// runClient implements the one-shot status and export commands. They skip
// the OTel pipeline and log to stderr only.
func runClient(ctx context.Context, args []string, export bool, stdout io.Writer) error {
	cmd := "status"
	if export {
		cmd = "export"
	}

	fs := pflag.NewFlagSet(cmd, pflag.ContinueOnError)

	readFlags := cfgpkg.RegisterClientFlags(fs, export)

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := readFlags()
	if err != nil {
		return err
	}

	lvl, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))

	format := status.FormatText
	if export {
		format = cfg.Format
	}

	enc, err := status.NewEncoder(format, stdout)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	logger.Debug("Querying collector", slog.String("addr", cfg.Server))

	st, err := status.Fetch(ctx, cfg.Server)
	if err != nil {
		return err
	}

	return enc.Encode(st)
}
