package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
)

const name = "github.com/coinflipper/coinflipper"

const usage = `usage: coinflipper <command> [flags]

commands:
  server                  run the collector
  flipper <address>       flip coins and report to the collector
  status <address>        print the collector's status
  export <address>        write the collector's status to stdout (--format raw|json)
`

var errUsage = errors.New("unknown or missing command")

func main() {
	// Derive a context canceled on SIGINT/SIGTERM for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}

		stop()
		log.Fatalln(err)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	switch cmd, rest := args[0], args[1:]; cmd {
	case "server":
		return runServer(ctx, rest)
	case "flipper":
		return runFlipper(ctx, rest)
	case "status":
		return runClient(ctx, rest, false, stdout)
	case "export":
		return runClient(ctx, rest, true, stdout)
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		return fmt.Errorf("%w: %q", errUsage, cmd)
	}
}
