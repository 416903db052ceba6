package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

const banner = `
╔══════════════════════════════════════╗
║       stocksync daily bars v1.0      ║
╚══════════════════════════════════════╝
`

const usage = `usage: stocksync [-config file] <command> [flags]

commands:
  sync        fetch new daily bars for every registered instrument
  serve       run the REST API and the daily sync schedule
  seed        register instruments from the seed file
  analyze     export one instrument's analytics as CSV (and a PNG chart)
  correlate   write the close-price correlation matrix as CSV
  compare     write the aligned close-price table as CSV
`

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"sync":      runSync,
	"serve":     runServe,
	"seed":      runSeed,
	"analyze":   runAnalyze,
	"correlate": runCorrelate,
	"compare":   runCompare,
}

func main() {
	fs := flag.NewFlagSet("stocksync", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("STOCKSYNC_CONFIG"), "optional TOML config file")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	fs.Parse(os.Args[1:])

	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}
	name, args := fs.Arg(0), fs.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
		fs.Usage()
		os.Exit(2)
	}

	fmt.Print(banner)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := cmd(ctx, a, args); err != nil {
		a.logger.Error(name+" failed", zap.Error(err))
		a.Close()
		os.Exit(1)
	}
}
