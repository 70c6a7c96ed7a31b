package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/defistate/defistate-arb-go/cmd/arb/config"
	"github.com/prometheus/client_golang/prometheus"
)

const usageText = `Usage: arb [flags] <command>

Commands:
  list [pool]      evaluate every cycle once and print size and yield,
                   or print the cached reserves of one pool
  run              run the arbitrage loop
  execute <cycle>  force one bundle for the given cycle index
  stable           run the stable-hop printer

Flags:
`

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	simulate := flag.Bool("simulate", false, "Simulate transactions instead of sending them.")
	debug := flag.Bool("debug", false, "Enable debug logging.")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usageText)
		flag.PrintDefaults()
	}
	flag.Parse()

	// create the log handler
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	rootLogHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	closeApp := func() {
		os.Exit(1)
	}
	rootLogger := slog.New(rootLogHandler)

	if flag.NArg() < 1 {
		flag.Usage()
		closeApp()
	}

	log.Printf("Loading configuration from: %s", *configPath)
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		rootLogger.Error("Failed to load configuration", "error", err)
		closeApp()
	}
	if *simulate {
		cfg.Execution.Simulate = true
	}

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, rootLogger, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	if err != nil {
		rootLogger.Error("Failed to initialize", "error", err)
		closeApp()
	}

	switch cmd := flag.Arg(0); cmd {
	case "list":
		err = a.list(ctx, flag.Arg(1))
	case "run":
		err = a.run(ctx)
	case "execute":
		var cycle int
		cycle, err = strconv.Atoi(flag.Arg(1))
		if err != nil {
			err = fmt.Errorf("execute needs a cycle index: %w", err)
			break
		}
		err = a.execute(ctx, cycle)
	case "stable":
		err = a.stable(ctx)
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		rootLogger.Error("Fatal error", "command", flag.Arg(0), "error", err)
		closeApp()
	}
}
