package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"order-saga-client/internal/apierr"
	"order-saga-client/internal/config"
	"order-saga-client/internal/reporter"
	"order-saga-client/internal/utils"
)

const defaultConfigPath = "config_dev.yaml"

var (
	configPath = flag.String("config", defaultConfigPath, "Path to configuration file")
	logLevel   = flag.String("log-level", "", "Log level (DEBUG, INFO, WARN, ERROR), overrides the configuration")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: %s [flags] <command> [command flags]

Commands:
  create -file F [-key K]   submit an order request (JSON or YAML)
  get -id ID                show an order
  find -number N            search an order by number
  list [-status S]          list orders
  failed                    list orders with failed payments
  refresh -id ID            refresh an order's payment status
  risk -id ID               re-run risk analysis for an order
  payment -id PAYMENT_ID    show the payment provider status
  dashboard                 show order counters and recent orders
  reconcile [-journal F]    refresh outstanding orders in bulk
  seed [-count N]           submit generated orders in parallel batches
  sandbox [-addr A]         serve an in-memory order backend

Flags:
`, os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	level := cfg.Logging.Level
	if *logLevel != "" {
		level = *logLevel
	}
	logger, err := utils.NewLogger(utils.LogLevel(level), cfg.Logging.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	logger.Debug("Configuration loaded successfully", map[string]interface{}{
		"baseUrl": cfg.API.BaseURL,
		"timeout": cfg.API.Timeout.String(),
		"auth":    cfg.Auth != nil,
	})

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", map[string]interface{}{
			"signal": sig.String(),
		})
		cancel()
	}()

	command := flag.Arg(0)
	if err := run(ctx, cfg, logger, command, flag.Args()[1:]); err != nil {
		if ctx.Err() != nil {
			logger.Info("Command cancelled", map[string]interface{}{"command": command})
			return
		}
		var apiErr *apierr.APIError
		if errors.As(err, &apiErr) {
			reporter.PrintError(os.Stderr, apiErr)
		} else {
			logger.Error("Command failed", map[string]interface{}{
				"command": command,
				"error":   err.Error(),
			})
		}
		logger.Close()
		os.Exit(1)
	}
}

// loadConfig reads the configuration file. The default file is optional;
// without it the built-in defaults and environment overrides apply.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if path != defaultConfigPath || !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	cfg = config.Default()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
