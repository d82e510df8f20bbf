package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"relaymesh/pkg/config"
	"relaymesh/pkg/node"
	"relaymesh/pkg/observability"
)

// run is the main entry point after CLI parsing.
func run(opts Options) int {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}
	if opts.NodeID != "" {
		cfg.NodeID = opts.NodeID
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	zap.L().Info("relaymesh-node started", zap.String("node_id", cfg.NodeID))
	zap.L().Info("effective configuration", zap.Any("config", redacted(cfg)))

	n, err := node.New(cfg)
	if err != nil {
		zap.L().Error("failed to build node", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	zap.L().Info("node is running; press Ctrl+C to exit")
	if err := n.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		zap.L().Error("node failed", zap.Error(err))
		return 1
	}
	return 0
}

// redacted hides the private key from the config dump.
func redacted(cfg *config.Config) config.Config {
	c := *cfg
	if c.Identity.PrivateKey != "" {
		c.Identity.PrivateKey = "***"
	}
	return c
}
