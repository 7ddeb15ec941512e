// Command blocktreectl is a stdlib-flag subcommand dispatcher over the
// blockchain/blocktree/securetree layers, one flag set per verb.
// Exit codes: 0 success, 1 validation error, 2 signature error,
// 3 serialization error, 4 I/O error.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/blocktree/blocktree/blockchain"
	"github.com/blocktree/blocktree/blockerrors"
	"github.com/blocktree/blocktree/blocktree"
	"github.com/blocktree/blocktree/internal/blockcache"
	"github.com/blocktree/blocktree/internal/broker"
	"github.com/blocktree/blocktree/internal/clock"
	"github.com/blocktree/blocktree/internal/config"
	"github.com/blocktree/blocktree/internal/cryptoprovider"
	"github.com/blocktree/blocktree/internal/metrics"
	"github.com/blocktree/blocktree/internal/store/memstore"
	"github.com/blocktree/blocktree/internal/store/pebblestore"
	"github.com/blocktree/blocktree/securetree"
	"github.com/blocktree/blocktree/storage"
)

// app bundles the wired collaborators every command operates against.
type app struct {
	logger *slog.Logger
	crypto cryptoprovider.Provider
	clock  *clock.Source
	chain  *blockchain.Store
	tree   *blocktree.Store
	secure *securetree.Store
	broker *broker.Broker
	mx     *metrics.Metrics
	closer func() error
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: blocktreectl [-config path] <command> [args]")
		return 1
	}

	configPath := os.Getenv("BLOCKTREECTL_CONFIG")
	cmdArgs := args
	if args[0] == "-config" || args[0] == "--config" {
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "error: -config requires a path and a command")
			return 1
		}
		configPath = args[1]
		cmdArgs = args[2:]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 4
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	a, err := buildApp(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize store", "error", err)
		return 4
	}
	defer a.closer()

	cmdName, rest := cmdArgs[0], cmdArgs[1:]
	cmd, ok := commands[cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", cmdName)
		return 1
	}

	ctx := context.Background()
	if err := cmd(ctx, a, rest); err != nil {
		logger.Error(cmdName, "error", err)
		return exitCode(err)
	}
	return 0
}

func buildApp(cfg config.Config, logger *slog.Logger) (*app, error) {
	provider := cryptoprovider.New()
	clk := clock.New()

	var store storage.Storage
	closer := func() error { return nil }
	if cfg.StorePath == "" || cfg.StorePath == "memory" {
		store = memstore.New(provider)
	} else {
		ps, err := pebblestore.Open(cfg.StorePath, provider)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		store = ps
		closer = ps.Close
	}

	cacheSize := cfg.CacheSize
	cache := blockcache.New(cacheSize)

	chain := blockchain.New(store, cache, provider, provider, clk)
	tree := blocktree.New(chain, cache, provider)
	secure := securetree.New(tree, provider, clk)

	m := metrics.New()

	return &app{
		logger: logger,
		crypto: provider,
		clock:  clk,
		chain:  chain,
		tree:   tree,
		secure: secure,
		broker: broker.New(provider),
		mx:     m,
		closer: closer,
	}, nil
}

// exitCode maps a returned error to the documented exit-code table.
func exitCode(err error) int {
	var serErr *blockerrors.SerializationError
	var blockErr *blockerrors.InvalidBlockError
	var sigErr *blockerrors.InvalidSignatureError
	var keyErr *blockerrors.InvalidKeyError
	var rootErr *blockerrors.InvalidRootError
	switch {
	case errors.As(err, &serErr):
		return 3
	case errors.As(err, &sigErr):
		return 2
	case errors.As(err, &keyErr):
		return 2
	case errors.As(err, &blockErr), errors.As(err, &rootErr):
		return 1
	default:
		return 4
	}
}
