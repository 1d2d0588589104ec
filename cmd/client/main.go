package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/defistate/liquidity-converter-go/cmd/config"
	"github.com/defistate/liquidity-converter-go/protocols/tokenregistry"
	"github.com/defistate/liquidity-converter-go/protocols/uniswapv2"
	"github.com/defistate/liquidity-converter-go/state"
	"github.com/defistate/liquidity-converter-go/streams/jsonrpc/client"
)

func main() {
	// create the log handler
	rootLogHandler := slog.NewJSONHandler(os.Stdout, nil)
	close := func() {
		os.Exit(1)
	}

	rootLogger := slog.New(rootLogHandler)
	cfg, err := loadConfig()
	if err != nil {
		rootLogger.Error("Failed to load configuration", "error", err)
		close()
	}

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := client.NewClient(
		ctx,
		client.Config{
			URL:         cfg.RPCURL,
			Logger:      rootLogger.With("component", "jsonrpc-client"),
			BufferSize:  cfg.BufferSize,
			PoolPatcher: uniswapv2.Patcher,
		},
	)
	if err != nil {
		rootLogger.Error("Failed to initialize Client", "url", cfg.RPCURL, "error", err)
		close()
	}

	var (
		previous       []uniswapv2.Pool
		previousTokens []state.Token
	)
	for {
		select {
		case view := <-client.State():
			for _, t := range tokenregistry.Differ(previousTokens, view.Tokens).Additions {
				rootLogger.Info("Token listed", "token", t.Address, "symbol", t.Symbol, "decimals", t.Decimals)
			}
			previousTokens = view.Tokens

			diff := uniswapv2.Differ(previous, view.Pools)
			for _, p := range diff.Additions {
				rootLogger.Info("Pool listed", "pool", p.Address, "token0", p.Token0, "token1", p.Token1, "totalSupply", p.TotalSupply)
			}
			for _, p := range diff.Updates {
				rootLogger.Info("Pool moved", "pool", p.Address, "reserve0", p.Reserve0, "reserve1", p.Reserve1, "totalSupply", p.TotalSupply)
			}
			for _, addr := range diff.Deletions {
				rootLogger.Info("Pool delisted", "pool", addr)
			}
			previous = view.Pools
		case err := <-client.Err():
			rootLogger.Error("Fatal client error", "error", err)
			return
		case <-ctx.Done():
			return
		}
	}
}

func loadConfig() (*config.ConsoleConfig, error) {
	configPath := flag.String("config", "console.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.LoadConsoleConfig(*configPath)
}
