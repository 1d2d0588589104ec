package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/defistate/liquidity-converter-go/cmd/config"
	"github.com/defistate/liquidity-converter-go/sandbox"
	"github.com/defistate/liquidity-converter-go/streams/jsonrpc/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// create the log handler
	rootLogHandler := slog.NewJSONHandler(os.Stdout, nil)
	close := func() {
		os.Exit(1)
	}

	rootLogger := slog.New(rootLogHandler)
	prometheusRegistry := prometheus.DefaultRegisterer
	cfg, err := loadConfig()
	if err != nil {
		rootLogger.Error("Failed to load configuration", "error", err)
		close()
	}

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sb, err := sandbox.New(&cfg.Scenario, rootLogger.With("component", "sandbox"), prometheusRegistry)
	if err != nil {
		rootLogger.Error("Failed to build scenario", "error", err)
		close()
	}

	rpcServer, api, err := server.NewServer(server.Config{
		Converter:        sb.Converter,
		Ledger:           sb.Ledger,
		Directory:        sb.Directory,
		Logger:           rootLogger.With("component", "jsonrpc-server"),
		StreamBufferSize: cfg.StreamBufferSize,
		Sandbox:          cfg.EnableSandboxMethods,
	})
	if err != nil {
		rootLogger.Error("Failed to initialize RPC server", "error", err)
		close()
	}
	defer rpcServer.Stop()

	wsHandler := rpcServer.WebsocketHandler([]string{"*"})
	httpServer := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				wsHandler.ServeHTTP(w, r)
				return
			}
			rpcServer.ServeHTTP(w, r)
		}),
	}
	servers := []*http.Server{httpServer}
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		servers = append(servers, &http.Server{Addr: cfg.MetricsAddr, Handler: mux})
	}

	errCh := make(chan error, len(servers))
	for _, s := range servers {
		go func(s *http.Server) {
			rootLogger.Info("Listening", "addr", s.Addr)
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}(s)
	}

	if cfg.RunMigrations {
		reports, err := sb.Run(ctx)
		if _, refreshErr := api.Stream().Refresh(); refreshErr != nil {
			rootLogger.Error("Failed to refresh pool stream", "error", refreshErr)
		}
		if err != nil {
			rootLogger.Error("Migration failed", "error", err, "completed", len(reports))
		} else {
			rootLogger.Info("All migrations complete", "count", len(reports), "ownerHoldings", sb.Holdings(cfg.Scenario.Converter.Owner))
		}
	}

	select {
	case err := <-errCh:
		rootLogger.Error("HTTP server failed", "error", err)
	case <-ctx.Done():
		rootLogger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, s := range servers {
		_ = s.Shutdown(shutdownCtx)
	}
}

func loadConfig() (*config.ServerConfig, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.LoadServerConfig(*configPath)
}
