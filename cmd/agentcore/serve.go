package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chris-alexander-pop/agentcore/pkg/bridge"
	"github.com/chris-alexander-pop/agentcore/pkg/channel"
	"github.com/chris-alexander-pop/agentcore/pkg/channel/adapters/nats"
	"github.com/chris-alexander-pop/agentcore/pkg/config"
	"github.com/chris-alexander-pop/agentcore/pkg/logger"
	"github.com/chris-alexander-pop/agentcore/pkg/runtime"
)

// bridgeConfig is loaded via pkg/config (cleanenv + validator), the same
// way the teacher's services load their settings from the environment.
type bridgeConfig struct {
	NATSURL    string `env:"NATS_URL" env-default:"nats://127.0.0.1:4222"`
	BridgeAddr string `env:"BRIDGE_ADDR" env-default:":8088"`
	LogLevel   string `env:"LOG_LEVEL" env-default:"info"`
	LogJSON    bool   `env:"LOG_JSON" env-default:"false"`
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP bridge in front of a NATS-backed runtime",
	Long: `serve starts the agentcore HTTP bridge: it connects to a NATS
broker, starts an empty Runtime bound to it, and exposes /publish,
/publish_multi, /subscribe and /reply-topics over HTTP for callers that
cannot speak NATS directly.

Agent types are registered by embedding this runtime in a Go program via
pkg/runtime; "serve" alone only proxies what is already registered on the
broker side (discovery, any factories already running).`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	var cfg bridgeConfig
	if err := config.Load(&cfg); err != nil {
		return fmt.Errorf("load bridge config: %w", err)
	}

	format := "TEXT"
	if cfg.LogJSON {
		format = "JSON"
	}
	logger.Init(logger.Config{Level: cfg.LogLevel, Format: format})

	ch := channel.NewInstrumented(channel.New(nats.New(nats.Config{URL: cfg.NATSURL})))
	rt := runtime.New(ch)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := rt.Start(ctx); err != nil {
		return fmt.Errorf("start runtime: %w", err)
	}
	defer rt.Stop(context.Background())

	srv := &http.Server{
		Addr:              cfg.BridgeAddr,
		Handler:           bridge.NewServer(rt),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("bridge listening", "addr", cfg.BridgeAddr, "nats_url", cfg.NATSURL)
		if err := srv.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("bridge server error: %w", err)
	case <-sigCh:
		logger.L().Info("shutting down bridge")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	}
}
