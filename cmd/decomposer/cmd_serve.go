package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/VVISHUS/AI-Decomposer-DND-TODO-App/server"
)

var serveAddr string

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve POST /decompose over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	detach := observe(logger)
	defer detach()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	srv := server.New(a.dispatcher,
		server.WithLogger(logger.Named("http")),
		server.WithAllowedOrigins(cfg.Server.AllowedOrigins...),
	)
	logger.Info("starting decomposer",
		zap.String("addr", addr),
		zap.Strings("allowed_origins", cfg.Server.AllowedOrigins),
		zap.String("audit_driver", cfg.Audit.Driver),
	)
	return srv.ListenAndServe(ctx, addr)
}
