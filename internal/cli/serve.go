package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-vitals/internal/db"
	"github.com/kubilitics/kubilitics-vitals/internal/server"
	"github.com/kubilitics/kubilitics-vitals/internal/tracing"
)

func openStore(ctx context.Context, a *app) (db.Store, error) {
	d := a.cfg.Database
	store, err := db.Open(ctx, db.Options{Type: d.Type, SQLitePath: d.SQLitePath, PostgresURL: d.PostgresURL})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", d.Type, err)
	}
	return store, nil
}

func newServeCmd(a *app) *cobra.Command {
	var httpPort, grpcPort int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, WebSocket and gRPC health server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("http-port") {
				a.cfg.Server.HTTPPort = httpPort
			}
			if cmd.Flags().Changed("grpc-port") {
				a.cfg.Server.GRPCPort = grpcPort
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().IntVar(&httpPort, "http-port", 8090, "HTTP listen port")
	cmd.Flags().IntVar(&grpcPort, "grpc-port", 9095, "gRPC health listen port (0 disables)")
	return cmd
}

// serve runs the server until ctx is cancelled.
func (a *app) serve(ctx context.Context) error {
	log := a.logger
	cfg := a.cfg

	shutdownTracing, err := tracing.Init(ctx, tracing.Options{
		ServiceName:  "kubilitics-vitals",
		Endpoint:     cfg.Tracing.Endpoint,
		Protocol:     cfg.Tracing.Protocol,
		SamplingRate: cfg.Tracing.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("Tracing shutdown failed", zap.Error(err))
		}
	}()

	var store db.Store
	if cfg.Database.Enabled {
		store, err = openStore(ctx, a)
		if err != nil {
			return err
		}
		defer store.Close()
		log.Info("Database ready", zap.String("type", cfg.Database.Type))
	}

	engine, err := a.newEngine()
	if err != nil {
		return err
	}

	srv := server.NewServer(cfg, engine, store, log)
	if err := srv.Start(); err != nil {
		return err
	}

	updates := a.cfgMgr.Watch(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case next := <-updates:
			// Listeners and the engine are fixed at startup; only report drift.
			if errs := next.Validate(); len(errs) > 0 {
				log.Warn("Ignoring invalid configuration change", zap.Error(errs[0]))
				continue
			}
			log.Info("Configuration file changed; restart to apply",
				zap.Int("http_port", next.Server.HTTPPort),
				zap.Float64("contamination", next.Detector.Contamination),
			)
		}
	}
}
