package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	tracing "github.com/aixgo-dev/pixelctx/internal/observability"
	"github.com/aixgo-dev/pixelctx/internal/server"
	"github.com/aixgo-dev/pixelctx/pkg/observability"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("Starting pixelctx v%s", Version)

	if err := tracing.Init(cfg.Observability.Tracing); err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(sctx); err != nil {
			log.Printf("[Tracing] shutdown: %v", err)
		}
	}()

	observability.SetVersion(Version)
	observability.InitMetrics()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Printf("[App] close: %v", err)
		}
	}()

	health := observability.Health()
	health.Register(observability.CredentialsCheck(cfg.Provider.Name, cfg.APIKeySet))
	health.RegisterStatsBackend(a.backend)

	if cfg.Artifacts.Retention > 0 {
		stopSweep, err := a.artifacts.StartRetention(cfg.Artifacts.SweepSchedule, cfg.Artifacts.Retention)
		if err != nil {
			return err
		}
		defer stopSweep()
	}

	srv, err := server.New(server.Options{
		Config:    cfg.Server,
		Chat:      a.chat,
		Exporter:  a.exporter,
		APIKeySet: cfg.APIKeySet,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)

	var obsServer *observability.Server
	if cfg.Observability.MetricsPort > 0 {
		obsServer = observability.NewServer(cfg.Observability.MetricsPort)
		g.Go(func() error {
			log.Printf("[Server] observability on :%d", cfg.Observability.MetricsPort)
			if err := obsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			observability.UpdateRuntimeMetrics()
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Printf("[Server] shutdown: %v", err)
		}
		if obsServer != nil {
			if err := obsServer.Shutdown(sctx); err != nil {
				log.Printf("[Server] observability shutdown: %v", err)
			}
		}
		return nil
	})

	err = g.Wait()
	log.Println("pixelctx stopped")
	return err
}
