package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/aixgo-dev/pixelctx/internal/chat"
	"github.com/aixgo-dev/pixelctx/internal/llm/cost"
	"github.com/aixgo-dev/pixelctx/internal/llm/provider"
	"github.com/aixgo-dev/pixelctx/pkg/config"
	"github.com/aixgo-dev/pixelctx/pkg/export"
	"github.com/aixgo-dev/pixelctx/pkg/render"
	"github.com/aixgo-dev/pixelctx/pkg/session"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "pixelctx",
		Short:         "Chat with a hosted model using rendered images as conversation context",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to config file")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before the config (missing file is ignored)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newRenderCmd())
	rootCmd.AddCommand(newEstimateCmd())
	rootCmd.AddCommand(newModelsCmd())
	return rootCmd
}

// loadConfig reads the dotenv file, then the config file, and validates it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// app holds the components shared by serve and chat.
type app struct {
	cfg       *config.Config
	sessions  session.Manager
	chat      *chat.Service
	artifacts *chat.ArtifactSink
	exporter  *export.Exporter
	backend   session.StatsBackend
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	backend, err := session.NewBackend(ctx, cfg.Stats)
	if err != nil {
		return nil, fmt.Errorf("stats backend: %w", err)
	}

	renderer, err := render.New(cfg.Render)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("renderer: %w", err)
	}

	artifacts, err := chat.NewArtifactSink(cfg.Artifacts.Dir)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	calculator := cost.NewCalculator()
	name, settings := cfg.Provider.Name, cfg.Provider.Settings
	factory := func(ctx context.Context, sessionID string) (provider.Provider, error) {
		p, err := provider.New(name, settings)
		if err != nil {
			return nil, err
		}
		return provider.NewInstrumentedProvider(p, calculator), nil
	}
	sessions := session.NewManager(backend, factory)

	svc, err := chat.NewService(chat.Options{
		Sessions:     sessions,
		Renderer:     renderer,
		Calculator:   calculator,
		Artifacts:    artifacts,
		PricingModel: cfg.Provider.PricingModel,
	})
	if err != nil {
		_ = sessions.Close()
		return nil, err
	}

	log.Printf("[App] provider=%s model=%s stats=%s artifacts=%s",
		name, settings.Model, cfg.Stats.Store, artifacts.Dir())
	return &app{
		cfg:       cfg,
		sessions:  sessions,
		chat:      svc,
		artifacts: artifacts,
		exporter:  export.New(cfg.Export.PDFEnabled),
		backend:   backend,
	}, nil
}

func (a *app) Close() error {
	return a.sessions.Close()
}
