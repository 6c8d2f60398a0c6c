package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/api"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/config"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/event"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/provider"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/session"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/store"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/strategy"
)

func main() {
	root := &cobra.Command{
		Use:   "neurotext",
		Short: "Document reconstruction service",
	}
	root.AddCommand(serveCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCommand() *cobra.Command {
	var port int
	var dbPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reconstruction HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Port = port
			}
			if dbPath != "" {
				cfg.DatabasePath = dbPath
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides NEUROTEXT_PORT)")
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite database path (overrides NEUROTEXT_DB)")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	gateways, err := buildGateways(cfg, metrics)
	if err != nil {
		return err
	}
	defaultProvider := cfg.DefaultProvider
	if _, ok := gateways[defaultProvider]; !ok {
		for name := range gateways {
			defaultProvider = name
			break
		}
		slog.Warn("configured default provider has no API key, falling back",
			"configured", cfg.DefaultProvider,
			"fallback", defaultProvider,
		)
	}

	bus := event.NewBus(metrics)
	defer bus.Close()

	registry := session.NewRegistry(bus)

	engine := strategy.NewEngine(strategy.EngineOptions{
		Gateways:        gateways,
		DefaultProvider: defaultProvider,
		Registry:        registry,
		Store:           db,
		Tuning:          cfg.Tuning,
		Metrics:         metrics,
	})

	server := api.NewServer(api.HandlerOptions{
		Engine:   engine,
		Bus:      bus,
		Registry: registry,
		Store:    db,
		Metrics:  metrics,
	}, cfg.Port)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening",
			"port", cfg.Port,
			"default_provider", defaultProvider,
			"providers", providerNames(gateways),
		)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")

	// Raise abort on every live job so they stop at the next chunk
	// boundary and persist their partial output before the listener dies.
	for _, job := range registry.List() {
		if !job.Status().Terminal() {
			job.RequestAbort()
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildGateways(cfg *config.Config, metrics *prometheus.Registry) (map[string]provider.Gateway, error) {
	gateways := make(map[string]provider.Gateway)

	if cfg.AnthropicAPIKey != "" {
		gw, err := provider.NewAnthropic(cfg.AnthropicAPIKey, cfg.AnthropicModel, metrics)
		if err != nil {
			return nil, fmt.Errorf("anthropic gateway: %w", err)
		}
		gateways[gw.Name()] = gw
	}
	if cfg.OpenAIAPIKey != "" {
		gw, err := provider.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, metrics)
		if err != nil {
			return nil, fmt.Errorf("openai gateway: %w", err)
		}
		gateways[gw.Name()] = gw
	}
	if cfg.DeepSeekAPIKey != "" {
		gw, err := provider.NewDeepSeek(cfg.DeepSeekAPIKey, cfg.DeepSeekModel, metrics)
		if err != nil {
			return nil, fmt.Errorf("deepseek gateway: %w", err)
		}
		gateways[gw.Name()] = gw
	}

	if len(gateways) == 0 {
		return nil, fmt.Errorf("no provider gateways configured")
	}
	return gateways, nil
}

func providerNames(gateways map[string]provider.Gateway) []string {
	names := make([]string, 0, len(gateways))
	for name := range gateways {
		names = append(names, name)
	}
	return names
}
