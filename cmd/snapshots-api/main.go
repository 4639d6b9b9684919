package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/zenrollup/snapshotter/pkg/api"
	"github.com/zenrollup/snapshotter/pkg/metrics"
	"github.com/zenrollup/snapshotter/pkg/postgres"
	"github.com/zenrollup/snapshotter/pkg/registry"
	"github.com/zenrollup/snapshotter/pkg/utils"
)

func main() {
	app := &cli.App{
		Name:  "snapshots-api",
		Usage: "Serve snapshot metadata over HTTP",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the snapshots API server",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "verbose",
						Aliases: []string{"v"},
						Usage:   "Enable verbose logging",
					},
					&cli.StringFlag{
						Name:    "registry-table",
						Usage:   "The Postgres table holding snapshot metadata",
						EnvVars: []string{"REGISTRY_TABLE"},
						Value:   "snapshots",
					},
					&cli.StringFlag{
						Name:    "metrics-addr",
						Usage:   "The address the Prometheus metrics server listens on (empty disables it)",
						EnvVars: []string{"METRICS_ADDR"},
					},
					&cli.Uint64Flag{
						Name:    "chain-id",
						Usage:   "The chain ID metrics label",
						EnvVars: []string{"CHAIN_ID"},
					},
					&cli.StringFlag{
						Name:    "environment",
						Usage:   "The environment metrics label",
						EnvVars: []string{"ENVIRONMENT"},
					},
					&cli.StringFlag{
						Name:    "region",
						Usage:   "The region metrics label",
						EnvVars: []string{"REGION"},
					},
				},
				Action: serve,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(c *cli.Context) error {
	sugar, err := utils.NewSugaredLogger(c.Bool("verbose"))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, postgres.Load(), sugar)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer pool.Close()

	reg, err := registry.NewPostgres(pool, c.String("registry-table"))
	if err != nil {
		return fmt.Errorf("failed to create registry: %w", err)
	}
	if err := reg.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize registry: %w", err)
	}

	var m *metrics.Metrics
	var metricsServer *metrics.Server
	if addr := c.String("metrics-addr"); addr != "" {
		promRegistry := prometheus.NewRegistry()
		m, err = metrics.NewWithLabels(promRegistry, metrics.Labels{
			ChainID:     c.Uint64("chain-id"),
			Environment: c.String("environment"),
			Region:      c.String("region"),
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics: %w", err)
		}
		metricsServer = metrics.NewServer(addr, promRegistry)
		sugar.Infow("metrics server listening", "addr", addr)
	}

	apiCfg := api.Load()
	server, err := api.NewServer(reg, apiCfg, sugar, m)
	if err != nil {
		return fmt.Errorf("failed to create api server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err, ok := <-server.Start():
			if ok && err != nil {
				return err
			}
			return nil
		}
	})
	if metricsServer != nil {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			case err, ok := <-metricsServer.Start():
				if ok && err != nil {
					return err
				}
				return nil
			}
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), apiCfg.ShutdownTimeout)
		defer cancel()
		if metricsServer != nil {
			metricsServer.Shutdown(shutdownCtx) //nolint:errcheck // best-effort shutdown
		}
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		sugar.Errorw("api server failed", "error", err)
		return err
	}
	sugar.Info("shutting down")
	return nil
}
