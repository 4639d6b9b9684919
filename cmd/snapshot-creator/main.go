package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/zenrollup/snapshotter/pkg/clickhouse"
	"github.com/zenrollup/snapshotter/pkg/creator"
	"github.com/zenrollup/snapshotter/pkg/events"
	"github.com/zenrollup/snapshotter/pkg/metrics"
	"github.com/zenrollup/snapshotter/pkg/objstore"
	"github.com/zenrollup/snapshotter/pkg/postgres"
	"github.com/zenrollup/snapshotter/pkg/registry"
	"github.com/zenrollup/snapshotter/pkg/storagelog"
	"github.com/zenrollup/snapshotter/pkg/utils"
)

func main() {
	commonFlags := []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
		},
		&cli.StringFlag{
			Name:    "storage-logs-table",
			Usage:   "The ClickHouse table holding the append-only storage log",
			EnvVars: []string{"STORAGE_LOGS_TABLE"},
			Value:   "storage_logs",
		},
		&cli.StringFlag{
			Name:    "l1-batches-table",
			Usage:   "The ClickHouse table holding L1 batch seal status",
			EnvVars: []string{"L1_BATCHES_TABLE"},
			Value:   "l1_batches",
		},
		&cli.StringFlag{
			Name:    "registry-table",
			Usage:   "The Postgres table holding snapshot metadata",
			EnvVars: []string{"REGISTRY_TABLE"},
			Value:   "snapshots",
		},
		&cli.StringFlag{
			Name:     "object-store-root",
			Aliases:  []string{"o"},
			Usage:    "The filesystem root chunk files are written under",
			EnvVars:  []string{"OBJECT_STORE_ROOT"},
			Required: true,
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "The Kafka brokers to publish commit events to (comma-separated list, empty disables publishing)",
			EnvVars: []string{"KAFKA_BROKERS"},
		},
		&cli.StringFlag{
			Name:    "kafka-topic",
			Aliases: []string{"t"},
			Usage:   "The Kafka topic for snapshot commit events",
			EnvVars: []string{"KAFKA_TOPIC"},
			Value:   "snapshot-committed",
		},
		&cli.StringFlag{
			Name:    "kafka-client-id",
			Usage:   "The Kafka client ID to use",
			EnvVars: []string{"KAFKA_CLIENT_ID"},
			Value:   "snapshot-creator",
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
	}

	app := &cli.App{
		Name:  "snapshot-creator",
		Usage: "Create point-in-time state snapshots at the newest sealed L1 batch",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run one snapshot attempt and exit",
				Flags:  commonFlags,
				Action: runOnce,
			},
			{
				Name:  "daemon",
				Usage: "Run snapshot attempts on a fixed interval",
				Flags: append([]cli.Flag{
					&cli.DurationFlag{
						Name:    "interval",
						Aliases: []string{"i"},
						Usage:   "The interval between snapshot attempts",
						EnvVars: []string{"SNAPSHOT_INTERVAL"},
						Value:   time.Hour,
					},
					&cli.DurationFlag{
						Name:    "run-timeout",
						Usage:   "The deadline for a single snapshot attempt",
						EnvVars: []string{"SNAPSHOT_RUN_TIMEOUT"},
						Value:   30 * time.Minute,
					},
				}, commonFlags...),
				Action: runDaemon,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runOnce(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snapshotter, sugar, cleanup, err := setup(ctx, c)
	if err != nil {
		return err
	}
	defer cleanup()

	metadata, err := snapshotter.CreateSnapshot(ctx)
	if err != nil {
		sugar.Errorw("snapshot run failed", "error", err)
		return err
	}
	if metadata == nil {
		sugar.Info("nothing to do")
		return nil
	}
	sugar.Infow("snapshot committed",
		"l1BatchNumber", metadata.L1BatchNumber,
		"chunks", len(metadata.Files),
	)
	return nil
}

func runDaemon(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snapshotter, sugar, cleanup, err := setup(ctx, c)
	if err != nil {
		return err
	}
	defer cleanup()

	err = creator.RunPeriodically(ctx, snapshotter, c.Duration("interval"), c.Duration("run-timeout"), sugar)
	if err != nil && !errors.Is(err, context.Canceled) {
		sugar.Errorw("daemon failed", "error", err)
		return err
	}
	sugar.Info("shutting down")
	return nil
}

// setup wires the creator from flags and environment. The returned cleanup
// closes every connection it opened, in reverse order.
func setup(ctx context.Context, c *cli.Context) (*creator.Creator, *zap.SugaredLogger, func(), error) {
	sugar, err := utils.NewSugaredLogger(c.Bool("verbose"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
		sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors
	}
	fail := func(err error) (*creator.Creator, *zap.SugaredLogger, func(), error) {
		cleanup()
		return nil, nil, nil, err
	}

	chClient, err := clickhouse.New(clickhouse.Load(), sugar)
	if err != nil {
		return fail(fmt.Errorf("failed to create clickhouse client: %w", err))
	}
	cleanups = append(cleanups, func() { chClient.Close() }) //nolint:errcheck // closing on shutdown

	source, err := storagelog.NewClickHouseSource(chClient, c.String("storage-logs-table"), c.String("l1-batches-table"))
	if err != nil {
		return fail(fmt.Errorf("failed to create storage log source: %w", err))
	}

	pool, err := postgres.Connect(ctx, postgres.Load(), sugar)
	if err != nil {
		return fail(fmt.Errorf("failed to connect to postgres: %w", err))
	}
	cleanups = append(cleanups, pool.Close)

	reg, err := registry.NewPostgres(pool, c.String("registry-table"))
	if err != nil {
		return fail(fmt.Errorf("failed to create registry: %w", err))
	}
	if err := reg.Initialize(ctx); err != nil {
		return fail(fmt.Errorf("failed to initialize registry: %w", err))
	}

	store, err := objstore.NewFilesystemStore(afero.NewOsFs(), c.String("object-store-root"))
	if err != nil {
		return fail(fmt.Errorf("failed to create object store: %w", err))
	}

	var publisher events.Publisher
	if brokers := c.String("kafka-brokers"); brokers != "" {
		kafkaPublisher, err := events.NewKafkaPublisher(brokers, c.String("kafka-client-id"), c.String("kafka-topic"), sugar)
		if err != nil {
			return fail(fmt.Errorf("failed to create kafka publisher: %w", err))
		}
		cleanups = append(cleanups, kafkaPublisher.Close)
		publisher = kafkaPublisher
	}

	var m *metrics.Metrics
	if addr := c.String("metrics-addr"); addr != "" {
		promRegistry := prometheus.NewRegistry()
		m, err = metrics.NewWithLabels(promRegistry, metrics.Labels{
			ChainID:     c.Uint64("chain-id"),
			Environment: c.String("environment"),
			Region:      c.String("region"),
		})
		if err != nil {
			return fail(fmt.Errorf("failed to create metrics: %w", err))
		}

		metricsServer := metrics.NewServer(addr, promRegistry)
		errCh := metricsServer.Start()
		go func() {
			if err, ok := <-errCh; ok && err != nil {
				sugar.Errorw("metrics server failed", "error", err)
			}
		}()
		cleanups = append(cleanups, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsServer.Shutdown(shutdownCtx) //nolint:errcheck // best-effort shutdown
		})
		sugar.Infow("metrics server listening", "addr", addr)
	}

	snapshotter, err := creator.New(source, store, reg, publisher, creator.Load(), sugar, m)
	if err != nil {
		return fail(fmt.Errorf("failed to create snapshot creator: %w", err))
	}

	return snapshotter, sugar, cleanup, nil
}
