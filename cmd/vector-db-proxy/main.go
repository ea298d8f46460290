package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/agentcloud/vector-db-proxy/internal/app"
	"github.com/agentcloud/vector-db-proxy/internal/observability"
	"github.com/agentcloud/vector-db-proxy/internal/platform/config"
	"github.com/agentcloud/vector-db-proxy/internal/platform/logger"
)

func main() {
	cliApp := &cli.App{
		Name:  "vector-db-proxy",
		Usage: "Ingest queued files and records into a vector database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML file whose values fill unset environment variables",
				EnvVars: []string{"CONFIG_FILE"},
			},
		},
		Before: loadConfigFile,
		Action: consumeCommand,
		Commands: []*cli.Command{
			{
				Name:   "consume",
				Usage:  "Consume the ingestion queue and serve health endpoints",
				Action: consumeCommand,
			},
			{
				Name:   "ingest-file",
				Usage:  "Run the upload path once for a local file",
				Action: ingestFileCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "datasource",
						Aliases:  []string{"d"},
						Usage:    "DataSource id; also the target collection",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "path",
						Aliases:  []string{"p"},
						Usage:    "Path to the file to ingest",
						Required: true,
					},
				},
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "vector-db-proxy: %v\n", err)
		os.Exit(1)
	}
}

func loadConfigFile(c *cli.Context) error {
	path := c.String("config")
	if path == "" {
		return nil
	}
	if _, err := config.Load(path); err != nil {
		return fmt.Errorf("load config file: %w", err)
	}
	return nil
}

// bootstrap builds the logger, tracing and the wired App. The returned
// cleanup must run even when the App fails to start.
func bootstrap(ctx context.Context) (*app.App, func(), error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, func() {}, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, func() {}, fmt.Errorf("init logger: %w", err)
	}

	shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})
	cleanup := func() {
		if shutdownOTel != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownOTel(sctx); err != nil {
				log.Warn("otel shutdown failed", "error", err)
			}
		}
		log.Sync()
	}

	a, err := app.New(ctx, log, cfg)
	if err != nil {
		return nil, cleanup, err
	}
	return a, func() {
		if err := a.Close(); err != nil {
			log.Warn("App close failed", "error", err)
		}
		cleanup()
	}, nil
}

func consumeCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := bootstrap(ctx)
	defer cleanup()
	if err != nil {
		return err
	}
	a.Log.Info("Starting consumer", "queue_driver", a.Cfg.QueueDriver, "http_addr", a.Cfg.HTTPAddr)
	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.Log.Error("Consumer stopped with error", "error", err)
		return err
	}
	a.Log.Info("Consumer stopped")
	return nil
}

func ingestFileCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := bootstrap(ctx)
	defer cleanup()
	if err != nil {
		return err
	}
	out, err := a.IngestFile(ctx, c.String("datasource"), c.String("path"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "status=%s chunks=%d points=%d skipped=%d\n", out.Status, out.Chunks, out.Points, out.Skipped)
	if out.Err != nil {
		return out.Err
	}
	return nil
}
