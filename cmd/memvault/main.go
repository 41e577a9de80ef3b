// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/memvault"
	"github.com/poiesic/memvault/server"
)

func main() {
	app := &cli.App{
		Name:  "memvault",
		Usage: "Retrieval-augmented memory service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the ingestion workers and the HTTP API",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to YAML configuration file",
					},
					&cli.StringFlag{
						Name:  "data-dir",
						Usage: "Root directory for disk-backed storage",
					},
					&cli.StringFlag{
						Name:  "listen",
						Usage: "HTTP listen address",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Ingestion worker pool size",
					},
					&cli.StringFlag{
						Name:  "queue-backend",
						Usage: "Queue backend (memory, disk, redis)",
					},
					&cli.StringFlag{
						Name:  "artifact-backend",
						Usage: "Artifact store backend (memory, disk, redis)",
					},
					&cli.StringFlag{
						Name:  "index-backend",
						Usage: "Retrieval index backend (memory, badger, pgvector)",
					},
					&cli.StringFlag{
						Name:  "embedding-host",
						Usage: "Embedding service host URL",
					},
					&cli.StringFlag{
						Name:  "embedding-model",
						Usage: "Embedding model name",
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Re-embed every completed document of an index, e.g. after switching embedding models",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to YAML configuration file",
					},
					&cli.StringFlag{
						Name:     "index",
						Usage:    "Index to re-embed",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "embedding-host",
						Usage: "Embedding service host URL",
					},
					&cli.StringFlag{
						Name:  "embedding-model",
						Usage: "Embedding model name",
					},
					&cli.DurationFlag{
						Name:  "poll-interval",
						Usage: "How often to check for completion",
						Value: time.Second,
					},
				},
			},
			{
				Name:   "search",
				Usage:  "Query an index from the command line",
				Action: searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to YAML configuration file",
					},
					&cli.StringFlag{
						Name:  "index",
						Usage: "Index to search",
					},
					&cli.Float64Flag{
						Name:  "min-relevance",
						Usage: "Minimum relevance score",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
						Value: 10,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func serveCommand(c *cli.Context) error {
	config, err := memvault.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}

	// Flags override the config file.
	if v := c.String("data-dir"); v != "" {
		config.DataDir = v
	}
	if v := c.String("listen"); v != "" {
		config.Listen = v
	}
	if v := c.Int("workers"); v > 0 {
		config.Workers = v
	}
	if v := c.String("queue-backend"); v != "" {
		config.Queue.Backend = v
	}
	if v := c.String("artifact-backend"); v != "" {
		config.Artifacts.Backend = v
	}
	if v := c.String("index-backend"); v != "" {
		config.Index.Backend = v
	}
	if v := c.String("embedding-host"); v != "" {
		config.AI.EmbeddingHost = v
	}
	if v := c.String("embedding-model"); v != "" {
		config.AI.EmbeddingModel = v
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	svc, err := memvault.NewService(config)
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(ctx); err != nil {
		svc.Close()
		return fmt.Errorf("failed to start workers: %w", err)
	}

	srv := server.New(svc)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(config.Listen)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			svc.Close()
			return err
		}
	}

	if err := srv.Shutdown(); err != nil {
		slog.Error("error shutting down HTTP server", "err", err)
	}
	return svc.Close()
}

func reembedCommand(c *cli.Context) error {
	config, err := memvault.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}
	if v := c.String("embedding-host"); v != "" {
		config.AI.EmbeddingHost = v
	}
	if v := c.String("embedding-model"); v != "" {
		config.AI.EmbeddingModel = v
	}

	svc, err := memvault.NewService(config)
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	indexName := c.String("index")
	enqueued, err := svc.ReembedIndex(ctx, indexName)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Re-embedding %d documents in %q with model %s\n",
		enqueued, indexName, config.AI.EmbeddingModel)
	if enqueued == 0 {
		return nil
	}

	ticker := time.NewTicker(c.Duration("poll-interval"))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		docs, err := svc.ListDocuments(ctx, indexName)
		if err != nil {
			return err
		}
		pending := 0
		for _, d := range docs {
			if !d.Status.Terminal() {
				pending++
			}
		}
		if pending == 0 {
			fmt.Fprintf(os.Stderr, "Done: %d documents re-embedded\n", enqueued)
			return nil
		}
		slog.Debug("re-embedding in progress", "pending", pending)
	}
}

func searchCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: memvault search [options] <query>")
	}
	query := c.Args().First()

	config, err := memvault.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}
	svc, err := memvault.NewService(config)
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}
	defer svc.Close()

	results, err := svc.Search(context.Background(), c.String("index"), query,
		nil, float32(c.Float64("min-relevance")), c.Int("limit"))
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("no results")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s (file %s part %d)\n%s\n\n",
			i+1, r.Score, r.Chunk.DocumentID, r.Chunk.FileID, r.Chunk.Part, r.Chunk.Text)
	}
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
