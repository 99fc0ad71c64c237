package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"gwi.com/persona-chat/internal/api"
	"gwi.com/persona-chat/internal/config"
	"gwi.com/persona-chat/internal/logger"
)

func main() {
	app := &cli.App{
		Name:  "persona-chat",
		Usage: "Persona chat bots grounded in uploaded documents",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP API",
				Action: serveCommand,
			},
			{
				Name:   "ingest",
				Usage:  "Attach a local document to a bot and index it",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "bot",
						Aliases:  []string{"b"},
						Usage:    "ID of the bot that receives the document",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Path to the document",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "mime",
						Usage: "MIME type of the document",
						Value: "text/plain",
					},
				},
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// setup loads configuration and builds the application for a command.
func setup(ctx context.Context) (*application, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l, err := logger.New(cfg.LogMode, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	app, err := newApplication(ctx, cfg, l)
	if err != nil {
		l.Sync()
		return nil, err
	}
	return app, nil
}

func serveCommand(c *cli.Context) error {
	app, err := setup(c.Context)
	if err != nil {
		return err
	}
	defer app.log.Sync()

	if swept, err := app.bots.SweepOrphanedVectors(c.Context); err != nil {
		app.log.Warn("orphaned vector sweep failed", "err", err)
	} else if swept > 0 {
		app.log.Info("removed orphaned vectors", "count", swept)
	}

	srv := &http.Server{
		Addr:         ":" + app.cfg.HTTPPort,
		Handler:      api.NewRouter(app.handler()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 150 * time.Second, // above the router's request timeout
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		app.log.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		app.log.Info("shutting down server", "signal", sig.String())
	case err := <-errCh:
		app.close()
		return fmt.Errorf("could not listen on %s: %w", srv.Addr, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		app.log.Error("server forced to shutdown", "err", err)
	}

	// queued ingestion finishes before the store closes
	app.close()
	app.log.Info("server exited")
	return nil
}

func ingestCommand(c *cli.Context) error {
	app, err := setup(c.Context)
	if err != nil {
		return err
	}
	defer app.log.Sync()
	defer app.close()

	file, res, err := app.bots.ImportFile(c.Context, c.String("bot"), c.String("file"), c.String("mime"))
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	app.log.Info("ingestion complete",
		"bot_id", c.String("bot"),
		"file_id", file.ID,
		"chunks", res.Chunks,
		"indexed", res.Indexed,
		"dropped", res.Dropped)
	return nil
}
