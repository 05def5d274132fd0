package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/phuslu/log"
	"github.com/urfave/cli/v2"

	"kbapi/internal/app"
	"kbapi/internal/config"
	"kbapi/internal/database"
	"kbapi/internal/database/migration"
	"kbapi/internal/logging"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	versionFlags := []cli.Flag{
		&cli.StringFlag{
			Name:     "tenant",
			Aliases:  []string{"t"},
			Usage:    "Tenant ID",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "document",
			Aliases:  []string{"d"},
			Usage:    "Document ID",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "version",
			Usage:    "Version ID",
			Required: true,
		},
	}

	return &cli.App{
		Name:  "kbctl",
		Usage: "Operator commands for the knowledge base",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Create the database schema if it does not exist",
				Action: migrateCommand,
			},
			{
				Name:   "reingest",
				Usage:  "Rebuild the chunks of a PENDING version without approving it",
				Action: reingestCommand,
				Flags:  versionFlags,
			},
			{
				Name:   "approve",
				Usage:  "Ingest a PENDING version and approve it",
				Action: approveCommand,
				Flags: append(versionFlags, &cli.StringFlag{
					Name:     "admin",
					Usage:    "User ID of the approving tenant admin",
					Required: true,
				}),
			},
		},
	}
}

// env is what every command needs: configuration, a logger and a
// cancellable context.
type env struct {
	ctx    context.Context
	cfg    *config.AppConfig
	logger *log.Logger
}

func newEnv(c *cli.Context) (*env, context.CancelFunc) {
	cfg := config.Load()
	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	return &env{
		ctx:    ctx,
		cfg:    cfg,
		logger: logging.New(os.Stderr, c.String("log-level"), logging.Location(cfg.TimeZone)),
	}, cancel
}

func migrateCommand(c *cli.Context) error {
	e, cancel := newEnv(c)
	defer cancel()

	db, err := database.NewPostgres(e.ctx, e.cfg.Database, e.logger)
	if err != nil {
		return err
	}
	defer db.Close()

	return migration.EnsureMigrated(e.ctx, db, e.logger, e.cfg.Database.Host)
}

func reingestCommand(c *cli.Context) error {
	return withComponents(c, func(e *env, comps *app.Components) error {
		n, err := comps.Orchestrator.Ingest(e.ctx, c.String("tenant"), c.String("document"), c.String("version"))
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "version %s: %d chunks stored\n", c.String("version"), n)
		return nil
	})
}

func approveCommand(c *cli.Context) error {
	return withComponents(c, func(e *env, comps *app.Components) error {
		res, err := comps.Orchestrator.Approve(e.ctx, c.String("tenant"), c.String("document"), c.String("version"), c.String("admin"))
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "version %s approved with %d chunks\n", res.Version.ID, res.Chunks)
		return nil
	})
}

func withComponents(c *cli.Context, fn func(e *env, comps *app.Components) error) error {
	e, cancel := newEnv(c)
	defer cancel()

	db, err := database.NewPostgres(e.ctx, e.cfg.Database, e.logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if e.cfg.MinIO.Endpoint == "" {
		return fmt.Errorf("MINIO_ENDPOINT is required: stored files are read from object storage")
	}
	files, err := app.OpenStorage(e.cfg.MinIO, e.logger)
	if err != nil {
		return err
	}

	comps, err := app.New(e.cfg, db, files, nil, e.logger)
	if err != nil {
		return err
	}
	defer comps.Close()

	return fn(e, comps)
}
