package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"orderservice/pkg/order/infrastructure/mysql"
)

const appID = "orderservice"

func main() {
	logger := log.New()
	logger.SetFormatter(&log.JSONFormatter{})
	entry := logger.WithField("app", appID)

	var c *config
	app := &cli.App{
		Name:  appID,
		Usage: "order creation and enrichment service",
		Before: func(*cli.Context) error {
			var err error
			if c, err = parseEnv(); err != nil {
				return err
			}
			level, err := log.ParseLevel(c.LogLevel)
			if err != nil {
				return errors.Wrapf(err, "invalid LOG_LEVEL %q", c.LogLevel)
			}
			logger.SetLevel(level)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "service",
				Usage: "serve the HTTP API, gRPC health and metrics",
				Action: func(ctx *cli.Context) error {
					return runService(ctx.Context, c, entry)
				},
			},
			{
				Name:  "migrate",
				Usage: "apply pending database migrations and exit",
				Action: func(ctx *cli.Context) error {
					return runMigrations(ctx.Context, c, entry)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		entry.WithError(err).Fatal("application stopped with error")
	}
}

func runMigrations(ctx context.Context, c *config, logger log.FieldLogger) error {
	db, err := mysql.Open(ctx, c.database())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := mysql.Migrate(db, c.DBName); err != nil {
		return err
	}
	logger.WithField("database", c.DBName).Info("migrations applied")
	return nil
}
