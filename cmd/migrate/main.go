package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/vladislavdragonenkov/orderflow/internal/storage/postgres"
	"github.com/vladislavdragonenkov/orderflow/internal/version"
)

const defaultTimeout = 30 * time.Second

type migrator interface {
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	Migrations(ctx context.Context) ([]postgres.MigrationState, error)
	Close() error
}

type openFunc func(ctx context.Context, dsn string) (migrator, error)

func openPostgres(ctx context.Context, dsn string) (migrator, error) {
	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func main() {
	_ = godotenv.Load()

	if err := newApp(openPostgres, os.Stdout).Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(open openFunc, out io.Writer) *cli.App {
	stepsFlag := &cli.IntFlag{Name: "steps", Usage: "number of migrations to apply or roll back"}

	return &cli.App{
		Name:    "migrate",
		Usage:   "manage the orderflow PostgreSQL schema",
		Version: version.Short(),
		Writer:  out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "dsn",
				Usage:    "PostgreSQL DSN",
				EnvVars:  []string{"ORDERFLOW_POSTGRES_DSN"},
				Required: true,
			},
			&cli.DurationFlag{Name: "timeout", Value: defaultTimeout, Usage: "overall command timeout"},
		},
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply pending migrations (all by default)",
				Flags: []cli.Flag{stepsFlag},
				Action: withMigrator(open, func(ctx context.Context, c *cli.Context, m migrator) error {
					if err := m.MigrateUp(ctx, c.Int("steps")); err != nil {
						return fmt.Errorf("migrate up: %w", err)
					}
					return printStatus(ctx, c.App.Writer, m)
				}),
			},
			{
				Name:  "down",
				Usage: "roll back migrations (one by default)",
				Flags: []cli.Flag{stepsFlag},
				Action: withMigrator(open, func(ctx context.Context, c *cli.Context, m migrator) error {
					if err := m.MigrateDown(ctx, c.Int("steps")); err != nil {
						return fmt.Errorf("migrate down: %w", err)
					}
					return printStatus(ctx, c.App.Writer, m)
				}),
			},
			{
				Name:  "status",
				Usage: "list embedded migrations and when they were applied",
				Action: withMigrator(open, func(ctx context.Context, c *cli.Context, m migrator) error {
					return printStatus(ctx, c.App.Writer, m)
				}),
			},
		},
	}
}

func withMigrator(open openFunc, action func(ctx context.Context, c *cli.Context, m migrator) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
		defer cancel()

		m, err := open(ctx, c.String("dsn"))
		if err != nil {
			return err
		}
		defer m.Close()

		return action(ctx, c, m)
	}
}

func printStatus(ctx context.Context, out io.Writer, m migrator) error {
	states, err := m.Migrations(ctx)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED AT")
	for _, st := range states {
		applied := "pending"
		if st.AppliedAt != nil {
			applied = st.AppliedAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", st.Version, st.Name, applied)
	}
	return w.Flush()
}
