package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/storage/postgres"
	"github.com/vladislavdragonenkov/orderflow/internal/version"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 5
	defaultListLimit  = 100
)

// deadLetterStore покрывает часть outbox, нужную оператору.
type deadLetterStore interface {
	Stats(ctx context.Context, maxRetries int) (domain.OutboxStats, error)
	DeadLetters(ctx context.Context, maxRetries, limit int) ([]domain.OutboxMessage, error)
	Requeue(ctx context.Context, ids []string) (int, error)
}

type openFunc func(ctx context.Context, dsn string) (deadLetterStore, func() error, error)

func openPostgres(ctx context.Context, dsn string) (deadLetterStore, func() error, error) {
	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewOutboxRepository(store), store.Close, nil
}

func main() {
	_ = godotenv.Load()
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if err := newApp(openPostgres, newSaramaConsumer, os.Stdout).Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(open openFunc, newConsumer consumerFactory, out io.Writer) *cli.App {
	return &cli.App{
		Name:    "outbox-dlq",
		Usage:   "inspect and requeue outbox messages that exhausted their retries",
		Version: version.Short(),
		Writer:  out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "dsn",
				Usage:    "PostgreSQL DSN",
				EnvVars:  []string{"ORDERFLOW_POSTGRES_DSN"},
				Required: true,
			},
			&cli.IntFlag{
				Name:    "max-retries",
				Usage:   "retry threshold of the relay",
				Value:   defaultMaxRetries,
				EnvVars: []string{"ORDERFLOW_OUTBOX_MAX_RETRIES"},
			},
			&cli.DurationFlag{Name: "timeout", Value: defaultTimeout},
		},
		Commands: []*cli.Command{
			{
				Name:   "stats",
				Usage:  "show backlog and poison counters",
				Action: withStore(open, statsAction),
			},
			{
				Name:  "list",
				Usage: "list poison messages",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: defaultListLimit},
					&cli.BoolFlag{Name: "json", Usage: "print messages as JSON lines"},
				},
				Action: withStore(open, listAction),
			},
			{
				Name:      "requeue",
				Usage:     "reset retry counters so the relay publishes messages again",
				ArgsUsage: "[outbox-id...]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "all", Usage: "requeue every poison message"},
				},
				Action: withStore(open, requeueAction),
			},
			{
				Name:  "from-kafka",
				Usage: "requeue messages referenced by the Kafka dead letter topic",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "brokers", EnvVars: []string{"ORDERFLOW_KAFKA_BROKERS"}, Required: true},
					&cli.StringFlag{Name: "topic", Value: defaultDLQTopic, EnvVars: []string{"ORDERFLOW_KAFKA_DLQ_TOPIC"}},
					&cli.IntFlag{Name: "limit", Value: defaultListLimit},
					&cli.DurationFlag{Name: "idle-timeout", Value: defaultIdleTimeout},
					&cli.BoolFlag{Name: "execute", Usage: "requeue; default is dry-run"},
				},
				Action: withStore(open, fromKafkaAction(newConsumer)),
			},
		},
	}
}

func withStore(open openFunc, action func(ctx context.Context, c *cli.Context, store deadLetterStore) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
		defer cancel()

		store, closeFn, err := open(ctx, c.String("dsn"))
		if err != nil {
			return err
		}
		defer func() { _ = closeFn() }()

		return action(ctx, c, store)
	}
}

func statsAction(ctx context.Context, c *cli.Context, store deadLetterStore) error {
	stats, err := store.Stats(ctx, c.Int("max-retries"))
	if err != nil {
		return err
	}

	oldest := "-"
	if !stats.OldestPendingAt.IsZero() {
		oldest = stats.OldestPendingAt.Format(time.RFC3339)
	}
	_, err = fmt.Fprintf(c.App.Writer, "pending=%d poison=%d oldest_pending=%s\n", stats.PendingCount, stats.PoisonCount, oldest)
	return err
}

type deadLetterView struct {
	ID          string          `json:"id"`
	AggregateID string          `json:"aggregate_id"`
	Type        string          `json:"type"`
	OccurredAt  time.Time       `json:"occurred_at"`
	RetryCount  int             `json:"retry_count"`
	Error       string          `json:"error"`
	Content     json.RawMessage `json:"content"`
}

func listAction(ctx context.Context, c *cli.Context, store deadLetterStore) error {
	messages, err := store.DeadLetters(ctx, c.Int("max-retries"), c.Int("limit"))
	if err != nil {
		return err
	}

	out := c.App.Writer
	if c.Bool("json") {
		enc := json.NewEncoder(out)
		for _, msg := range messages {
			view := deadLetterView{
				ID:          msg.ID,
				AggregateID: msg.AggregateID,
				Type:        string(msg.Type),
				OccurredAt:  msg.OccurredAt,
				RetryCount:  msg.RetryCount,
				Error:       msg.Error,
				Content:     json.RawMessage(msg.Content),
			}
			if !json.Valid(msg.Content) {
				view.Content = nil
			}
			if err := enc.Encode(view); err != nil {
				return err
			}
		}
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTYPE\tAGGREGATE\tRETRIES\tOCCURRED AT\tERROR")
	for _, msg := range messages {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			msg.ID, msg.Type, msg.AggregateID, msg.RetryCount, msg.OccurredAt.Format(time.RFC3339), msg.Error)
	}
	return w.Flush()
}

func requeueAction(ctx context.Context, c *cli.Context, store deadLetterStore) error {
	ids := cleanIDs(c.Args().Slice())
	if c.Bool("all") {
		if len(ids) > 0 {
			return fmt.Errorf("use either --all or explicit ids")
		}
		messages, err := store.DeadLetters(ctx, c.Int("max-retries"), 0)
		if err != nil {
			return err
		}
		for _, msg := range messages {
			ids = append(ids, msg.ID)
		}
	}
	if len(ids) == 0 {
		return fmt.Errorf("nothing to requeue: pass outbox ids or --all")
	}

	n, err := store.Requeue(ctx, ids)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"requested": len(ids), "requeued": n}).Info("outbox messages requeued")
	_, err = fmt.Fprintf(c.App.Writer, "requeued %d of %d\n", n, len(ids))
	return err
}

func cleanIDs(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	ids := make([]string, 0, len(raw))
	for _, chunk := range raw {
		for _, id := range strings.Split(chunk, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}
