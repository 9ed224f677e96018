// Command alertctl is the alert engine operations CLI.
//
// Usage:
//
//	alertctl migrate
//	alertctl seed
//	alertctl event --file event.json
//	alertctl queue process
//	alertctl queue list --status failed --limit 50
//	alertctl queue retry --id 4be0c3d5-...
//	alertctl queue remove --id 4be0c3d5-...
//	alertctl throttle reset --user user-123 --search 42
//	alertctl cleanup
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/homescout/alert-engine/internal/config"
	"github.com/homescout/alert-engine/internal/db"
	"github.com/homescout/alert-engine/internal/engine"
	"github.com/homescout/alert-engine/internal/event"
	"github.com/homescout/alert-engine/internal/maintenance"
	"github.com/homescout/alert-engine/internal/match"
	"github.com/homescout/alert-engine/internal/notify"
	"github.com/homescout/alert-engine/internal/prefs"
	"github.com/homescout/alert-engine/internal/queue"
	"github.com/homescout/alert-engine/internal/search"
	"github.com/homescout/alert-engine/internal/seed"
	"github.com/homescout/alert-engine/internal/throttle"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "alertctl",
		Short: "Alert engine operations CLI",
	}

	root.AddCommand(migrateCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(eventCmd())
	root.AddCommand(queueCmd())
	root.AddCommand(throttleCmd())
	root.AddCommand(cleanupCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// migrate / seed commands
// --------------------------------------------------------------------------

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
				return err
			}
			logger.Info("Migrations applied")
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert demo searches and preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				return seed.Demo(ctx, pool.Pool, logger)
			})
		},
	}
}

// --------------------------------------------------------------------------
// event command
// --------------------------------------------------------------------------

func eventCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Ingest one listing change event from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				payload, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read event file: %w", err)
				}
				ev, err := event.Parse(payload)
				if err != nil {
					return fmt.Errorf("parse event: %w", err)
				}

				eng, _ := buildPipeline(cfg, pool)
				sum, err := eng.HandleEvent(ctx, ev)
				if err != nil {
					return err
				}
				logger.Info("Event processed",
					"listing_id", ev.ListingID,
					"matched", sum.Matched,
					"dispatched", sum.Dispatched,
					"queued", sum.Queued,
					"skipped", sum.Skipped)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Path to the event JSON file")
	cmd.MarkFlagRequired("file")
	return cmd
}

// --------------------------------------------------------------------------
// queue commands
// --------------------------------------------------------------------------

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Retry queue operations",
	}
	cmd.AddCommand(queueProcessCmd())
	cmd.AddCommand(queueListCmd())
	cmd.AddCommand(queueRetryCmd())
	cmd.AddCommand(queueRemoveCmd())
	return cmd
}

func queueProcessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Process one retry queue batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				_, proc := buildPipeline(cfg, pool)
				res, err := proc.ProcessBatch(ctx)
				if err != nil {
					return err
				}
				logger.Info("Batch processed",
					"processed", res.Processed,
					"sent", res.Sent,
					"requeued", res.Requeued,
					"failed", res.Failed)
				return nil
			})
		},
	}
}

func queueListCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List retry queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				items, err := queue.NewPGStore(pool.Pool).List(ctx, queue.Status(status), limit)
				if err != nil {
					return err
				}
				for _, it := range items {
					logger.Info("queue item",
						"id", it.ID,
						"user_id", it.UserID,
						"search_id", it.SearchID,
						"listing_id", it.ListingID,
						"status", string(it.Status),
						"reason", string(it.Reason),
						"attempts", it.Attempts,
						"retry_after", it.RetryAfter,
						"last_error", it.LastError)
				}
				logger.Info("Listed queue items", "count", len(items))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum items")
	return cmd
}

func queueRetryCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Reset a terminal queue item for reprocessing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				uid, err := uuid.Parse(id)
				if err != nil {
					return fmt.Errorf("invalid queue item id: %w", err)
				}
				if err := queue.NewPGStore(pool.Pool).Retry(ctx, uid); err != nil {
					return err
				}
				logger.Info("Queue item reset for retry", "id", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Queue item UUID")
	cmd.MarkFlagRequired("id")
	return cmd
}

func queueRemoveCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Delete a queue item",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				uid, err := uuid.Parse(id)
				if err != nil {
					return fmt.Errorf("invalid queue item id: %w", err)
				}
				if err := queue.NewPGStore(pool.Pool).Remove(ctx, uid); err != nil {
					return err
				}
				logger.Info("Queue item removed", "id", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Queue item UUID")
	cmd.MarkFlagRequired("id")
	return cmd
}

// --------------------------------------------------------------------------
// throttle commands
// --------------------------------------------------------------------------

func throttleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "throttle",
		Short: "Throttle state operations",
	}
	cmd.AddCommand(throttleResetCmd())
	return cmd
}

func throttleResetCmd() *cobra.Command {
	var userID string
	var searchID int64
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear today's throttle counters for a (user, search) key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				manager := throttle.NewManager(throttle.NewPGStore(pool.Pool),
					cfg.ThrottlingEnabled, cfg.Location(), logger)
				if err := manager.ResetKey(ctx, userID, searchID); err != nil {
					return err
				}
				logger.Info("Throttle counters reset", "user_id", userID, "search_id", searchID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id")
	cmd.Flags().Int64Var(&searchID, "search", 0, "Search id")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("search")
	return cmd
}

// --------------------------------------------------------------------------
// cleanup command
// --------------------------------------------------------------------------

func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Run the retention sweep now (expire, purge, trim counters)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				maintenance.Cleanup(ctx, pool, logger)
				logger.Info("Cleanup sweep finished")
				return nil
			})
		},
	}
}

// --------------------------------------------------------------------------
// helpers
// --------------------------------------------------------------------------

func withPool(fn func(ctx context.Context, cfg *config.Config, pool *db.Pool) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}

// buildPipeline wires the same match/throttle/dispatch stack the server
// uses, minus the school directory (CLI runs are offline-friendly).
func buildPipeline(cfg *config.Config, pool *db.Pool) (*engine.Engine, *queue.Processor) {
	senders := map[string]notify.Sender{}
	if push := notify.NewPushSender(cfg.PushCredentialsFile, logger); push != nil {
		senders[prefs.ChannelPush] = push
	}
	for _, ch := range cfg.DevChannels {
		senders[ch] = notify.NewLogSender(ch, logger)
	}

	prefStore := prefs.NewPGStore(pool.Pool)
	manager := throttle.NewManager(throttle.NewPGStore(pool.Pool),
		cfg.ThrottlingEnabled, cfg.Location(), logger)
	router := notify.NewRouter(notify.NewPGStore(pool.Pool), senders, logger)
	queueStore := queue.NewPGStore(pool.Pool)
	eng := engine.New(search.NewPGStore(pool.Pool), match.New(nil, logger),
		manager, router, queueStore, prefStore, logger)
	proc := queue.NewProcessor(queueStore, manager, router, prefStore, logger)
	return eng, proc
}
