package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/studyhub/dashboard-api/internal/cache"
	"github.com/studyhub/dashboard-api/internal/config"
	"github.com/studyhub/dashboard-api/internal/database"
	"github.com/studyhub/dashboard-api/internal/stats"
)

// NewRefreshCmd creates the refresh command
func NewRefreshCmd() *cobra.Command {
	var user string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Force a full recompute of a user's dashboard stats",
		Long:  "Runs both aggregation phases synchronously and writes the snapshot to the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(user)
			if err != nil {
				return fmt.Errorf("--user must be a valid UUID: %w", err)
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			db, err := database.New(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer func() {
				if err := db.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
				}
			}()

			store, err := cache.NewRedisStore(cfg.RedisURL)
			if err != nil {
				return fmt.Errorf("failed to connect to Redis: %w", err)
			}
			defer closeStore(store)

			snapCache := cache.New(store, cfg.CacheTTL, zap.NewNop())
			aggregator := stats.NewAggregator(
				database.NewActivityRepository(db),
				database.NewAggregateRepository(db),
				snapCache,
				stats.Options{
					StepTimeout:      cfg.StepTimeout,
					StepDelay:        cfg.StepDelay,
					CountRetryDelay:  cfg.CountRetryDelay,
					FallbackRowLimit: cfg.FallbackRowLimit,
				},
				zap.NewNop(),
			)
			defer aggregator.Close()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			fmt.Printf("Refreshing stats for user %s\n", userID)

			snap, err := aggregator.Fetch(ctx, userID, true)
			if err != nil {
				return fmt.Errorf("failed to fetch stats: %w", err)
			}
			fmt.Printf("✓ Counts fetched (%d notes, %d recordings, %d documents)\n",
				snap.TotalNotes, snap.TotalRecordings, snap.TotalDocuments)

			// Wait for the background aggregate phase to settle
			for {
				state := aggregator.State(userID)
				if !state.Loading {
					if state.Err != nil {
						return fmt.Errorf("aggregation failed: %w", state.Err)
					}
					break
				}
				select {
				case <-ctx.Done():
					return fmt.Errorf("timed out waiting for aggregation: %w", ctx.Err())
				case <-time.After(100 * time.Millisecond):
				}
			}

			fmt.Println("✓ Aggregates computed and snapshot cached")
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "User ID (required)")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "How long to wait for aggregation")
	if err := cmd.MarkFlagRequired("user"); err != nil {
		panic(err)
	}

	return cmd
}
