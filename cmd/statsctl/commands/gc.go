package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/studyhub/dashboard-api/internal/config"
	"github.com/studyhub/dashboard-api/internal/feed"
)

// NewGCCmd creates the gc command
func NewGCCmd() *cobra.Command {
	var retention time.Duration

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Purge expired messages from the dead letter queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			changeFeed, err := feed.NewRabbitMQFeed(cfg.RabbitMQURL)
			if err != nil {
				return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
			}
			defer func() {
				if err := changeFeed.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close RabbitMQ connection: %v\n", err)
				}
			}()

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			purged, err := changeFeed.PurgeOlderThan(ctx, retention)
			if err != nil {
				return fmt.Errorf("failed to purge dead letter queue: %w", err)
			}

			fmt.Printf("✓ Purged %d dead-lettered messages older than %s\n", purged, retention)
			return nil
		},
	}

	cmd.Flags().DurationVar(&retention, "retention", 24*time.Hour, "Keep dead letters younger than this")

	return cmd
}
