package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/studyhub/dashboard-api/internal/config"
	"github.com/studyhub/dashboard-api/internal/feed"
	"github.com/studyhub/dashboard-api/internal/models"
	"github.com/studyhub/dashboard-api/internal/validation"
)

// NewPublishCmd creates the publish command
func NewPublishCmd() *cobra.Command {
	var user string
	var table string
	var eventType string

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a change event onto the feed",
		Long:  "Publishes a synthetic change event; an UPDATE triggers a debounced full refresh for the user in the worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(user)
			if err != nil {
				return fmt.Errorf("--user must be a valid UUID: %w", err)
			}
			if err := validation.ValidateEventType(eventType); err != nil {
				return fmt.Errorf("--type: %w", err)
			}
			if err := validation.ValidateChangeTable(table); err != nil {
				return fmt.Errorf("--table: %w", err)
			}

			ev := models.NewChangeEvent(models.EventType(eventType), models.ChangeTable(table), userID)
			row := &models.ItemSummary{
				ID:        uuid.New(),
				Title:     "statsctl synthetic event",
				CreatedAt: time.Now().UTC(),
			}
			switch ev.Type {
			case models.EventInsert:
				ev.New = row
			case models.EventDelete:
				ev.Old = row
			}
			if err := ev.Validate(); err != nil {
				return fmt.Errorf("invalid event: %w", err)
			}

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

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := changeFeed.Publish(ctx, ev); err != nil {
				return fmt.Errorf("failed to publish event: %w", err)
			}

			fmt.Printf("✓ Published %s event %s for user %s (routing key %s)\n",
				ev.Type, ev.EventID, userID, feed.RoutingKey(ev.Table))
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "User ID (required)")
	cmd.Flags().StringVar(&table, "table", string(models.TableNotes), "Source table")
	cmd.Flags().StringVar(&eventType, "type", string(models.EventUpdate), "Event type (INSERT, UPDATE, DELETE)")
	if err := cmd.MarkFlagRequired("user"); err != nil {
		panic(err)
	}

	return cmd
}
