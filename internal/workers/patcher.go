package workers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/studyhub/dashboard-api/internal/feed"
	"github.com/studyhub/dashboard-api/internal/stats"
)

// PatchWorker applies change-feed messages to cached snapshots
type PatchWorker struct {
	patcher *stats.Patcher
	logger  *zap.Logger
}

// NewPatchWorker creates a new patch worker
func NewPatchWorker(patcher *stats.Patcher, logger *zap.Logger) *PatchWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PatchWorker{
		patcher: patcher,
		logger:  logger,
	}
}

// ProcessMessage applies one change event and acknowledges the message.
// Events the patcher rejects are dead-lettered; the patcher has already
// scheduled a debounced refresh for the affected user.
func (w *PatchWorker) ProcessMessage(ctx context.Context, msg feed.MessageInterface) error {
	ev := msg.GetEvent()

	if err := w.patcher.Apply(ctx, ev); err != nil {
		if nackErr := msg.Nack(false); nackErr != nil {
			w.logger.Error("failed_to_nack_message",
				zap.String("event_id", ev.EventID),
				zap.Error(nackErr),
			)
		}
		return fmt.Errorf("failed to apply event: %w", err)
	}

	if ackErr := msg.Ack(); ackErr != nil {
		return fmt.Errorf("failed to ack event: %w", ackErr)
	}

	w.logger.Debug("event_applied",
		zap.String("event_id", ev.EventID),
		zap.String("table", string(ev.Table)),
		zap.String("event_type", string(ev.Type)),
		zap.String("user_id", ev.UserID.String()),
	)
	return nil
}
