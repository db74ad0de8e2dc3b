package workers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/studyhub/dashboard-api/internal/cache"
	"github.com/studyhub/dashboard-api/internal/feed"
	"github.com/studyhub/dashboard-api/internal/models"
	"github.com/studyhub/dashboard-api/internal/stats"
)

// mockMessage implements feed.MessageInterface
type mockMessage struct {
	event   *models.ChangeEvent
	acked   bool
	nacked  bool
	requeue bool
}

func (m *mockMessage) Ack() error {
	m.acked = true
	return nil
}

func (m *mockMessage) Nack(requeue bool) error {
	m.nacked = true
	m.requeue = requeue
	return nil
}

func (m *mockMessage) GetEvent() *models.ChangeEvent {
	return m.event
}

var _ feed.MessageInterface = (*mockMessage)(nil)

func TestProcessMessageAcksAppliedEvent(t *testing.T) {
	c := cache.New(nil, time.Hour, nil)
	userID := uuid.New()

	snap := models.NewDashboardStats(userID)
	snap.TotalNotes = 1
	snap.LastFetched = time.Now()
	c.Put(context.Background(), userID, snap)

	p := stats.NewPatcher(c, nil, time.Second, nil)
	defer p.Close()
	w := NewPatchWorker(p, nil)

	ev := models.NewChangeEvent(models.EventInsert, models.TableNotes, userID)
	ev.New = &models.ItemSummary{ID: uuid.New(), Title: "Chloroplasts", CreatedAt: time.Now()}
	msg := &mockMessage{event: ev}

	if err := w.ProcessMessage(context.Background(), msg); err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if !msg.acked || msg.nacked {
		t.Error("applied event should be acked")
	}

	got, _ := c.Get(context.Background(), userID)
	if got.TotalNotes != 2 {
		t.Errorf("expected 2 notes, got %d", got.TotalNotes)
	}
}

func TestProcessMessageDeadLettersInvalidEvent(t *testing.T) {
	c := cache.New(nil, time.Hour, nil)
	p := stats.NewPatcher(c, nil, time.Second, nil)
	defer p.Close()
	w := NewPatchWorker(p, nil)

	// INSERT without a new row fails validation
	ev := &models.ChangeEvent{Type: models.EventInsert, Table: models.TableNotes, UserID: uuid.New()}
	msg := &mockMessage{event: ev}

	if err := w.ProcessMessage(context.Background(), msg); err == nil {
		t.Fatal("expected error for invalid event")
	}
	if !msg.nacked || msg.requeue {
		t.Error("invalid event should be nacked without requeue")
	}
	if msg.acked {
		t.Error("invalid event should not be acked")
	}
}
