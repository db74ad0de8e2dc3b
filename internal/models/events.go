package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType is the kind of row change carried by a change event
type EventType string

const (
	// EventInsert signals a newly created row
	EventInsert EventType = "INSERT"
	// EventUpdate signals a modified row
	EventUpdate EventType = "UPDATE"
	// EventDelete signals a removed row
	EventDelete EventType = "DELETE"
)

// ChangeTable names a table the change feed covers
type ChangeTable string

const (
	// TableNotes is the notes table
	TableNotes ChangeTable = "notes"
	// TableRecordings is the recordings table
	TableRecordings ChangeTable = "recordings"
	// TableDocuments is the documents table
	TableDocuments ChangeTable = "documents"
	// TableMessages is the chat messages table
	TableMessages ChangeTable = "messages"
	// TableScheduleItems is the schedule items table
	TableScheduleItems ChangeTable = "schedule_items"
)

// KnownTables lists the tables the patcher understands
var KnownTables = []ChangeTable{
	TableNotes,
	TableRecordings,
	TableDocuments,
	TableMessages,
	TableScheduleItems,
}

// Known reports whether the table is covered by the change feed
func (t ChangeTable) Known() bool {
	for _, k := range KnownTables {
		if t == k {
			return true
		}
	}
	return false
}

// ChangeEvent is one row-change notification from the change feed.
// EventID may be empty for producers that do not assign ids; deduplication
// only applies when it is set.
type ChangeEvent struct {
	EventID    string       `json:"event_id,omitempty"`
	Type       EventType    `json:"event_type"`
	Table      ChangeTable  `json:"table"`
	UserID     uuid.UUID    `json:"user_id"`
	New        *ItemSummary `json:"new,omitempty"`
	Old        *ItemSummary `json:"old,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// NewChangeEvent creates a change event with a fresh event id
func NewChangeEvent(eventType EventType, table ChangeTable, userID uuid.UUID) *ChangeEvent {
	return &ChangeEvent{
		EventID:    uuid.New().String(),
		Type:       eventType,
		Table:      table,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
	}
}

// Validate checks the event carries a supported type, a user id, and the
// payload its type requires
func (e *ChangeEvent) Validate() error {
	switch e.Type {
	case EventInsert, EventUpdate, EventDelete:
	default:
		return fmt.Errorf("invalid event_type: %q", e.Type)
	}
	if e.UserID == uuid.Nil {
		return fmt.Errorf("event is missing user_id")
	}
	if e.Type == EventInsert && e.New == nil {
		return fmt.Errorf("INSERT event is missing new row")
	}
	if e.Type == EventDelete && e.Old == nil {
		return fmt.Errorf("DELETE event is missing old row")
	}
	return nil
}
