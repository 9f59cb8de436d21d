package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"

	// OpResync tells a subscriber that events were dropped and it must
	// rebuild its state from the store.
	OpResync Op = "resync"
)

// Collection names shared by repositories and the change feed.
const (
	TableBookingRequests = "Booking_requests"
	TableCalendars       = "Property_calendars"
	TableConversations   = "Conversations"
	TableMessages        = "Messages"
	TableProfiles        = "Profiles"
	TableProperties      = "Properties"
)

// ChangeEvent is a row level change delivered by the change feed. Record holds
// the row after the change as JSON and is empty for deletes.
type ChangeEvent struct {
	ID          string          `json:"event_id"`
	Table       string          `json:"table"`
	Op          Op              `json:"op"`
	Key         string          `json:"key"`
	Record      json.RawMessage `json:"record,omitempty"`
	CommittedAt time.Time       `json:"committed_at"`
}

func NewEvent(table string, op Op, key string, record any) (ChangeEvent, error) {
	ev := ChangeEvent{
		ID:          uuid.New().String(),
		Table:       table,
		Op:          op,
		Key:         key,
		CommittedAt: time.Now().UTC(),
	}
	if record != nil {
		raw, err := json.Marshal(record)
		if err != nil {
			return ChangeEvent{}, fmt.Errorf("failed to encode %s record: %w", table, err)
		}
		ev.Record = raw
	}
	return ev, nil
}

func resyncEvent(table string) ChangeEvent {
	return ChangeEvent{
		ID:          uuid.New().String(),
		Table:       table,
		Op:          OpResync,
		CommittedAt: time.Now().UTC(),
	}
}

// Decode unmarshals the record payload into v.
func (e ChangeEvent) Decode(v any) error {
	if len(e.Record) == 0 {
		return fmt.Errorf("%s event %s on %s carries no record", e.Op, e.ID, e.Table)
	}
	if err := json.Unmarshal(e.Record, v); err != nil {
		return fmt.Errorf("failed to decode %s record: %w", e.Table, err)
	}
	return nil
}

// Filter selects events by table and an optional predicate. Resync events
// for the table always pass.
type Filter struct {
	Table string
	Match func(ChangeEvent) bool
}

func (f Filter) Matches(ev ChangeEvent) bool {
	if f.Table != "" && f.Table != ev.Table {
		return false
	}
	if ev.Op == OpResync || f.Match == nil {
		return true
	}
	return f.Match(ev)
}
