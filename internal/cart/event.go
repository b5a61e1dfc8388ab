package cart

import "context"

// EventType names a cart change.
type EventType string

const (
	EventItemAdded   EventType = "item_added"
	EventItemUpdated EventType = "item_updated"
	EventItemRemoved EventType = "item_removed"
	EventCleared     EventType = "cleared"
	EventMigrated    EventType = "migrated"
)

// Event describes a committed cart change. Quantity is the added or
// resulting quantity for line events and the migrated line count for
// EventMigrated.
type Event struct {
	Type     EventType `json:"type"`
	Mode     Mode      `json:"mode"`
	ItemID   string    `json:"itemId,omitempty"`
	Quantity int       `json:"quantity,omitempty"`
}

// Publisher receives cart events after they are committed.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}
