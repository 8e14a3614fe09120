package events

import (
	"encoding/json"
	"time"
)

// Event kinds carried by EntryEventMessage.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// EntryEventMessage is a lightweight notification about one entry mutation.
// It carries only identifiers; consumers fetch the record themselves.
type EntryEventMessage struct {
	Event     string    `json:"event"`
	EntryID   int64     `json:"entry_id"`
	Owner     int64     `json:"owner"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEntryEventMessage creates an event message stamped with the current time.
func NewEntryEventMessage(event string, entryID, owner int64) *EntryEventMessage {
	return &EntryEventMessage{
		Event:     event,
		EntryID:   entryID,
		Owner:     owner,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *EntryEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EntryEventMessageFromJSON creates a message from JSON bytes.
func EntryEventMessageFromJSON(data []byte) (*EntryEventMessage, error) {
	var msg EntryEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
