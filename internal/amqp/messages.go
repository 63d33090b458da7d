package amqp

import (
	"encoding/json"
	"time"
)

// Message kinds carried on the archive queue.
const (
	KindArchive = "archive"
	KindDelete  = "delete"
)

// RecordMessage is the lightweight envelope for archive traffic. It
// carries only the record id and version; the worker fetches the full
// record from the database.
type RecordMessage struct {
	Kind      string    `json:"kind"`
	ID        int64     `json:"id"`
	Version   int64     `json:"version,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewArchiveMessage announces a created or updated record.
func NewArchiveMessage(id, version int64) *RecordMessage {
	return &RecordMessage{
		Kind:      KindArchive,
		ID:        id,
		Version:   version,
		Timestamp: time.Now(),
	}
}

// NewDeleteMessage announces a removed record.
func NewDeleteMessage(id int64) *RecordMessage {
	return &RecordMessage{
		Kind:      KindDelete,
		ID:        id,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RecordMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecordMessageFromJSON creates a message from JSON bytes
func RecordMessageFromJSON(data []byte) (*RecordMessage, error) {
	var msg RecordMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
