package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"jizhang/internal/ledger"
)

// ChangeMessage is the wire form of a ledger change event.
type ChangeMessage struct {
	ledger.ChangeEvent
	PublishedAt time.Time `json:"published_at"`
}

// NewChangeMessage wraps ev for publishing.
func NewChangeMessage(ev ledger.ChangeEvent) *ChangeMessage {
	return &ChangeMessage{
		ChangeEvent: ev,
		PublishedAt: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON decodes a message and rejects bodies without a kind.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Kind == "" {
		return nil, fmt.Errorf("change message without kind")
	}
	return &msg, nil
}
