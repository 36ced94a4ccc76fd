package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/timer"
)

// Message is the envelope of everything pushed to a board.
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type MessageType string

const (
	// MessageTypeSnapshot carries every visible timer, sent once on connect.
	MessageTypeSnapshot     MessageType = "Snapshot"
	MessageTypeTimerUpdated MessageType = "TimerUpdated"
	MessageTypeNotification MessageType = "Notification"
)

// SnapshotPayload is the data of a Snapshot message.
type SnapshotPayload struct {
	Timers []timer.View `json:"timers"`
}

func NewMessage(t MessageType, data any) (*Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s message: %w", t, err)
	}
	return &Message{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}, nil
}

// ParsePayload decodes the data of a message into its payload type.
func ParsePayload(m *Message) (any, error) {
	switch m.Type {
	case MessageTypeSnapshot:
		var payload SnapshotPayload
		if err := json.Unmarshal(m.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil
	case MessageTypeTimerUpdated:
		var payload timer.View
		if err := json.Unmarshal(m.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil
	case MessageTypeNotification:
		var payload timer.Notification
		if err := json.Unmarshal(m.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil
	}
	return nil, fmt.Errorf("unknown message type %q", m.Type)
}
