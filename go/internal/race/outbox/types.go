package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeMatchCreated   = "MatchCreated"
	EventTypeMatchCompleted = "MatchCompleted"
)

// Event is one match lifecycle record handed to a Publisher.
type Event struct {
	ID        uuid.UUID
	RoomID    string
	EventType string
	Payload   []byte
	CreatedAt time.Time
}

// Publisher delivers events to whoever tracks match history.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NewEvent marshals payload into a fresh event.
func NewEvent(roomID, eventType string, payload any, now time.Time) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:        uuid.New(),
		RoomID:    roomID,
		EventType: eventType,
		Payload:   data,
		CreatedAt: now,
	}, nil
}
