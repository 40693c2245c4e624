// Package eventlogger records audit events asynchronously to one or more sinks.
package eventlogger

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
)

// ErrNotQueryable is returned by sinks that can only publish events.
var ErrNotQueryable = errors.New("event sink does not support queries")

// Event is one audit record. Data is marshaled to JSON when saved and comes back from a query
// as json.RawMessage.
type Event struct {
	ID        uuid.UUID         `json:"id"`
	Type      string            `json:"event_type"`
	Data      any               `json:"event_data,omitempty"`
	Metadata  map[string]string `json:"event_metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type EventOption func(*Event)

func WithType(eventType string) EventOption {
	return func(e *Event) {
		e.Type = eventType
	}
}

func WithData(data any) EventOption {
	return func(e *Event) {
		e.Data = data
	}
}

// WithMetadata merges metadata into the event, keeping keys set by earlier options.
func WithMetadata(metadata map[string]string) EventOption {
	return func(e *Event) {
		for k, v := range metadata {
			e.Metadata[k] = v
		}
	}
}

func NewEvent(opts ...EventOption) Event {
	e := Event{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),
		Metadata:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// DecodeData unmarshals the data of a queried event into v.
func (e Event) DecodeData(v any) error {
	switch data := e.Data.(type) {
	case json.RawMessage:
		return json.Unmarshal(data, v)
	case []byte:
		return json.Unmarshal(data, v)
	default:
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, v)
	}
}

// SortByTime orders events oldest first. Events with the same timestamp keep their order.
func SortByTime(events []Event) {
	slices.SortStableFunc(events, func(a, b Event) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

type EventLogger interface {
	Save(ctx context.Context, e Event) error
	GetByType(ctx context.Context, eventType string) ([]Event, error)
}
