package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"vansales/internal/core"
)

// Operations carried by a RecordEvent.
const (
	OpCreate  = "create"
	OpUpdate  = "update"
	OpDelete  = "delete"
	OpReplace = "replace"
)

var ErrInvalidEvent = errors.New("invalid record event")

// RecordEvent announces a change to one collection. It is deliberately
// small: consumers re-read the collection from the store.
type RecordEvent struct {
	Kind      core.Kind `json:"kind"`
	Op        string    `json:"op"`
	ID        string    `json:"id,omitempty"`
	Rows      int       `json:"rows,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRecordEvent creates an event stamped with the current time.
func NewRecordEvent(kind core.Kind, op, id string) RecordEvent {
	return RecordEvent{
		Kind:      kind,
		Op:        op,
		ID:        id,
		Timestamp: time.Now().UTC(),
	}
}

// Validate checks the kind and operation.
func (e RecordEvent) Validate() error {
	if !e.Kind.IsValid() {
		return fmt.Errorf("%w: kind %q", ErrInvalidEvent, e.Kind)
	}
	switch e.Op {
	case OpCreate, OpUpdate, OpDelete:
		if e.ID == "" {
			return fmt.Errorf("%w: %s without id", ErrInvalidEvent, e.Op)
		}
	case OpReplace:
	default:
		return fmt.Errorf("%w: op %q", ErrInvalidEvent, e.Op)
	}
	return nil
}

// ToJSON converts the event to JSON bytes
func (e RecordEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// RecordEventFromJSON decodes and validates an event.
func RecordEventFromJSON(data []byte) (RecordEvent, error) {
	var e RecordEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return RecordEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := e.Validate(); err != nil {
		return RecordEvent{}, err
	}
	return e, nil
}
