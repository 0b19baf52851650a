package actionevent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// PayloadField is the stream entry field carrying the JSON event.
const PayloadField = "payload"

var (
	ErrMalformedPayload = errors.New("malformed_event_payload")
	ErrMissingTrigger   = errors.New("missing_trigger_id")
	ErrMissingModule    = errors.New("missing_module_id")
	ErrMissingUser      = errors.New("missing_user_id")
	ErrMissingEntity    = errors.New("missing_entity_id")
)

// Event is a user action emitted by a content service.
type Event struct {
	TriggerID string          `json:"triggerId"`
	ModuleID  string          `json:"moduleId"`
	UserID    uuid.UUID       `json:"userId"`
	EntityID  uuid.UUID       `json:"entityId"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	EventID   string          `json:"eventId,omitempty"`
}

// Decode parses and validates a stream payload.
func Decode(payload []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	evt.TriggerID = strings.TrimSpace(evt.TriggerID)
	evt.ModuleID = strings.TrimSpace(evt.ModuleID)
	evt.EventID = strings.TrimSpace(evt.EventID)
	if isNullJSON(evt.Metadata) {
		evt.Metadata = nil
	}
	if err := evt.Validate(); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return evt, nil
}

// Encode serializes the event for the stream.
func (e Event) Encode() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

func (e Event) Validate() error {
	switch {
	case e.TriggerID == "":
		return ErrMissingTrigger
	case e.ModuleID == "":
		return ErrMissingModule
	case e.UserID == uuid.Nil:
		return ErrMissingUser
	case e.EntityID == uuid.Nil:
		return ErrMissingEntity
	}
	return nil
}

// IdempotencyKey identifies the logical event. Producer supplied ids win;
// otherwise the stream entry id stands in for arrival time, and it stays the
// same across redeliveries of that entry.
func (e Event) IdempotencyKey(entryID string) string {
	if e.EventID != "" {
		return e.EventID
	}
	return e.TriggerID + ":" + e.UserID.String() + ":" + entryID
}

// TypedMetadata decodes the metadata into the variant registered for the trigger.
func (e Event) TypedMetadata() Metadata {
	return DecodeMetadata(e.TriggerID, e.Metadata)
}

func isNullJSON(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}
