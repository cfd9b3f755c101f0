package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrUnknownType = errors.New("events: unknown event type")

// UnmarshalJSON decodes the payload into the concrete type selected by the "type" tag.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        string          `json:"id"`
		Type      Type            `json:"type"`
		Timestamp time.Time       `json:"timestamp"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p, err := decodePayload(raw.Type, raw.Payload)
	if err != nil {
		return err
	}
	*e = Event{ID: raw.ID, Type: raw.Type, Timestamp: raw.Timestamp, Payload: p}
	return nil
}

func decodePayload(t Type, data json.RawMessage) (Payload, error) {
	switch t {
	case MessageCreatedType:
		return decodeInto[MessageCreated](data)
	case MessageReadType:
		return decodeInto[MessageRead](data)
	case TypingStartType:
		return decodeInto[TypingStarted](data)
	case TypingStopType:
		return decodeInto[TypingStopped](data)
	case ThreadCreatedType:
		return decodeInto[ThreadCreated](data)
	case ThreadUpdatedType:
		return decodeInto[ThreadUpdated](data)
	case ThreadMessageCreatedType:
		return decodeInto[ThreadMessageCreated](data)
	case ConversationCreatedType:
		return decodeInto[ConversationCreated](data)
	case StoreResetType:
		return decodeInto[StoreReset](data)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
}

func decodeInto[P Payload](data json.RawMessage) (Payload, error) {
	var p P
	if len(data) > 0 {
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
	}
	return p, nil
}
