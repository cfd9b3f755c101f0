package events

import (
	"time"

	"ndjobi.org/internal/domain"
)

// Type is the dotted name of a platform event.
type Type string

const (
	MessageCreatedType       Type = "icom.message.created"
	MessageReadType          Type = "icom.message.read"
	TypingStartType          Type = "icom.typing.start"
	TypingStopType           Type = "icom.typing.stop"
	ThreadCreatedType        Type = "iboite.thread.created"
	ThreadUpdatedType        Type = "iboite.thread.updated"
	ThreadMessageCreatedType Type = "iboite.message.created"
	ConversationCreatedType  Type = "icom.conversation.created"
	StoreResetType           Type = "store.reset"

	// Wildcard subscribes to every event type. It is never the type of an emitted event.
	Wildcard Type = "*"
)

var knownTypes = []Type{
	MessageCreatedType, MessageReadType, TypingStartType, TypingStopType,
	ThreadCreatedType, ThreadUpdatedType, ThreadMessageCreatedType,
	ConversationCreatedType, StoreResetType,
}

// Types lists every emittable event type.
func Types() []Type { return append([]Type(nil), knownTypes...) }

// ParseType accepts a known event type or the wildcard.
func ParseType(s string) (Type, bool) {
	t := Type(s)
	if t == Wildcard {
		return t, true
	}
	for _, k := range knownTypes {
		if k == t {
			return t, true
		}
	}
	return "", false
}

// Payload is the closed set of event bodies; the concrete type determines the event Type.
type Payload interface {
	EventType() Type
	isPayload()
}

// Event is immutable once emitted.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Payload   `json:"payload"`
}

// New builds an event whose Type always matches its payload.
func New(id string, at time.Time, p Payload) Event {
	return Event{ID: id, Type: p.EventType(), Timestamp: at.UTC(), Payload: p}
}

type MessageCreated struct {
	Message domain.Message `json:"message"`
}

type MessageRead struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	ReaderAppID    string    `json:"reader_app_id"`
	ReadAt         time.Time `json:"read_at"`
}

type TypingStarted struct {
	ConversationID string `json:"conversation_id"`
	ActorID        string `json:"actor_id"`
	ActorName      string `json:"actor_name"`
}

type TypingStopped struct {
	ConversationID string `json:"conversation_id"`
	ActorID        string `json:"actor_id"`
	ActorName      string `json:"actor_name"`
}

type ThreadCreated struct {
	Thread domain.Thread `json:"thread"`
}

// ThreadUpdated signals activity on a thread: a new message or a read receipt.
type ThreadUpdated struct {
	ThreadID      string    `json:"thread_id"`
	Subject       string    `json:"subject,omitempty"`
	MessageID     string    `json:"message_id,omitempty"`
	ReadBy        []string  `json:"read_by,omitempty"`
	LastMessageAt time.Time `json:"last_message_at"`
}

type ThreadMessageCreated struct {
	Subject string               `json:"subject,omitempty"`
	Message domain.ThreadMessage `json:"message"`
}

type ConversationCreated struct {
	Conversation domain.Conversation `json:"conversation"`
}

// StoreReset uses "*" for tenant and network: every scope was cleared.
type StoreReset struct {
	TenantID  string `json:"tenant_id"`
	NetworkID string `json:"network_id"`
}

func (MessageCreated) EventType() Type       { return MessageCreatedType }
func (MessageRead) EventType() Type          { return MessageReadType }
func (TypingStarted) EventType() Type        { return TypingStartType }
func (TypingStopped) EventType() Type        { return TypingStopType }
func (ThreadCreated) EventType() Type        { return ThreadCreatedType }
func (ThreadUpdated) EventType() Type        { return ThreadUpdatedType }
func (ThreadMessageCreated) EventType() Type { return ThreadMessageCreatedType }
func (ConversationCreated) EventType() Type  { return ConversationCreatedType }
func (StoreReset) EventType() Type           { return StoreResetType }

func (MessageCreated) isPayload()       {}
func (MessageRead) isPayload()          {}
func (TypingStarted) isPayload()        {}
func (TypingStopped) isPayload()        {}
func (ThreadCreated) isPayload()        {}
func (ThreadUpdated) isPayload()        {}
func (ThreadMessageCreated) isPayload() {}
func (ConversationCreated) isPayload()  {}
func (StoreReset) isPayload()           {}
