package domain

import "time"

// Participant is one side of a conversation or thread. ActorID is empty for service participants.
type Participant struct {
	AppID   string `json:"app_id"`
	ActorID string `json:"actor_id,omitempty"`
}

// Conversation is an icom chat between participants.
type Conversation struct {
	ID            string        `json:"id"`
	TenantID      string        `json:"tenant_id"`
	NetworkID     string        `json:"network_id"`
	Participants  []Participant `json:"participants"`
	CreatedAt     time.Time     `json:"created_at"`
	LastMessageAt time.Time     `json:"last_message_at"`
}

// Message belongs to a Conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderAppID    string    `json:"sender_app_id"`
	SenderActorID  string    `json:"sender_actor_id,omitempty"`
	SenderName     string    `json:"sender_name,omitempty"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	TenantID       string    `json:"tenant_id"`
	NetworkID      string    `json:"network_id"`
}

// Thread is an iboite asynchronous mail thread.
type Thread struct {
	ID            string        `json:"id"`
	TenantID      string        `json:"tenant_id"`
	NetworkID     string        `json:"network_id"`
	Subject       string        `json:"subject"`
	Participants  []Participant `json:"participants"`
	CreatedAt     time.Time     `json:"created_at"`
	LastMessageAt time.Time     `json:"last_message_at"`
}

// ThreadMessage belongs to a Thread and tracks which apps have read it.
type ThreadMessage struct {
	ID            string    `json:"id"`
	ThreadID      string    `json:"thread_id"`
	SenderAppID   string    `json:"sender_app_id"`
	SenderActorID string    `json:"sender_actor_id,omitempty"`
	SenderName    string    `json:"sender_name,omitempty"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"created_at"`
	TenantID      string    `json:"tenant_id"`
	NetworkID     string    `json:"network_id"`
	ReadBy        []string  `json:"read_by"`
}

// ReadByApp reports whether appID has read the message.
func (m ThreadMessage) ReadByApp(appID string) bool {
	for _, id := range m.ReadBy {
		if id == appID {
			return true
		}
	}
	return false
}
