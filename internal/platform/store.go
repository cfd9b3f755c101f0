package platform

import (
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"ndjobi.org/internal/domain"
	"ndjobi.org/internal/events"
	"ndjobi.org/internal/ids"
	"ndjobi.org/internal/obs"
)

// AllScopes marks a store.reset that cleared every tenant and network.
const AllScopes = "*"

// Store is the in-memory mock backend for conversations and mail threads.
// Every mutation goes through its methods and is published on the bus after the lock is released.
type Store struct {
	bus   *events.Bus
	now   func() time.Time
	newID func() string

	mu             sync.RWMutex
	conversations  []domain.Conversation
	messages       []domain.Message
	threads        []domain.Thread
	threadMessages []domain.ThreadMessage
	convIdx        map[string]int
	threadIdx      map[string]int
	threadMsgIdx   map[string]int
}

// Option configures Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDs overrides the identifier generator used for entities and events.
func WithIDs(newID func() string) Option {
	return func(s *Store) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// New creates an empty store publishing on bus. A nil bus gets a private one.
func New(bus *events.Bus, opts ...Option) *Store {
	if bus == nil {
		bus = events.NewBus("platform")
	}
	s := &Store{
		bus:   bus,
		now:   func() time.Time { return time.Now().UTC() },
		newID: ids.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.clear()
	return s
}

// Bus returns the bus store events are published on.
func (s *Store) Bus() *events.Bus { return s.bus }

func (s *Store) clear() {
	s.conversations = nil
	s.messages = nil
	s.threads = nil
	s.threadMessages = nil
	s.convIdx = make(map[string]int)
	s.threadIdx = make(map[string]int)
	s.threadMsgIdx = make(map[string]int)
}

func (s *Store) publish(at time.Time, p events.Payload) {
	s.bus.Emit(events.New(s.newID(), at, p))
}

func (s *Store) CreateConversation(tenantID, networkID string, participants []domain.Participant) domain.Conversation {
	s.mu.Lock()
	at := s.now()
	conv := domain.Conversation{
		ID:           s.newID(),
		TenantID:     tenantID,
		NetworkID:    networkID,
		Participants: append([]domain.Participant(nil), participants...),
		CreatedAt:    at,
	}
	s.convIdx[conv.ID] = len(s.conversations)
	s.conversations = append(s.conversations, conv)
	out := cloneConversation(conv)
	s.mu.Unlock()

	obs.PlatformMutations.WithLabelValues("create_conversation", "ok").Inc()
	s.publish(at, events.ConversationCreated{Conversation: cloneConversation(out)})
	return out
}

// SendMessage appends a message and bumps the conversation's LastMessageAt.
// It returns false without any mutation or event when the conversation is unknown.
func (s *Store) SendMessage(conversationID, senderAppID, senderActorID, content string) (domain.Message, bool) {
	s.mu.Lock()
	i, ok := s.convIdx[conversationID]
	if !ok {
		s.mu.Unlock()
		obs.PlatformMutations.WithLabelValues("send_message", "not_found").Inc()
		return domain.Message{}, false
	}
	conv := &s.conversations[i]
	at := s.now()
	msg := domain.Message{
		ID:             s.newID(),
		ConversationID: conv.ID,
		SenderAppID:    senderAppID,
		SenderActorID:  senderActorID,
		Content:        content,
		CreatedAt:      at,
		TenantID:       conv.TenantID,
		NetworkID:      conv.NetworkID,
	}
	s.messages = append(s.messages, msg)
	conv.LastMessageAt = at
	s.mu.Unlock()

	obs.PlatformMutations.WithLabelValues("send_message", "ok").Inc()
	s.publish(at, events.MessageCreated{Message: msg})
	return msg, true
}

func (s *Store) CreateThread(tenantID, networkID, subject string, participants []domain.Participant) domain.Thread {
	s.mu.Lock()
	at := s.now()
	th := domain.Thread{
		ID:           s.newID(),
		TenantID:     tenantID,
		NetworkID:    networkID,
		Subject:      strings.TrimSpace(subject),
		Participants: append([]domain.Participant(nil), participants...),
		CreatedAt:    at,
	}
	s.threadIdx[th.ID] = len(s.threads)
	s.threads = append(s.threads, th)
	out := cloneThread(th)
	s.mu.Unlock()

	obs.PlatformMutations.WithLabelValues("create_thread", "ok").Inc()
	s.publish(at, events.ThreadCreated{Thread: cloneThread(out)})
	return out
}

// SendThreadMessage appends a thread message whose read set starts with the sender only.
func (s *Store) SendThreadMessage(threadID, senderAppID, senderActorID, content string) (domain.ThreadMessage, bool) {
	s.mu.Lock()
	i, ok := s.threadIdx[threadID]
	if !ok {
		s.mu.Unlock()
		obs.PlatformMutations.WithLabelValues("send_thread_message", "not_found").Inc()
		return domain.ThreadMessage{}, false
	}
	th := &s.threads[i]
	at := s.now()
	msg := domain.ThreadMessage{
		ID:            s.newID(),
		ThreadID:      th.ID,
		SenderAppID:   senderAppID,
		SenderActorID: senderActorID,
		Content:       content,
		CreatedAt:     at,
		TenantID:      th.TenantID,
		NetworkID:     th.NetworkID,
		ReadBy:        []string{senderAppID},
	}
	s.threadMsgIdx[msg.ID] = len(s.threadMessages)
	s.threadMessages = append(s.threadMessages, msg)
	th.LastMessageAt = at
	subject := th.Subject
	out := cloneThreadMessage(msg)
	s.mu.Unlock()

	obs.PlatformMutations.WithLabelValues("send_thread_message", "ok").Inc()
	s.publish(at, events.ThreadMessageCreated{Subject: subject, Message: cloneThreadMessage(out)})
	return out, true
}

// MarkThreadMessageRead adds appID to the message's read set. Marking twice is a no-op
// that still returns true; unknown messages return false.
func (s *Store) MarkThreadMessageRead(messageID, appID string) (domain.ThreadMessage, bool) {
	s.mu.Lock()
	i, ok := s.threadMsgIdx[messageID]
	if !ok {
		s.mu.Unlock()
		obs.PlatformMutations.WithLabelValues("mark_read", "not_found").Inc()
		return domain.ThreadMessage{}, false
	}
	msg := &s.threadMessages[i]
	if msg.ReadByApp(appID) {
		out := cloneThreadMessage(*msg)
		s.mu.Unlock()
		return out, true
	}
	msg.ReadBy = append(append([]string(nil), msg.ReadBy...), appID)
	out := cloneThreadMessage(*msg)
	th := s.threads[s.threadIdx[msg.ThreadID]]
	at := s.now()
	s.mu.Unlock()

	obs.PlatformMutations.WithLabelValues("mark_read", "ok").Inc()
	s.publish(at, events.ThreadUpdated{
		ThreadID:      th.ID,
		Subject:       th.Subject,
		MessageID:     out.ID,
		ReadBy:        append([]string(nil), out.ReadBy...),
		LastMessageAt: th.LastMessageAt,
	})
	return out, true
}

// Reset clears every collection and publishes store.reset with wildcard scopes.
func (s *Store) Reset() {
	s.mu.Lock()
	s.clear()
	at := s.now()
	s.mu.Unlock()

	obs.PlatformMutations.WithLabelValues("reset", "ok").Inc()
	s.publish(at, events.StoreReset{TenantID: AllScopes, NetworkID: AllScopes})
}

func (s *Store) GetConversations(tenantID, networkID string) []domain.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := lo.Filter(s.conversations, func(c domain.Conversation, _ int) bool {
		return c.TenantID == tenantID && c.NetworkID == networkID
	})
	return lo.Map(matched, func(c domain.Conversation, _ int) domain.Conversation { return cloneConversation(c) })
}

func (s *Store) GetConversation(id string) (domain.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.convIdx[id]
	if !ok {
		return domain.Conversation{}, false
	}
	return cloneConversation(s.conversations[i]), true
}

// GetMessages returns the conversation's messages in insertion order.
func (s *Store) GetMessages(conversationID string) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Filter(s.messages, func(m domain.Message, _ int) bool {
		return m.ConversationID == conversationID
	})
}

func (s *Store) GetThreads(tenantID, networkID string) []domain.Thread {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := lo.Filter(s.threads, func(t domain.Thread, _ int) bool {
		return t.TenantID == tenantID && t.NetworkID == networkID
	})
	return lo.Map(matched, func(t domain.Thread, _ int) domain.Thread { return cloneThread(t) })
}

func (s *Store) GetThread(id string) (domain.Thread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.threadIdx[id]
	if !ok {
		return domain.Thread{}, false
	}
	return cloneThread(s.threads[i]), true
}

func (s *Store) GetThreadMessages(threadID string) []domain.ThreadMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := lo.Filter(s.threadMessages, func(m domain.ThreadMessage, _ int) bool {
		return m.ThreadID == threadID
	})
	return lo.Map(matched, func(m domain.ThreadMessage, _ int) domain.ThreadMessage { return cloneThreadMessage(m) })
}

func cloneConversation(c domain.Conversation) domain.Conversation {
	c.Participants = append([]domain.Participant(nil), c.Participants...)
	return c
}

func cloneThread(t domain.Thread) domain.Thread {
	t.Participants = append([]domain.Participant(nil), t.Participants...)
	return t
}

func cloneThreadMessage(m domain.ThreadMessage) domain.ThreadMessage {
	m.ReadBy = append([]string(nil), m.ReadBy...)
	return m
}
