// Package feed keeps the consumer-side view of a realtime source: recent events,
// who is typing where, and whether the source is connected.
package feed

import (
	"sort"
	"sync"

	"ndjobi.org/internal/domain"
	"ndjobi.org/internal/events"
)

// DefaultHistory is how many events a feed retains.
const DefaultHistory = 50

// Source is a realtime event producer that can be switched on and off.
// *realtime.Simulator satisfies it.
type Source interface {
	Bus() *events.Bus
	Start()
	Stop()
	Running() bool
}

// Typing identifies one active typing indicator.
type Typing struct {
	ConversationID string `json:"conversation_id"`
	ActorID        string `json:"actor_id"`
	ActorName      string `json:"actor_name"`
}

type typingKey struct {
	conversation string
	actor        string
}

// Feed subscribes to every event of a source for its whole lifetime.
type Feed struct {
	src   Source
	limit int

	mu        sync.Mutex
	history   []events.Event
	typing    map[typingKey]Typing
	onMessage func(domain.Message)

	unsubscribe func()
	closeOnce   sync.Once
}

// Option configures Feed.
type Option func(*Feed)

// WithHistory overrides the retained event count.
func WithHistory(n int) Option {
	return func(f *Feed) {
		if n > 0 {
			f.limit = n
		}
	}
}

// OnMessage registers a callback run for every icom.message.created, after the feed state is updated.
func OnMessage(fn func(domain.Message)) Option {
	return func(f *Feed) { f.onMessage = fn }
}

func New(src Source, opts ...Option) *Feed {
	f := &Feed{
		src:    src,
		limit:  DefaultHistory,
		typing: make(map[typingKey]Typing),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.unsubscribe = src.Bus().Subscribe(events.Wildcard, f.handle)
	return f
}

func (f *Feed) handle(evt events.Event) {
	f.mu.Lock()
	f.history = append(f.history, evt)
	if over := len(f.history) - f.limit; over > 0 {
		f.history = append(f.history[:0:0], f.history[over:]...)
	}

	var notify func(domain.Message)
	var msg domain.Message
	switch p := evt.Payload.(type) {
	case events.TypingStarted:
		f.typing[typingKey{p.ConversationID, p.ActorID}] = Typing(p)
	case events.TypingStopped:
		delete(f.typing, typingKey{p.ConversationID, p.ActorID})
	case events.MessageCreated:
		notify, msg = f.onMessage, p.Message
	case events.StoreReset:
		clear(f.typing)
	}
	f.mu.Unlock()

	if notify != nil {
		notify(msg)
	}
}

// Events returns the retained history, oldest first.
func (f *Feed) Events() []events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]events.Event(nil), f.history...)
}

// Typing returns the active indicators ordered by conversation then actor.
func (f *Feed) Typing() []Typing {
	f.mu.Lock()
	out := make([]Typing, 0, len(f.typing))
	for _, t := range f.typing {
		out = append(out, t)
	}
	f.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConversationID != out[j].ConversationID {
			return out[i].ConversationID < out[j].ConversationID
		}
		return out[i].ActorID < out[j].ActorID
	})
	return out
}

// TypingIn lists actors currently typing in a conversation.
func (f *Feed) TypingIn(conversationID string) []Typing {
	var out []Typing
	for _, t := range f.Typing() {
		if t.ConversationID == conversationID {
			out = append(out, t)
		}
	}
	return out
}

func (f *Feed) Connect()        { f.src.Start() }
func (f *Feed) Disconnect()     { f.src.Stop() }
func (f *Feed) Connected() bool { return f.src.Running() }

// Close unsubscribes from the source. It does not stop the source.
func (f *Feed) Close() {
	f.closeOnce.Do(f.unsubscribe)
}
