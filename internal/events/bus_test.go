package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ndjobi.org/internal/domain"
)

func typing(id string) Event {
	return New(id, time.Now(), TypingStarted{ConversationID: "c1", ActorID: "a1", ActorName: "Aïcha"})
}

func TestBus_DeliversToExactAndWildcard(t *testing.T) {
	req := require.New(t)
	bus := NewBus("test")

	var calls []string
	for i := 0; i < 3; i++ {
		name := string(rune('a' + i))
		bus.Subscribe(TypingStartType, func(Event) { calls = append(calls, "exact-"+name) })
	}
	for i := 0; i < 2; i++ {
		name := string(rune('a' + i))
		bus.Subscribe(Wildcard, func(Event) { calls = append(calls, "wild-"+name) })
	}
	bus.Subscribe(TypingStopType, func(Event) { calls = append(calls, "other") })

	// When one event is emitted
	n := bus.Emit(typing("evt-1"))

	// Then N exact + M wildcard handlers ran once each, in registration order
	req.Equal(5, n)
	req.Equal([]string{"exact-a", "exact-b", "exact-c", "wild-a", "wild-b"}, calls)
}

func TestBus_UnsubscribeIsIdempotent(t *testing.T) {
	req := require.New(t)
	bus := NewBus("test")

	count := 0
	unsubscribe := bus.Subscribe(TypingStartType, func(Event) { count++ })
	bus.Emit(typing("evt-1"))
	unsubscribe()
	unsubscribe()
	bus.Emit(typing("evt-2"))
	req.Equal(1, count)
	req.Equal(0, bus.Len(TypingStartType))

	other := bus.Subscribe(Wildcard, func(Event) { count++ })
	bus.Close()
	other()
	req.Equal(0, bus.Emit(typing("evt-3")))
	req.Equal(1, count)

	late := bus.Subscribe(Wildcard, func(Event) { count++ })
	late()
	req.Equal(1, count)
}

func TestBus_PanickingHandlerDoesNotStopDelivery(t *testing.T) {
	bus := NewBus("test")
	var got []string
	bus.Subscribe(TypingStartType, func(Event) { got = append(got, "first") })
	bus.Subscribe(TypingStartType, func(Event) { panic("boom") })
	bus.Subscribe(Wildcard, func(Event) { got = append(got, "wild") })

	require.NotPanics(t, func() { bus.Emit(typing("evt-1")) })
	require.Equal(t, []string{"first", "wild"}, got)
}

func TestBus_ReentrantEmitAndUnsubscribe(t *testing.T) {
	req := require.New(t)
	bus := NewBus("test")

	var order []Type
	var unsubscribe func()
	unsubscribe = bus.Subscribe(TypingStartType, func(e Event) {
		order = append(order, e.Type)
		unsubscribe()
		bus.Emit(New("evt-2", time.Now(), TypingStopped{ConversationID: "c1", ActorID: "a1"}))
	})
	bus.Subscribe(TypingStopType, func(e Event) { order = append(order, e.Type) })

	bus.Emit(typing("evt-1"))
	bus.Emit(typing("evt-3"))

	req.Equal([]Type{TypingStartType, TypingStopType}, order)
}

func TestBus_ChannelDropsWhenFullAndClosesOnCancel(t *testing.T) {
	req := require.New(t)
	bus := NewBus("test")
	ctx, cancel := context.WithCancel(context.Background())

	ch := bus.Channel(ctx, Wildcard, 2)
	for i := 0; i < 5; i++ {
		bus.Emit(typing("evt"))
	}
	req.Len(ch, 2)

	cancel()
	drained := 0
	for range ch {
		drained++
	}
	req.Equal(2, drained)
	req.Eventually(func() bool { return bus.Len(Wildcard) == 0 }, time.Second, 5*time.Millisecond)
}

func TestEvent_JSONRoundTripKeepsPayloadType(t *testing.T) {
	req := require.New(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	in := New("evt-7", at, MessageCreated{Message: domain.Message{ID: "m1", ConversationID: "c1", Content: "Mbolo", CreatedAt: at}})
	req.Equal(MessageCreatedType, in.Type)

	data, err := json.Marshal(in)
	req.NoError(err)

	var out Event
	req.NoError(json.Unmarshal(data, &out))
	req.Equal(in, out)

	var bad Event
	req.ErrorIs(json.Unmarshal([]byte(`{"id":"x","type":"icom.unknown","payload":{}}`), &bad), ErrUnknownType)
}

func TestParseType(t *testing.T) {
	for _, typ := range Types() {
		got, ok := ParseType(string(typ))
		require.True(t, ok)
		require.Equal(t, typ, got)
	}
	_, ok := ParseType("*")
	require.True(t, ok)
	_, ok = ParseType("icom.message.deleted")
	require.False(t, ok)
}
