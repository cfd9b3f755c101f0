package feed_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ndjobi.org/internal/domain"
	"ndjobi.org/internal/events"
	"ndjobi.org/internal/feed"
	"ndjobi.org/internal/realtime"
)

var at = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newSimulator(t *testing.T) (*realtime.Simulator, *realtime.ManualScheduler) {
	t.Helper()
	sched := realtime.NewManualScheduler()
	sim, err := realtime.New(realtime.DefaultConfig(),
		realtime.WithScheduler(sched),
		realtime.WithClock(func() time.Time { return at.Add(sched.Elapsed()) }),
	)
	require.NoError(t, err)
	return sim, sched
}

func TestFeed_HistoryIsBounded(t *testing.T) {
	req := require.New(t)
	sim, _ := newSimulator(t)
	f := feed.New(sim)
	defer f.Close()

	for i := 0; i < feed.DefaultHistory+7; i++ {
		sim.TriggerEvent(events.StoreReset{TenantID: fmt.Sprint(i), NetworkID: "*"})
	}

	got := f.Events()
	req.Len(got, feed.DefaultHistory)
	req.Equal("7", got[0].Payload.(events.StoreReset).TenantID)
	req.Equal(fmt.Sprint(feed.DefaultHistory+6), got[len(got)-1].Payload.(events.StoreReset).TenantID)
}

func TestFeed_TypingSetDeduplicates(t *testing.T) {
	req := require.New(t)
	sim, _ := newSimulator(t)
	f := feed.New(sim, feed.WithHistory(10))
	defer f.Close()

	ada := events.TypingStarted{ConversationID: "conv-1", ActorID: "actor-ada", ActorName: "Ada"}
	bob := events.TypingStarted{ConversationID: "conv-1", ActorID: "actor-bob", ActorName: "Bob"}
	other := events.TypingStarted{ConversationID: "conv-2", ActorID: "actor-ada", ActorName: "Ada"}

	sim.TriggerEvent(bob)
	sim.TriggerEvent(ada)
	sim.TriggerEvent(ada)
	sim.TriggerEvent(other)

	req.Equal([]feed.Typing{
		{ConversationID: "conv-1", ActorID: "actor-ada", ActorName: "Ada"},
		{ConversationID: "conv-1", ActorID: "actor-bob", ActorName: "Bob"},
		{ConversationID: "conv-2", ActorID: "actor-ada", ActorName: "Ada"},
	}, f.Typing())

	sim.TriggerEvent(events.TypingStopped(ada))
	req.Len(f.TypingIn("conv-1"), 1)
	req.Equal("actor-bob", f.TypingIn("conv-1")[0].ActorID)
	req.Len(f.TypingIn("conv-2"), 1)

	sim.TriggerEvent(events.TypingStopped(ada))
	req.Len(f.Typing(), 2)
}

func TestFeed_OnMessage(t *testing.T) {
	sim, _ := newSimulator(t)
	var got []domain.Message
	f := feed.New(sim, feed.OnMessage(func(m domain.Message) { got = append(got, m) }))
	defer f.Close()

	msg := domain.Message{ID: "m1", ConversationID: "conv-1", Content: "Mbolo"}
	sim.TriggerEvent(events.MessageCreated{Message: msg})
	sim.TriggerEvent(events.TypingStarted{ConversationID: "conv-1", ActorID: "a"})

	require.Equal(t, []domain.Message{msg}, got)
}

func TestFeed_ConnectTogglesSource(t *testing.T) {
	req := require.New(t)
	sim, sched := newSimulator(t)
	f := feed.New(sim)
	defer f.Close()

	req.False(f.Connected())
	f.Connect()
	req.True(f.Connected())
	req.True(sim.Running())

	sched.Advance(10 * time.Minute)
	f.Disconnect()
	req.False(f.Connected())
	req.Empty(f.Typing())
}

func TestFeed_CloseUnsubscribesOnce(t *testing.T) {
	req := require.New(t)
	sim, _ := newSimulator(t)
	f := feed.New(sim)
	req.Equal(1, sim.Bus().Len(events.Wildcard))

	f.Close()
	f.Close()
	req.Zero(sim.Bus().Len(events.Wildcard))

	sim.TriggerEvent(events.StoreReset{TenantID: "*", NetworkID: "*"})
	req.Empty(f.Events())

	// A second feed on the same source is unaffected by the first one's teardown.
	g := feed.New(sim)
	defer g.Close()
	sim.TriggerEvent(events.StoreReset{TenantID: "*", NetworkID: "*"})
	req.Len(g.Events(), 1)
}
