package realtime

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"ndjobi.org/internal/events"
)

// fixedRand returns v for every draw and 0 for every index, which makes intervals and emissions predictable.
type fixedRand struct{ v float64 }

func (r fixedRand) Float64() float64 { return r.v }
func (fixedRand) Intn(int) int       { return 0 }

type collector struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *collector) handle(e events.Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *collector) snapshot() []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]events.Event(nil), c.events...)
}

func (c *collector) count(t events.Type) int {
	n := 0
	for _, e := range c.snapshot() {
		if e.Type == t {
			n++
		}
	}
	return n
}

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newManualSim(t *testing.T, v float64) (*Simulator, *ManualScheduler, *collector) {
	t.Helper()
	return newManualSimWith(t, DefaultConfig(), v)
}

func newManualSimWith(t *testing.T, cfg Config, v float64) (*Simulator, *ManualScheduler, *collector) {
	t.Helper()
	sched := NewManualScheduler()
	sim, err := New(cfg,
		WithScheduler(sched),
		WithRand(fixedRand{v: v}),
		WithClock(func() time.Time { return epoch.Add(sched.Elapsed()) }),
	)
	require.NoError(t, err)
	col := &collector{}
	sim.Bus().Subscribe(events.Wildcard, col.handle)
	return sim, sched, col
}

// requirePaired checks every typing start is followed by exactly one matching stop.
func requirePaired(t *testing.T, evts []events.Event) {
	t.Helper()
	open := map[string]int{}
	for _, e := range evts {
		switch p := e.Payload.(type) {
		case events.TypingStarted:
			open[p.ConversationID+"/"+p.ActorID]++
		case events.TypingStopped:
			key := p.ConversationID + "/" + p.ActorID
			require.Positive(t, open[key], "stop without a preceding start for %s", key)
			open[key]--
		}
	}
	for key, n := range open {
		require.Zero(t, n, "unterminated typing indicator for %s", key)
	}
}

func TestSimulator_EmitsAllGeneratorsAndPairsTyping(t *testing.T) {
	req := require.New(t)
	sim, sched, col := newManualSim(t, 0.99)

	sim.Start()
	req.True(sim.Running())
	sched.Advance(2 * time.Minute)
	sim.Stop()

	req.Positive(col.count(events.MessageCreatedType))
	req.Positive(col.count(events.ThreadMessageCreatedType))
	req.Positive(col.count(events.TypingStartType))
	req.Equal(col.count(events.TypingStartType), col.count(events.TypingStopType))
	requirePaired(t, col.snapshot())

	msg := col.snapshot()[0].Payload.(events.MessageCreated).Message
	req.Equal("conv-demo-1", msg.ConversationID)
	req.Equal("Aïcha Nzé", msg.SenderName)
	req.Equal("actor-a-cha-nz", msg.SenderActorID)
	req.Equal(DefaultConfig().TenantID, msg.TenantID)
}

func TestSimulator_StopFlushesOpenTypingIndicators(t *testing.T) {
	req := require.New(t)
	sim, sched, col := newManualSim(t, 0.99)

	sim.Start()
	// Typing start lands at 14.95s; its stop would follow almost 4s later.
	sched.Advance(15 * time.Second)
	req.Equal(1, col.count(events.TypingStartType))
	req.Zero(col.count(events.TypingStopType))

	sim.Stop()
	req.Equal(1, col.count(events.TypingStopType))
	requirePaired(t, col.snapshot())

	evts := col.snapshot()
	last := evts[len(evts)-1]
	req.Equal(events.TypingStopType, last.Type)
}

func TestSimulator_NothingAfterStop(t *testing.T) {
	req := require.New(t)
	sim, sched, col := newManualSim(t, 0.99)

	sim.Start()
	sched.Advance(time.Minute)
	sim.Stop()
	req.False(sim.Running())
	req.Zero(sched.Pending())

	before := len(col.snapshot())
	sched.Advance(10 * time.Minute)
	req.Len(col.snapshot(), before)

	sim.Stop()
	req.Len(col.snapshot(), before)
}

func TestSimulator_StartIsIdempotent(t *testing.T) {
	req := require.New(t)
	sim, sched, _ := newManualSim(t, 0.99)

	sim.Start()
	sim.Start()
	req.Equal(3, sched.Pending())

	sim.Stop()
	sim.Start()
	req.Equal(3, sched.Pending())
	sim.Stop()
}

func TestSimulator_RestartCyclesKeepPairing(t *testing.T) {
	sim, sched, col := newManualSim(t, 0.99)

	for i := 0; i < 5; i++ {
		sim.Start()
		sched.Advance(16 * time.Second)
		sim.Stop()
		sched.Advance(time.Second)
	}
	require.Equal(t, 5, col.count(events.TypingStartType))
	requirePaired(t, col.snapshot())
}

func TestSimulator_LowRollsEmitNothingButKeepTicking(t *testing.T) {
	req := require.New(t)
	sim, sched, col := newManualSim(t, 0)

	sim.Start()
	sched.Advance(5 * time.Minute)
	req.Empty(col.snapshot())
	req.Equal(3, sched.Pending())
	sim.Stop()
}

func TestSimulator_EventIDsStrictlyIncrease(t *testing.T) {
	sim, sched, col := newManualSim(t, 0.99)
	sim.Start()
	sched.Advance(3 * time.Minute)
	sim.TriggerEvent(events.StoreReset{TenantID: "*", NetworkID: "*"})
	sim.Stop()

	prev := uint64(0)
	for _, e := range col.snapshot() {
		require.True(t, strings.HasPrefix(e.ID, "evt-"), e.ID)
		n, err := strconv.ParseUint(strings.TrimPrefix(e.ID, "evt-"), 10, 64)
		require.NoError(t, err)
		require.Greater(t, n, prev)
		prev = n
	}
}

func TestSimulator_TriggerEventWhileStopped(t *testing.T) {
	req := require.New(t)
	sim, _, col := newManualSim(t, 0.99)

	evt := sim.TriggerEvent(events.TypingStarted{ConversationID: "conv-x", ActorID: "actor-1", ActorName: "Ada"})
	req.Equal(events.TypingStartType, evt.Type)
	req.Equal("evt-1", evt.ID)
	req.Equal(epoch, evt.Timestamp)
	req.Equal([]events.Event{evt}, col.snapshot())
	req.False(sim.Running())
}

func TestSimulator_HandlersMayStopTheSimulator(t *testing.T) {
	sim, sched, col := newManualSim(t, 0.99)
	sim.Bus().Subscribe(events.TypingStartType, func(events.Event) { sim.Stop() })

	sim.Start()
	sched.Advance(time.Minute)

	require.False(t, sim.Running())
	require.Equal(t, 1, col.count(events.TypingStartType))
	requirePaired(t, col.snapshot())
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.MessageProbability = 1.5
	require.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = DefaultConfig()
	bad.ThreadInterval = Range{}
	_, err := New(bad)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSimulator_RealSchedulerLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := DefaultConfig()
	cfg.MessageInterval = Range{Min: time.Millisecond, Max: 2 * time.Millisecond}
	cfg.TypingInterval = Range{Min: time.Millisecond, Max: 2 * time.Millisecond}
	cfg.ThreadInterval = Range{Min: time.Millisecond, Max: 2 * time.Millisecond}
	cfg.TypingDuration = Range{Min: time.Millisecond, Max: 3 * time.Millisecond}
	cfg.MessageProbability, cfg.TypingProbability, cfg.ThreadProbability = 1, 1, 1

	sim, err := New(cfg)
	require.NoError(t, err)
	col := &collector{}
	sim.Bus().Subscribe(events.Wildcard, col.handle)

	sim.Start()
	time.Sleep(50 * time.Millisecond)
	sim.Stop()
	time.Sleep(10 * time.Millisecond)

	require.NotEmpty(t, col.snapshot())
	requirePaired(t, col.snapshot())
}

func TestSimulator_EmissionThresholds(t *testing.T) {
	// Messages need a roll above 0.6, typing and thread messages a roll above 0.7.
	cases := []struct {
		roll                      float64
		messages, typing, threads bool
	}{
		{roll: 0.6},
		{roll: 0.6001, messages: true},
		{roll: 0.7, messages: true},
		{roll: 0.7001, messages: true, typing: true, threads: true},
	}
	for _, tc := range cases {
		t.Run(strconv.FormatFloat(tc.roll, 'f', -1, 64), func(t *testing.T) {
			sim, sched, col := newManualSim(t, tc.roll)
			sim.Start()
			sched.Advance(5 * time.Minute)
			sim.Stop()

			require.Equal(t, tc.messages, col.count(events.MessageCreatedType) > 0)
			require.Equal(t, tc.typing, col.count(events.TypingStartType) > 0)
			require.Equal(t, tc.threads, col.count(events.ThreadMessageCreatedType) > 0)
			require.Equal(t, col.count(events.TypingStartType), col.count(events.TypingStopType))
		})
	}
}

// elapsed maps an event timestamp back to scheduler time.
func elapsed(e events.Event) time.Duration { return e.Timestamp.Sub(epoch) }

func TestSimulator_TickIntervals(t *testing.T) {
	def := DefaultConfig()
	cases := []struct {
		name   string
		typ    events.Type
		bounds Range
		only   func(*Config)
	}{
		{"message", events.MessageCreatedType, def.MessageInterval, func(c *Config) { c.MessageProbability = 1 }},
		{"typing", events.TypingStartType, def.TypingInterval, func(c *Config) { c.TypingProbability = 1 }},
		{"thread", events.ThreadMessageCreatedType, def.ThreadInterval, func(c *Config) { c.ThreadProbability = 1 }},
	}
	for _, tc := range cases {
		for _, roll := range []float64{0.0001, 0.5, 0.9999} {
			t.Run(tc.name+"/"+strconv.FormatFloat(roll, 'f', -1, 64), func(t *testing.T) {
				cfg := DefaultConfig()
				cfg.MessageProbability, cfg.TypingProbability, cfg.ThreadProbability = 0, 0, 0
				tc.only(&cfg)
				sim, sched, col := newManualSimWith(t, cfg, roll)

				sim.Start()
				sched.Advance(10 * time.Minute)
				sim.Stop()

				var ticks []time.Duration
				for _, e := range col.snapshot() {
					if e.Type == tc.typ {
						ticks = append(ticks, elapsed(e))
					}
				}
				require.Greater(t, len(ticks), 20)
				prev := time.Duration(0)
				for _, at := range ticks {
					gap := at - prev
					require.GreaterOrEqual(t, gap, tc.bounds.Min)
					require.Less(t, gap, tc.bounds.Max)
					prev = at
				}
				require.LessOrEqual(t, prev, sched.Elapsed())
			})
		}
	}
}

func TestSimulator_TypingStopDelay(t *testing.T) {
	for _, roll := range []float64{0.7001, 0.85, 0.9999} {
		t.Run(strconv.FormatFloat(roll, 'f', -1, 64), func(t *testing.T) {
			sim, sched, col := newManualSim(t, roll)
			sim.Start()
			sched.Advance(10 * time.Minute)
			sim.Stop()

			var starts []time.Duration
			pairs := 0
			for _, e := range col.snapshot() {
				switch e.Type {
				case events.TypingStartType:
					starts = append(starts, elapsed(e))
				case events.TypingStopType:
					require.NotEmpty(t, starts, "stop without start")
					delay := elapsed(e) - starts[0]
					starts = starts[1:]
					if e.Timestamp.Equal(epoch.Add(sched.Elapsed())) && delay < 2*time.Second {
						continue // flushed by Stop
					}
					require.GreaterOrEqual(t, delay, 2*time.Second)
					require.Less(t, delay, 4*time.Second)
					pairs++
				}
			}
			require.Empty(t, starts)
			require.Greater(t, pairs, 20)
		})
	}
}

func TestSimulator_StopWaitsForDeliveryInFlight(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := DefaultConfig()
	cfg.MessageInterval = Range{Min: time.Hour, Max: time.Hour}
	cfg.ThreadInterval = Range{Min: time.Hour, Max: time.Hour}
	cfg.TypingInterval = Range{Min: time.Millisecond, Max: time.Millisecond}
	cfg.TypingProbability = 1
	sim, err := New(cfg, WithRand(fixedRand{v: 0.99}))
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	var first atomic.Bool
	sim.Bus().Subscribe(events.TypingStartType, func(events.Event) {
		if first.CompareAndSwap(false, true) {
			close(entered)
			<-release
		}
	})
	col := &collector{}
	sim.Bus().Subscribe(events.Wildcard, col.handle)

	sim.Start()
	<-entered

	var atReturn int
	returned := make(chan struct{})
	go func() {
		sim.Stop()
		atReturn = len(col.snapshot())
		close(returned)
	}()

	select {
	case <-returned:
		t.Fatal("Stop returned while a typing start was still being delivered")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-returned
	time.Sleep(20 * time.Millisecond)

	evts := col.snapshot()
	require.Len(t, evts, atReturn, "events delivered after Stop returned")
	require.Len(t, evts, 2)
	require.Equal(t, []events.Type{events.TypingStartType, events.TypingStopType}, []events.Type{evts[0].Type, evts[1].Type})
	requirePaired(t, evts)
	require.False(t, sim.Running())
}

func TestGoroutineID(t *testing.T) {
	own := goroutineID()
	require.NotZero(t, own)
	require.Equal(t, own, goroutineID())

	other := make(chan uint64)
	go func() { other <- goroutineID() }()
	require.NotEqual(t, own, <-other)
}
