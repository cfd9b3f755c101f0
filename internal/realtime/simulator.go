package realtime

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"ndjobi.org/internal/domain"
	"ndjobi.org/internal/events"
	"ndjobi.org/internal/ids"
	"ndjobi.org/internal/obs"
)

// Range is a half-open duration interval [Min, Max).
type Range struct {
	Min time.Duration
	Max time.Duration
}

func (r Range) draw(rnd Rand) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(rnd.Float64()*float64(r.Max-r.Min))
}

// Rand is the randomness the generators need; *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// Config tunes the generators. Probabilities are demo constants, not a modelled arrival process.
type Config struct {
	MessageInterval    Range
	MessageProbability float64
	TypingInterval     Range
	TypingProbability  float64
	TypingDuration     Range
	ThreadInterval     Range
	ThreadProbability  float64

	// Scope stamped on synthetic messages.
	AppID     string
	TenantID  string
	NetworkID string
}

// DefaultConfig returns the demo tuning.
func DefaultConfig() Config {
	return Config{
		MessageInterval:    Range{Min: 8 * time.Second, Max: 15 * time.Second},
		MessageProbability: 0.4,
		TypingInterval:     Range{Min: 10 * time.Second, Max: 15 * time.Second},
		TypingProbability:  0.3,
		TypingDuration:     Range{Min: 2 * time.Second, Max: 4 * time.Second},
		ThreadInterval:     Range{Min: 15 * time.Second, Max: 25 * time.Second},
		ThreadProbability:  0.3,
		AppID:              "app-ndjobi-demo",
		TenantID:           "tenant-ndjobi",
		NetworkID:          "net-ndjobi-commercial",
	}
}

var ErrInvalidConfig = errors.New("realtime: invalid config")

// Validate rejects non-positive intervals and probabilities outside [0, 1].
func (c Config) Validate() error {
	for _, r := range []Range{c.MessageInterval, c.TypingInterval, c.ThreadInterval} {
		if r.Min <= 0 || r.Max < r.Min {
			return ErrInvalidConfig
		}
	}
	if c.TypingDuration.Min < 0 || c.TypingDuration.Max < c.TypingDuration.Min {
		return ErrInvalidConfig
	}
	for _, p := range []float64{c.MessageProbability, c.TypingProbability, c.ThreadProbability} {
		if p < 0 || p > 1 {
			return ErrInvalidConfig
		}
	}
	return nil
}

type taskKind int

const (
	messageTick taskKind = iota
	typingTick
	threadTick
	typingStop
)

// typingPair tracks one start until its matching stop has been delivered.
type typingPair struct {
	stop      events.TypingStopped
	started   bool // start delivered to subscribers
	stopDue   bool // stop should follow as soon as the start is delivered
	delivered bool
}

type task struct {
	kind  taskKind
	timer Timer
	pair  *typingPair
}

// Simulator synthesizes demo events on its own bus while running.
//
// Three generators tick on randomized intervals and each tick emits with a fixed probability.
// Every typing start is followed by exactly one typing stop: either its own delayed task, or
// the flush performed by Stop. Timer callbacks are serialized; handlers run outside the
// simulator lock and may call any Simulator method. Stop waits for a callback that is still
// delivering on another goroutine, so nothing reaches subscribers after it returns.
type Simulator struct {
	cfg    Config
	corpus Corpus
	bus    *events.Bus
	sched  Scheduler
	now    func() time.Time
	seq    *ids.Sequence

	fireMu sync.Mutex

	mu      sync.Mutex
	idle    *sync.Cond // signalled on mu when firing drops to zero
	firing  uint64     // goroutine delivering a timer callback, 0 when none
	rnd     Rand
	running bool
	nextID  uint64
	tasks   map[uint64]*task
}

// Option configures Simulator.
type Option func(*Simulator)

func WithScheduler(s Scheduler) Option {
	return func(sim *Simulator) {
		if s != nil {
			sim.sched = s
		}
	}
}

func WithRand(r Rand) Option {
	return func(sim *Simulator) {
		if r != nil {
			sim.rnd = r
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(sim *Simulator) {
		if now != nil {
			sim.now = now
		}
	}
}

func WithCorpus(c Corpus) Option {
	return func(sim *Simulator) {
		if c.valid() {
			sim.corpus = c
		}
	}
}

// WithBus publishes on an existing bus instead of a private one.
func WithBus(b *events.Bus) Option {
	return func(sim *Simulator) {
		if b != nil {
			sim.bus = b
		}
	}
}

// New builds a stopped simulator.
func New(cfg Config, opts ...Option) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Simulator{
		cfg:    cfg,
		corpus: DemoCorpus(),
		bus:    events.NewBus("realtime"),
		sched:  RealScheduler{},
		now:    func() time.Time { return time.Now().UTC() },
		seq:    ids.NewSequence("evt"),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		tasks:  make(map[uint64]*task),
	}
	s.idle = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Bus is the simulator's event bus, distinct from the platform store's.
func (s *Simulator) Bus() *events.Bus { return s.bus }

func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start arms the three generators. Calling Start while running is a no-op.
func (s *Simulator) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.arm(messageTick, s.cfg.MessageInterval.draw(s.rnd), nil)
	s.arm(typingTick, s.cfg.TypingInterval.draw(s.rnd), nil)
	s.arm(threadTick, s.cfg.ThreadInterval.draw(s.rnd), nil)
	s.mu.Unlock()

	obs.SimulatorRunning.Set(1)
	obs.Info("simulator started", map[string]any{"bus": s.bus.Name()})
}

// Stop cancels every pending task. Typing indicators still open get their stop event
// before Stop returns. A timer callback already delivering on another goroutine finishes,
// including the stop of a typing start it was emitting, before Stop returns. Called from a
// handler of that callback, Stop returns without waiting for it.
func (s *Simulator) Stop() {
	s.mu.Lock()
	wasRunning := s.running
	var batch []events.Event
	if wasRunning {
		s.running = false
		var flush []events.TypingStopped
		for id, t := range s.tasks {
			t.timer.Stop()
			delete(s.tasks, id)
			if t.pair == nil {
				continue
			}
			if t.pair.started {
				t.pair.delivered = true
				flush = append(flush, t.pair.stop)
			} else {
				t.pair.stopDue = true
			}
		}
		batch = s.stamp(flush)
	}
	s.mu.Unlock()

	for _, evt := range batch {
		s.bus.Emit(evt)
	}
	s.awaitIdle()
	if !wasRunning {
		return
	}
	obs.SimulatorRunning.Set(0)
	obs.Info("simulator stopped", map[string]any{"bus": s.bus.Name(), "flushed_typing": len(batch)})
}

// awaitIdle blocks while a timer callback is delivering on a goroutine other than the caller's.
func (s *Simulator) awaitIdle() {
	self := goroutineID()
	s.mu.Lock()
	for s.firing != 0 && s.firing != self {
		s.idle.Wait()
	}
	s.mu.Unlock()
}

// TriggerEvent emits p immediately, whether or not the simulator is running.
func (s *Simulator) TriggerEvent(p events.Payload) events.Event {
	s.mu.Lock()
	evt := events.New(s.seq.Next(), s.now(), p)
	s.mu.Unlock()
	s.bus.Emit(evt)
	return evt
}

// arm registers a task; callers hold s.mu.
func (s *Simulator) arm(kind taskKind, delay time.Duration, pair *typingPair) {
	s.nextID++
	id := s.nextID
	t := &task{kind: kind, pair: pair}
	s.tasks[id] = t
	t.timer = s.sched.AfterFunc(delay, func() { s.fire(id) })
}

func (s *Simulator) stamp(payloads []events.TypingStopped) []events.Event {
	out := make([]events.Event, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, events.New(s.seq.Next(), s.now(), p))
	}
	return out
}

func (s *Simulator) roll(p float64) bool {
	return s.rnd.Float64() > 1-p
}

func (s *Simulator) fire(id uint64) {
	self := goroutineID()
	s.fireMu.Lock()
	defer s.fireMu.Unlock()

	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok || !s.running {
		s.mu.Unlock()
		return
	}
	delete(s.tasks, id)
	s.firing = self
	defer s.settle()

	var evt *events.Event
	var pair *typingPair
	switch t.kind {
	case messageTick:
		s.arm(messageTick, s.cfg.MessageInterval.draw(s.rnd), nil)
		if s.roll(s.cfg.MessageProbability) {
			evt = s.next(events.MessageCreated{Message: s.syntheticMessage()})
		}
	case threadTick:
		s.arm(threadTick, s.cfg.ThreadInterval.draw(s.rnd), nil)
		if s.roll(s.cfg.ThreadProbability) {
			evt = s.next(s.syntheticThreadMessage())
		}
	case typingTick:
		s.arm(typingTick, s.cfg.TypingInterval.draw(s.rnd), nil)
		if s.roll(s.cfg.TypingProbability) {
			name := s.corpus.TypingNames[s.rnd.Intn(len(s.corpus.TypingNames))]
			conv := s.corpus.Conversations[s.rnd.Intn(len(s.corpus.Conversations))]
			start := events.TypingStarted{ConversationID: conv, ActorID: actorID(name), ActorName: name}
			pair = &typingPair{stop: events.TypingStopped(start)}
			s.arm(typingStop, s.cfg.TypingDuration.draw(s.rnd), pair)
			evt = s.next(start)
		}
	case typingStop:
		if t.pair.started && !t.pair.delivered {
			t.pair.delivered = true
			evt = s.next(t.pair.stop)
		} else {
			t.pair.stopDue = true
		}
	}
	s.mu.Unlock()

	if evt != nil {
		s.bus.Emit(*evt)
	}
	if pair != nil {
		s.afterStart(pair)
	}
}

// settle ends a delivery and wakes Stop callers waiting in awaitIdle.
func (s *Simulator) settle() {
	s.mu.Lock()
	s.firing = 0
	s.idle.Broadcast()
	s.mu.Unlock()
}

// afterStart marks a typing start as delivered and releases a stop that came due meanwhile.
func (s *Simulator) afterStart(pair *typingPair) {
	s.mu.Lock()
	pair.started = true
	var evt *events.Event
	if pair.stopDue && !pair.delivered {
		pair.delivered = true
		evt = s.next(pair.stop)
	}
	s.mu.Unlock()
	if evt != nil {
		s.bus.Emit(*evt)
	}
}

func (s *Simulator) next(p events.Payload) *events.Event {
	evt := events.New(s.seq.Next(), s.now(), p)
	return &evt
}

func (s *Simulator) syntheticMessage() domain.Message {
	line := s.corpus.Lines[s.rnd.Intn(len(s.corpus.Lines))]
	conv := s.corpus.Conversations[s.rnd.Intn(len(s.corpus.Conversations))]
	return domain.Message{
		ID:             ids.New(),
		ConversationID: conv,
		SenderAppID:    s.cfg.AppID,
		SenderActorID:  actorID(line.Sender),
		SenderName:     line.Sender,
		Content:        line.Content,
		CreatedAt:      s.now(),
		TenantID:       s.cfg.TenantID,
		NetworkID:      s.cfg.NetworkID,
	}
}

func (s *Simulator) syntheticThreadMessage() events.ThreadMessageCreated {
	subject := s.corpus.Subjects[s.rnd.Intn(len(s.corpus.Subjects))]
	thread := s.corpus.Threads[s.rnd.Intn(len(s.corpus.Threads))]
	line := s.corpus.Lines[s.rnd.Intn(len(s.corpus.Lines))]
	return events.ThreadMessageCreated{
		Subject: subject,
		Message: domain.ThreadMessage{
			ID:            ids.New(),
			ThreadID:      thread,
			SenderAppID:   s.cfg.AppID,
			SenderActorID: actorID(line.Sender),
			SenderName:    line.Sender,
			Content:       line.Content,
			CreatedAt:     s.now(),
			TenantID:      s.cfg.TenantID,
			NetworkID:     s.cfg.NetworkID,
			ReadBy:        []string{s.cfg.AppID},
		},
	}
}
