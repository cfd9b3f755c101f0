package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManualScheduler_FiresInDeadlineOrder(t *testing.T) {
	req := require.New(t)
	s := NewManualScheduler()
	var order []string

	s.AfterFunc(3*time.Second, func() { order = append(order, "c") })
	s.AfterFunc(time.Second, func() { order = append(order, "a") })
	s.AfterFunc(time.Second, func() { order = append(order, "b") })
	stopped := s.AfterFunc(2*time.Second, func() { order = append(order, "never") })
	req.True(stopped.Stop())
	req.False(stopped.Stop())

	s.Advance(2 * time.Second)
	req.Equal([]string{"a", "b"}, order)
	req.Equal(2*time.Second, s.Elapsed())
	req.Equal(1, s.Pending())

	s.Advance(time.Second)
	req.Equal([]string{"a", "b", "c"}, order)
	req.Zero(s.Pending())
}

func TestManualScheduler_NestedTimersInsideWindow(t *testing.T) {
	s := NewManualScheduler()
	fired := 0
	var tick func()
	tick = func() {
		fired++
		s.AfterFunc(time.Second, tick)
	}
	s.AfterFunc(time.Second, tick)

	s.Advance(5 * time.Second)
	require.Equal(t, 5, fired)
	require.Equal(t, 1, s.Pending())
}

func TestCorpusActorIDs(t *testing.T) {
	require.Equal(t, "actor-marc-obiang", actorID("Marc Obiang"))
	require.Equal(t, "actor-jean-baptiste-ndong", actorID("Jean-Baptiste Ndong"))
	require.Equal(t, "actor-service-etat-civil", actorID("  Service Etat Civil "))
	require.True(t, DemoCorpus().valid())
	require.False(t, Corpus{}.valid())
}
