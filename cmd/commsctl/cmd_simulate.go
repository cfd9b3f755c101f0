package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ndjobi.org/internal/domain"
	"ndjobi.org/internal/events"
	"ndjobi.org/internal/feed"
	"ndjobi.org/internal/realtime"
)

var (
	simDuration time.Duration
	simSeed     int64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the realtime simulator and print its events",
	Long: `Starts the simulator with the NDJOBI_SIM_* settings, prints every event as a JSON line
and stops after --duration or on interrupt. A fixed --seed replays the same sequence.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().DurationVar(&simDuration, "duration", time.Minute, "how long to run")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 0, "random seed (0 picks one from the clock)")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simDuration <= 0 {
		return fmt.Errorf("--duration must be positive")
	}
	seed := simSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	sim, err := realtime.New(cfg.SimulatorConfig(), realtime.WithRand(rand.New(rand.NewSource(seed))))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var (
		mu       sync.Mutex
		messages int
	)
	unsubscribe := sim.Bus().Subscribe(events.Wildcard, func(evt events.Event) {
		line, err := json.Marshal(evt)
		if err != nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(out, string(line))
	})
	defer unsubscribe()

	f := feed.New(sim, feed.WithHistory(10000), feed.OnMessage(func(domain.Message) {
		mu.Lock()
		messages++
		mu.Unlock()
	}))
	defer f.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f.Connect()
	select {
	case <-ctx.Done():
	case <-time.After(simDuration):
	}
	// Disconnect returns once the last event has been delivered.
	f.Disconnect()

	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(cmd.ErrOrStderr(), "seed=%d events=%d messages=%d typing_open=%d\n",
		seed, len(f.Events()), messages, len(f.Typing()))
	return nil
}
