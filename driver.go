package convogen

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// ──────────────────────────────────────────────
// Dataset Driver — repeats the loop across sampled scenarios
// ──────────────────────────────────────────────

// DriverConfig configures a generation run.
type DriverConfig struct {
	Iterations int
	MinTurns   int
	MaxTurns   int
	ChatModel  string
	// Models is the full list recorded in the dataset metadata,
	// including any reasoning/judge model the policy uses.
	Models []string
	Params Params
	Seed   int64  // recorded in metadata; 0 = unseeded run
	Policy string // recorded in metadata, e.g. "reflection"
}

// RunStats tracks running statistics across a generation run. Counters
// are atomic so a future parallel driver can share them; the
// ending-reason map keeps its own lock.
type RunStats struct {
	Conversations atomic.Int64
	TotalTurns    atomic.Int64
	Errored       atomic.Int64

	mu            sync.Mutex
	endingReasons map[string]int
}

func newRunStats() *RunStats {
	return &RunStats{endingReasons: map[string]int{}}
}

func (s *RunStats) record(r *ConversationResult) {
	s.Conversations.Inc()
	s.TotalTurns.Add(int64(r.Turns))
	if r.EndingReason == EndingError {
		s.Errored.Inc()
	}
	s.mu.Lock()
	s.endingReasons[r.EndingReason]++
	s.mu.Unlock()
}

// EndingReasons returns a copy of the per-reason counts.
func (s *RunStats) EndingReasons() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.endingReasons))
	for k, v := range s.endingReasons {
		out[k] = v
	}
	return out
}

// Print writes a human-readable summary.
func (s *RunStats) Print(w io.Writer) {
	bold := color.New(color.Bold)
	total := s.Conversations.Load()
	turns := s.TotalTurns.Load()

	bold.Fprintln(w, "Statistics:")
	fmt.Fprintf(w, "- Total conversations: %d\n", total)
	fmt.Fprintf(w, "- Total turns: %d\n", turns)
	if total > 0 {
		fmt.Fprintf(w, "- Average turns per conversation: %.2f\n", float64(turns)/float64(total))
	}

	reasons := s.EndingReasons()
	names := make([]string, 0, len(reasons))
	for name := range reasons {
		names = append(names, name)
	}
	sort.Strings(names)

	bold.Fprintln(w, "Ending reasons:")
	for _, name := range names {
		line := fmt.Sprintf("- %s: %d", name, reasons[name])
		if name == EndingError {
			color.New(color.FgRed).Fprintln(w, line)
		} else {
			fmt.Fprintln(w, line)
		}
	}
}

// Driver owns the dataset and delegates single conversations to the
// generator. Iterations run sequentially; each model call is a blocking
// round trip, so there is nothing to overlap within a conversation.
type Driver struct {
	gen    *Generator
	sink   Sink // optional
	config DriverConfig
	log    *logrus.Entry
}

// NewDriver creates a dataset driver. sink may be nil for dry runs.
func NewDriver(gen *Generator, sink Sink, config DriverConfig, log *logrus.Entry) *Driver {
	if log == nil {
		log = discardLogger()
	}
	return &Driver{gen: gen, sink: sink, config: config, log: log}
}

// Run generates the configured number of conversations, persisting the
// full dataset after every turn and once more at completion. A failed
// conversation is recorded and counted, never fatal; configuration and
// persistence errors are.
func (d *Driver) Run(ctx context.Context) (*Dataset, *RunStats, error) {
	cfg := d.config
	ds := NewDataset(cfg.Models, RunParams{
		Iterations:  cfg.Iterations,
		MinTurns:    cfg.MinTurns,
		MaxTurns:    cfg.MaxTurns,
		Policy:      cfg.Policy,
		Temperature: cfg.Params.Temperature,
		Seed:        cfg.Seed,
	}, time.Now())
	stats := newRunStats()

	checkpoint := func(ctx context.Context) error {
		if d.sink == nil {
			return nil
		}
		return d.sink.Persist(ctx, ds)
	}

	d.log.WithFields(logrus.Fields{
		"iterations": cfg.Iterations,
		"min_turns":  cfg.MinTurns,
		"max_turns":  cfg.MaxTurns,
	}).Info("starting generation run")

	for i := 1; i <= cfg.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return ds, stats, err
		}

		sc, err := d.sampleScenario()
		if err != nil {
			return ds, stats, err
		}

		d.log.WithFields(logrus.Fields{
			"conversation": fmt.Sprintf("%d/%d", i, cfg.Iterations),
			"category":     sc.Category,
			"scenario":     sc.Name,
		}).Info("generating conversation")

		r := NewConversationShell(&sc)
		ds.Append(r)

		loopCfg := LoopConfig{
			MinTurns:  cfg.MinTurns,
			MaxTurns:  cfg.MaxTurns,
			ChatModel: cfg.ChatModel,
			Params:    cfg.Params,
		}
		if err := d.gen.Run(ctx, &sc, loopCfg, r, checkpoint); err != nil {
			// ConfigurationError or persistence failure: both poison the
			// whole run, stop here with the dataset as persisted so far.
			return ds, stats, err
		}

		stats.record(r)
		d.log.WithFields(logrus.Fields{
			"turns":         r.Turns,
			"ending_reason": r.EndingReason,
		}).Info("completed conversation")
	}

	if err := checkpoint(ctx); err != nil {
		return ds, stats, err
	}
	return ds, stats, nil
}

// sampleScenario draws from the role-based catalog when present, else
// from the topic/expectation catalog.
func (d *Driver) sampleScenario() (Scenario, error) {
	seeds := d.gen.seeds
	if len(seeds.Scenarios) > 0 {
		return seeds.SelectScenario(d.gen.rng)
	}
	return seeds.SelectScenarioWithExpectation(d.gen.rng)
}
