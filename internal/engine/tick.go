package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Task names, in the order a cycle runs them.
const (
	TaskTick        = "tick"
	TaskStorms      = "storms"
	TaskBulletins   = "bulletins"
	TaskPredictions = "predictions"
)

// Cadence says how often each task runs. A zero duration disables a task.
type Cadence struct {
	Tick        time.Duration
	Storms      time.Duration
	Bulletins   time.Duration
	Predictions time.Duration
}

// DefaultCadence returns the standard schedule.
func DefaultCadence() Cadence {
	return Cadence{
		Tick:        15 * time.Minute,
		Storms:      15 * time.Minute,
		Bulletins:   6 * time.Hour,
		Predictions: 24 * time.Hour,
	}
}

// TaskRun records the latest run of a task.
type TaskRun struct {
	Cycle    string        `json:"cycle"`
	At       time.Time     `json:"at"`
	Duration time.Duration `json:"durationNs"`
	Targets  int           `json:"targets"`
	Failures int           `json:"failures"`
}

// Scheduler drives the game's periodic tasks. Each cycle lists the target
// cities and stations first and hands the ids to the game explicitly.
type Scheduler struct {
	game    *Game
	cadence Cadence

	// Interval is how often the scheduler wakes to look for due tasks.
	Interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastRun map[string]TaskRun
}

// NewScheduler creates a scheduler for g.
func NewScheduler(g *Game, cadence Cadence) *Scheduler {
	return &Scheduler{
		game:     g,
		cadence:  cadence,
		Interval: time.Minute,
		lastRun:  make(map[string]TaskRun),
	}
}

// Run starts the loop. It blocks until ctx is cancelled or Stop is called.
// Every task is due on the first pass.
func (s *Scheduler) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()
	defer close(done)

	slog.Info("scheduler started",
		"tick", s.cadence.Tick, "storms", s.cadence.Storms,
		"bulletins", s.cadence.Bulletins, "predictions", s.cadence.Predictions)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.step(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case now := <-ticker.C:
			s.step(ctx, now)
		}
	}
}

// Stop halts the loop and waits for the current pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Status returns the latest run of each task.
func (s *Scheduler) Status() map[string]TaskRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]TaskRun, len(s.lastRun))
	for k, v := range s.lastRun {
		out[k] = v
	}
	return out
}

func (s *Scheduler) due(task string, every time.Duration, now time.Time) bool {
	if every <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastRun[task]
	return !ok || now.Sub(last.At) >= every
}

func (s *Scheduler) record(task string, run TaskRun) {
	s.mu.Lock()
	s.lastRun[task] = run
	s.mu.Unlock()
}

// step runs every task due at now. The resource tick precedes the storm
// check, and both precede bulletins.
func (s *Scheduler) step(ctx context.Context, now time.Time) {
	tick := s.due(TaskTick, s.cadence.Tick, now)
	storms := s.due(TaskStorms, s.cadence.Storms, now)
	bulletins := s.due(TaskBulletins, s.cadence.Bulletins, now)
	predictions := s.due(TaskPredictions, s.cadence.Predictions, now)
	if !tick && !storms && !bulletins && !predictions {
		return
	}

	cycle := uuid.NewString()
	log := slog.Default().With("cycle", cycle)
	ctx = WithLogger(ctx, log)

	var cityIDs []int64
	if tick || storms || bulletins {
		ids, err := s.game.CityIDs(ctx)
		if err != nil {
			log.Error("list cities failed", "error", err)
			return
		}
		cityIDs = ids
	}

	run := func(task string, targets int, fn func() int) {
		start := time.Now()
		failures := fn()
		s.record(task, TaskRun{
			Cycle:    cycle,
			At:       now,
			Duration: time.Since(start),
			Targets:  targets,
			Failures: failures,
		})
	}

	if tick {
		run(TaskTick, len(cityIDs), func() int {
			ticked, failed := s.game.TickCities(ctx, cityIDs)
			log.Info("resource tick complete", "cities", ticked, "failed", failed)
			return failed
		})
	}
	if storms {
		run(TaskStorms, len(cityIDs), func() int {
			created, failed := s.game.CheckStorms(ctx, cityIDs)
			resolved, err := s.game.ResolveExpiredStorms(ctx)
			if err != nil {
				log.Error("resolve expired storms failed", "error", err)
				failed++
			}
			log.Info("storm check complete", "created", created, "resolved", resolved, "failed", failed)
			return failed
		})
	}
	if bulletins {
		run(TaskBulletins, len(cityIDs), func() int {
			posted, failed := s.game.GenerateBulletins(ctx, cityIDs)
			log.Info("bulletins posted", "cities", posted, "failed", failed)
			return failed
		})
	}
	if predictions {
		stationIDs, err := s.game.StationIDs(ctx)
		if err != nil {
			log.Error("list stations failed", "error", err)
			return
		}
		run(TaskPredictions, len(stationIDs), func() int {
			refreshed := s.game.RefreshPredictions(ctx, stationIDs)
			log.Info("predictions refreshed", "stations", refreshed, "of", len(stationIDs))
			return len(stationIDs) - refreshed
		})
	}
}
