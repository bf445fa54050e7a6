package ecs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// SchedulerStats provides statistics about scheduler execution.
type SchedulerStats struct {
	SystemCount     int
	StageCount      int
	Frames          int64
	TotalExecutions int64
	Systems         []SystemStats
}

// SystemStats provides execution statistics for a single system.
type SystemStats struct {
	Name           string
	Stage          int
	ExecutionCount int64
	SkipCount      int64
	MinDuration    time.Duration
	MaxDuration    time.Duration
	AvgDuration    time.Duration
	LastDuration   time.Duration
	TotalDuration  time.Duration
}

type systemStatsInternal struct {
	executionCount int64
	skipCount      int64
	minDuration    time.Duration
	maxDuration    time.Duration
	totalDuration  time.Duration
	lastDuration   time.Duration
}

func (s *systemStatsInternal) record(duration time.Duration) {
	s.executionCount++
	s.lastDuration = duration
	s.totalDuration += duration

	if duration < s.minDuration {
		s.minDuration = duration
	}
	if duration > s.maxDuration {
		s.maxDuration = duration
	}
}

// SystemId is the registration sequence number of a system.
type SystemId int

type systemEntry struct {
	id     SystemId
	name   string
	system System
	before []string
	after  []string
	access Access
	stage  int
	stats  systemStatsInternal
}

// Stage is a set of systems that run concurrently.
type Stage struct {
	Systems []string
	ids     []SystemId
}

// Schedule is the ordered list of stages built from the registered systems.
type Schedule struct {
	Stages []Stage
}

// String renders one line per stage, for example "stage 0: input, physics".
func (s Schedule) String() string {
	var b strings.Builder
	for i, stage := range s.Stages {
		fmt.Fprintf(&b, "stage %d: %s\n", i, strings.Join(stage.Systems, ", "))
	}
	return b.String()
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithWorkers limits how many systems of one stage run at the same time.
// Defaults to GOMAXPROCS.
func WithWorkers(n int) SchedulerOption {
	return func(s *Scheduler) {
		s.workers = n
	}
}

// WithLogger sets the scheduler's logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// Scheduler orders systems by their before/after hints, groups systems whose
// component access does not conflict into stages, and runs the stages in order.
type Scheduler struct {
	storage  *Storage
	systems  []*systemEntry
	byName   map[string]*systemEntry
	workers  int
	logger   *slog.Logger
	schedule *Schedule
	frames   uint64
}

// NewScheduler creates a new scheduler for the given storage.
func NewScheduler(storage *Storage, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		storage: storage,
		byName:  make(map[string]*systemEntry),
		workers: runtime.GOMAXPROCS(0),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.workers < 1 {
		s.workers = 1
	}
	return s
}

// Register adds a system under name. An empty name falls back to the system's type name.
// The system's access set is the union of WithAccess, WithQueries and every exported
// *Query or *Singleton field of the system struct.
func (s *Scheduler) Register(name string, system System, opts ...SystemOption) (SystemId, error) {
	if name == "" {
		name = systemName(system)
	}
	if _, ok := s.byName[name]; ok {
		return 0, fmt.Errorf("%w: %q", ErrDuplicateSystem, name)
	}

	var cfg systemConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	entry := &systemEntry{
		id:     SystemId(len(s.systems)),
		name:   name,
		system: system,
		before: cfg.before,
		after:  cfg.after,
		access: cfg.access.Union(discoverAccess(system)),
		stats: systemStatsInternal{
			minDuration: time.Duration(1<<63 - 1),
		},
	}
	s.systems = append(s.systems, entry)
	s.byName[name] = entry
	s.schedule = nil

	s.logger.Debug("system registered",
		"name", name,
		"id", entry.id,
		"reads", entry.access.Reads,
		"writes", entry.access.Writes,
	)
	return entry.id, nil
}

// MustRegister is Register that panics on error.
func (s *Scheduler) MustRegister(name string, system System, opts ...SystemOption) SystemId {
	id, err := s.Register(name, system, opts...)
	if err != nil {
		panic(err)
	}
	return id
}

// BuildSchedule orders systems topologically, breaking ties by registration order,
// and places each one in the earliest stage after all of its predecessors that holds
// no conflicting system.
func (s *Scheduler) BuildSchedule() (Schedule, error) {
	if s.schedule != nil {
		return *s.schedule, nil
	}

	n := len(s.systems)
	succ := make([][]int, n)
	preds := make([][]int, n)
	indeg := make([]int, n)
	seen := make(map[[2]int]struct{})

	addEdge := func(from, to int) {
		key := [2]int{from, to}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		succ[from] = append(succ[from], to)
		preds[to] = append(preds[to], from)
		indeg[to]++
	}

	for _, entry := range s.systems {
		for _, name := range entry.after {
			other, ok := s.byName[name]
			if !ok {
				return Schedule{}, fmt.Errorf("%w: %q (after hint of %q)", ErrUnknownSystem, name, entry.name)
			}
			addEdge(int(other.id), int(entry.id))
		}
		for _, name := range entry.before {
			other, ok := s.byName[name]
			if !ok {
				return Schedule{}, fmt.Errorf("%w: %q (before hint of %q)", ErrUnknownSystem, name, entry.name)
			}
			addEdge(int(entry.id), int(other.id))
		}
	}

	// Kahn's algorithm with a ready list kept sorted by sequence number.
	var ready []int
	for i := range n {
		if indeg[i] == 0 {
			ready = append(ready, i)
		}
	}
	order := make([]int, 0, n)
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, to := range succ[next] {
			indeg[to]--
			if indeg[to] == 0 {
				pos, _ := slices.BinarySearch(ready, to)
				ready = slices.Insert(ready, pos, to)
			}
		}
	}

	if len(order) < n {
		var cycle []string
		for i, d := range indeg {
			if d > 0 {
				cycle = append(cycle, s.systems[i].name)
			}
		}
		return Schedule{}, fmt.Errorf("%w: %s", ErrCyclicDependency, strings.Join(cycle, ", "))
	}

	var stages [][]int
	for _, i := range order {
		entry := s.systems[i]
		earliest := 0
		for _, p := range preds[i] {
			earliest = max(earliest, s.systems[p].stage+1)
		}

		stage := earliest
		for ; stage < len(stages); stage++ {
			if !s.conflicts(entry, stages[stage]) {
				break
			}
		}
		if stage == len(stages) {
			stages = append(stages, nil)
		}
		stages[stage] = append(stages[stage], i)
		entry.stage = stage
	}

	schedule := Schedule{Stages: make([]Stage, len(stages))}
	for i, members := range stages {
		slices.Sort(members)
		stage := Stage{
			Systems: make([]string, len(members)),
			ids:     make([]SystemId, len(members)),
		}
		for j, m := range members {
			stage.Systems[j] = s.systems[m].name
			stage.ids[j] = SystemId(m)
		}
		schedule.Stages[i] = stage
		s.logger.Debug("stage planned", "stage", i, "systems", stage.Systems)
	}

	s.schedule = &schedule
	return schedule, nil
}

func (s *Scheduler) conflicts(entry *systemEntry, stage []int) bool {
	for _, other := range stage {
		if entry.access.ConflictsWith(s.systems[other].access) {
			return true
		}
	}
	return false
}

// Once executes every stage once with the given delta time. Systems of a stage run in
// parallel; their command buffers are flushed in registration order once the whole
// stage is done. If a system fails, its stage still finishes, later stages are
// skipped and the error is returned. Flush errors are returned without skipping stages.
func (s *Scheduler) Once(dt float64) error {
	schedule, err := s.BuildSchedule()
	if err != nil {
		return err
	}
	s.frames++
	s.storage.RotateRemoved()

	var runErr, flushErr error
	for index, stage := range schedule.Stages {
		if runErr != nil {
			for _, id := range stage.ids {
				s.systems[id].stats.skipCount++
			}
			continue
		}

		frames := make([]*UpdateFrame, len(stage.ids))
		errs := make([]error, len(stage.ids))

		var g errgroup.Group
		g.SetLimit(s.workers)
		for i, id := range stage.ids {
			entry := s.systems[id]
			frames[i] = newUpdateFrame(dt, s.frames, s.storage, entry.name)
			g.Go(func() error {
				start := time.Now()
				err := entry.system.Execute(frames[i])
				entry.stats.record(time.Since(start))
				if err != nil {
					errs[i] = fmt.Errorf("system %q: %w", entry.name, err)
				}
				return nil
			})
		}
		_ = g.Wait()

		for i, frame := range frames {
			if errs[i] != nil {
				// commands of a failed system are discarded
				continue
			}
			if err := frame.Commands.Flush(s.storage); err != nil {
				s.logger.Warn("command flush failed", "system", frame.System, "err", err)
				flushErr = errors.Join(flushErr, fmt.Errorf("flush %q: %w", frame.System, err))
			}
		}

		if runErr = errors.Join(errs...); runErr != nil {
			s.logger.Debug("stage failed", "stage", index, "err", runErr)
		}
	}

	return errors.Join(runErr, flushErr)
}

// Run executes all systems repeatedly at the given interval until the context is
// cancelled or a step fails.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			dt := now.Sub(lastTime).Seconds()
			lastTime = now
			if err := s.Once(dt); err != nil {
				return err
			}
		}
	}
}

// GetStats returns statistics about system execution.
func (s *Scheduler) GetStats() *SchedulerStats {
	stats := &SchedulerStats{
		SystemCount: len(s.systems),
		Frames:      int64(s.frames),
		Systems:     make([]SystemStats, len(s.systems)),
	}
	if s.schedule != nil {
		stats.StageCount = len(s.schedule.Stages)
	}

	var totalExecs int64
	for i, entry := range s.systems {
		internal := entry.stats
		avgDuration := time.Duration(0)
		minDuration := internal.minDuration
		if internal.executionCount > 0 {
			avgDuration = internal.totalDuration / time.Duration(internal.executionCount)
		} else {
			minDuration = 0
		}

		stats.Systems[i] = SystemStats{
			Name:           entry.name,
			Stage:          entry.stage,
			ExecutionCount: internal.executionCount,
			SkipCount:      internal.skipCount,
			MinDuration:    minDuration,
			MaxDuration:    internal.maxDuration,
			AvgDuration:    avgDuration,
			LastDuration:   internal.lastDuration,
			TotalDuration:  internal.totalDuration,
		}
		totalExecs += internal.executionCount
	}

	stats.TotalExecutions = totalExecs
	return stats
}
