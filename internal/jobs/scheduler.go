// Package jobs runs recurring tasks inside the serve process
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sumfields/sumfields/internal/logger"
	"github.com/sumfields/sumfields/internal/status"
)

// Task is the work a schedule runs
type Task func(ctx context.Context) error

// Schedule defines a recurring task
type Schedule struct {
	Name     string
	Interval time.Duration
	Task     Task
	Enabled  bool
	LastRun  time.Time
	NextRun  time.Time
	LastErr  error
}

// Every is a helper to create a schedule with a simple interval
func Every(name string, interval time.Duration, task Task) *Schedule {
	return &Schedule{
		Name:     name,
		Interval: interval,
		Task:     task,
	}
}

// Scheduler checks its schedules once per tick and runs the due ones in
// its own goroutine, one at a time
type Scheduler struct {
	schedules map[string]*Schedule
	log       *logger.Logger
	tick      time.Duration
	now       func() time.Time

	mu       sync.RWMutex
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a scheduler
func NewScheduler(log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{
		schedules: make(map[string]*Schedule),
		log:       log,
		tick:      time.Second,
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}
}

// AddSchedule adds a recurring task. The first run is one interval from now.
func (s *Scheduler) AddSchedule(schedule *Schedule) error {
	if schedule.Name == "" {
		return fmt.Errorf("schedule name is required")
	}
	if schedule.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if schedule.Task == nil {
		return fmt.Errorf("task is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schedules[schedule.Name]; exists {
		return fmt.Errorf("schedule already exists: %s", schedule.Name)
	}

	schedule.NextRun = s.now().Add(schedule.Interval)
	schedule.Enabled = true
	s.schedules[schedule.Name] = schedule

	s.log.Info("schedule added", "name", schedule.Name, "interval", schedule.Interval)
	return nil
}

// Start runs the scheduler until ctx is done or Stop is called
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
	s.log.Info("scheduler started")
}

// Stop stops the scheduler and waits for a running task to return
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runDue(ctx, s.now())
		}
	}
}

// runDue runs every due schedule, in name order. Tasks run without the
// lock held.
func (s *Scheduler) runDue(ctx context.Context, now time.Time) {
	s.mu.RLock()
	var due []*Schedule
	for _, schedule := range s.schedules {
		if schedule.Enabled && !now.Before(schedule.NextRun) {
			due = append(due, schedule)
		}
	}
	s.mu.RUnlock()

	sort.Slice(due, func(i, j int) bool { return due[i].Name < due[j].Name })

	for _, schedule := range due {
		if ctx.Err() != nil {
			return
		}

		err := schedule.Task(ctx)
		switch {
		case err == nil:
			s.log.Info("scheduled task finished", "name", schedule.Name)
		case errors.Is(err, status.ErrBusy):
			s.log.Info("scheduled task skipped, a run is in progress", "name", schedule.Name)
		default:
			s.log.Error("scheduled task failed", "name", schedule.Name, "error", err)
		}

		finished := s.now()
		s.mu.Lock()
		schedule.LastRun = now
		schedule.LastErr = err
		schedule.NextRun = finished.Add(schedule.Interval)
		s.mu.Unlock()
	}
}
