package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CycleFunc is the work the scheduler drives once per tick.
type CycleFunc func(ctx context.Context)

// Scheduler runs processing cycles on a fixed interval. Cycles never overlap:
// a tick that fires while the previous cycle is still running is skipped.
type Scheduler struct {
	cron            *cron.Cron
	entryID         cron.EntryID
	intervalMinutes int
	runner          CycleFunc
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	isRunning       bool
	inCycle         bool
	mu              sync.RWMutex
}

// New creates a scheduler driving runner every intervalMinutes.
func New(intervalMinutes int, runner CycleFunc) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:            cron.New(cron.WithSeconds()),
		intervalMinutes: intervalMinutes,
		runner:          runner,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	schedule := fmt.Sprintf("0 */%d * * * *", s.intervalMinutes)

	entryID, err := s.cron.AddFunc(schedule, s.runCycle)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.entryID = entryID
	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Scheduler started with interval: %d minutes", s.intervalMinutes)
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	// Cancel context to stop any running operations
	s.cancel()

	// Stop the cron scheduler
	ctx := s.cron.Stop()

	// Wait for all jobs to complete
	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}

	s.isRunning = false
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// runCycle is the cron callback.
func (s *Scheduler) runCycle() {
	s.mu.RLock()
	running := s.isRunning
	s.mu.RUnlock()
	if !running {
		logrus.Info("Scheduler not running, skipping cycle")
		return
	}
	s.executeCycle()
}

func (s *Scheduler) executeCycle() {
	s.mu.Lock()
	if s.inCycle {
		s.mu.Unlock()
		logrus.Warn("Previous cycle still running, skipping this tick")
		return
	}
	s.inCycle = true
	s.mu.Unlock()

	s.wg.Add(1)
	defer func() {
		s.mu.Lock()
		s.inCycle = false
		s.mu.Unlock()
		s.wg.Done()
	}()

	logrus.Info("Starting processing cycle")
	start := time.Now()
	s.runner(s.ctx)
	logrus.Infof("Processing cycle completed in %v", time.Since(start))
}

// RunOnce runs one processing cycle immediately, whether or not the cron
// schedule is active. Used by the dashboard's manual trigger.
func (s *Scheduler) RunOnce() error {
	logrus.Info("Running processing cycle once")
	s.executeCycle()
	return nil
}

// GetNextRun returns the time of the next scheduled run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// GetLastRun returns the time of the last run
func (s *Scheduler) GetLastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Prev
}

// Wait waits for any in-flight cycle to finish.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
