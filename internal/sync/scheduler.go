package sync

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/freightdesk/crm-backend/internal/config"
)

// ErrSyncTimeout is returned when an on-demand sync does not finish within
// the configured deadline. The underlying cycle is abandoned, not killed;
// its session closes on the protocol timeouts.
var ErrSyncTimeout = errors.New("sync timed out")

// Runner is the unit the scheduler drives. The orchestrator implements it.
type Runner interface {
	SyncAll(ctx context.Context)
	SyncOne(ctx context.Context, accountID string) error
}

// Scheduler triggers sync cycles on a fixed interval. Cycles never overlap:
// if one is still running when the ticker fires, the tick is skipped rather
// than queued and the next tick tries again.
type Scheduler struct {
	runner        Runner
	interval      time.Duration
	manualTimeout time.Duration

	running       atomic.Bool
	cyclesStarted atomic.Int64

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewScheduler(runner Runner, cfg *config.Config) *Scheduler {
	return &Scheduler{
		runner:        runner,
		interval:      cfg.SyncInterval,
		manualTimeout: cfg.ManualSyncTimeout,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start runs the scheduling loop until Stop is called or ctx is cancelled.
// The first cycle fires immediately.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunCycle(ctx)

	for {
		select {
		case <-ticker.C:
			s.RunCycle(ctx)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts the scheduling loop and waits for it to exit. A cycle already
// in flight finishes on its own.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// RunCycle syncs all accounts once. Returns false when a cycle was already
// in flight and this one was skipped.
func (s *Scheduler) RunCycle(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		log.Printf("Warning: sync cycle still running, skipping tick")
		return false
	}
	defer s.running.Store(false)

	s.cyclesStarted.Add(1)
	s.runner.SyncAll(ctx)
	return true
}

// CyclesStarted reports how many cycles have begun since startup. Skipped
// ticks do not count.
func (s *Scheduler) CyclesStarted() int64 {
	return s.cyclesStarted.Load()
}

// SyncAccount runs an on-demand sync of one account and waits for the
// result. It runs independently of the scheduled cycle. If the sync takes
// longer than the manual timeout, ErrSyncTimeout is returned while the
// sync itself keeps running in the background.
func (s *Scheduler) SyncAccount(ctx context.Context, accountID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.manualTimeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		result <- s.runner.SyncOne(context.WithoutCancel(ctx), accountID)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ErrSyncTimeout
	}
}
