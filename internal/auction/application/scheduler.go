package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cristianortiz/liveAuction/internal/shared/metrics"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const workQueueSize = 1024

// transitioner is what the scheduler drives: the engine in production.
type transitioner interface {
	Tick(ctx context.Context, auctionID uuid.UUID) error
	Due(now time.Time) []uuid.UUID
}

type scheduledTimer struct {
	deadline time.Time
	timer    clockwork.Timer
}

// Scheduler fires each auction's next clock transition. One timer per auction is armed at
// its next deadline; a periodic sweep re-enqueues anything that is overdue, so a dropped
// fire only delays a transition by one sweep interval.
type Scheduler struct {
	clock         clockwork.Clock
	target        transitioner
	sweepInterval time.Duration
	workers       int
	metrics       *metrics.Metrics

	mu     sync.Mutex
	timers map[uuid.UUID]scheduledTimer

	workCh chan uuid.UUID
}

func NewScheduler(clock clockwork.Clock, target transitioner, sweepInterval time.Duration, workers int, m *metrics.Metrics) *Scheduler {
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Second
	}
	if workers <= 0 {
		workers = 4
	}
	return &Scheduler{
		clock:         clock,
		target:        target,
		sweepInterval: sweepInterval,
		workers:       workers,
		metrics:       m,
		timers:        make(map[uuid.UUID]scheduledTimer),
		workCh:        make(chan uuid.UUID, workQueueSize),
	}
}

// Schedule arms the auction's timer for deadline, replacing any other deadline. A deadline
// already in the past is enqueued at once.
func (s *Scheduler) Schedule(auctionID uuid.UUID, deadline time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.timers[auctionID]; ok && cur.deadline.Equal(deadline) {
		return
	}

	wait := deadline.Sub(s.clock.Now())
	if wait <= 0 {
		s.stopLocked(auctionID)
		s.enqueue(auctionID)
		return
	}

	timer := s.clock.AfterFunc(wait, func() { s.fire(auctionID, deadline) })
	s.replaceTimer(auctionID, scheduledTimer{deadline: deadline, timer: timer})

	log.Debug("Auction timer armed",
		zap.String("auctionID", auctionID.String()),
		zap.Time("deadline", deadline),
		zap.Duration("wait", wait),
	)
}

// Cancel disarms the auction's timer, if any.
func (s *Scheduler) Cancel(auctionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(auctionID)
}

// replaceTimer must be called with s.mu held.
func (s *Scheduler) replaceTimer(auctionID uuid.UUID, next scheduledTimer) {
	s.stopLocked(auctionID)
	s.timers[auctionID] = next
}

func (s *Scheduler) stopLocked(auctionID uuid.UUID) {
	if cur, ok := s.timers[auctionID]; ok {
		cur.timer.Stop()
		delete(s.timers, auctionID)
	}
}

func (s *Scheduler) fire(auctionID uuid.UUID, deadline time.Time) {
	s.mu.Lock()
	if cur, ok := s.timers[auctionID]; ok && cur.deadline.Equal(deadline) {
		delete(s.timers, auctionID)
	}
	s.mu.Unlock()
	s.enqueue(auctionID)
}

func (s *Scheduler) enqueue(auctionID uuid.UUID) {
	select {
	case s.workCh <- auctionID:
	default:
		log.Warn("Scheduler work queue full, leaving transition to the sweep",
			zap.String("auctionID", auctionID.String()),
		)
	}
}

// Run processes fired timers and sweeps until ctx is done, then disarms every timer.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < s.workers; i++ {
		g.Go(func() error {
			s.work(ctx)
			return nil
		})
	}
	g.Go(func() error {
		s.sweep(ctx)
		return nil
	})
	err := g.Wait()

	s.mu.Lock()
	for id := range s.timers {
		s.stopLocked(id)
	}
	s.mu.Unlock()
	log.Info("Auction scheduler stopped")
	return err
}

func (s *Scheduler) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case auctionID := <-s.workCh:
			if s.metrics != nil {
				s.metrics.RecordTimerFire()
			}
			if err := s.target.Tick(ctx, auctionID); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Scheduled transition failed, sweep will retry",
					zap.String("auctionID", auctionID.String()),
					zap.Error(err),
				)
			}
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	ticker := s.clock.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			for _, auctionID := range s.target.Due(s.clock.Now()) {
				s.enqueue(auctionID)
			}
		}
	}
}
