package timersync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cristianortiz/liveAuction/internal/shared/logger"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

var errUnresolved = errors.New("auction still live at its predicted deadline")

// Refresher fetches the authoritative snapshot of an auction.
type Refresher interface {
	Refresh(ctx context.Context, auctionID uuid.UUID) (Snapshot, error)
}

type Config struct {
	Tick           time.Duration
	RefreshTimeout time.Duration
	BackoffBase    time.Duration
	BackoffMax     time.Duration
}

func DefaultConfig() Config {
	return Config{
		Tick:           time.Second,
		RefreshTimeout: 5 * time.Second,
		BackoffBase:    time.Second,
		BackoffMax:     30 * time.Second,
	}
}

// Sync drives the countdown of one auction. Snapshots come from the event stream through
// Apply; the refresher is only used when the countdown reaches zero on a live auction.
type Sync struct {
	clock     clockwork.Clock
	auctionID uuid.UUID
	refresher Refresher
	cfg       Config
	report    func(Countdown)

	mu          sync.Mutex
	snap        Snapshot
	offset      time.Duration
	stampedAt   time.Time // server time the offset was derived from
	have        bool
	failures    int
	nextAttempt time.Time

	refreshing atomic.Bool
	refreshes  sync.WaitGroup
}

// New creates a Sync for auctionID. report is called on every tick, from Run's goroutine.
func New(clock clockwork.Clock, auctionID uuid.UUID, refresher Refresher, cfg Config, report func(Countdown)) *Sync {
	def := DefaultConfig()
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = def.RefreshTimeout
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = cfg.BackoffBase
	}
	if report == nil {
		report = func(Countdown) {}
	}
	return &Sync{
		clock:     clock,
		auctionID: auctionID,
		refresher: refresher,
		cfg:       cfg,
		report:    report,
	}
}

// Apply replaces the cached snapshot unless it is older than the one held. The clock offset
// is re-derived only from a server time newer than the last one used, so a cached or
// replayed body cannot drag the countdown. receivedAt is the local receive time.
func (s *Sync) Apply(snap Snapshot, receivedAt time.Time) bool {
	if snap.AuctionID != s.auctionID {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.have && snap.Sequence < s.snap.Sequence {
		return false
	}
	s.snap = snap
	s.have = true
	if snap.ServerTime.After(s.stampedAt) {
		s.offset = snap.ServerTime.Sub(receivedAt)
		s.stampedAt = snap.ServerTime
	}
	return true
}

// Current is the countdown at the clock's current time; ok is false before any snapshot.
func (s *Sync) Current() (Countdown, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.have {
		return Countdown{}, false
	}
	return countdownOf(s.snap, s.offset, s.clock.Now()), true
}

// Run ticks until ctx is done and waits for an in-flight refresh before returning.
func (s *Sync) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.cfg.Tick)
	defer func() {
		ticker.Stop()
		s.refreshes.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			s.tick(ctx)
		}
	}
}

func (s *Sync) tick(ctx context.Context) {
	s.mu.Lock()
	if !s.have {
		s.mu.Unlock()
		return
	}
	now := s.clock.Now()
	c := countdownOf(s.snap, s.offset, now)
	due := c.Remaining == 0 && s.snap.Live() && !now.Before(s.nextAttempt)
	s.mu.Unlock()

	if due && s.refreshing.CompareAndSwap(false, true) {
		s.refreshes.Add(1)
		go s.refresh(ctx)
	}
	s.report(c)
}

func (s *Sync) refresh(ctx context.Context) {
	defer s.refreshes.Done()
	defer s.refreshing.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RefreshTimeout)
	defer cancel()

	snap, err := s.refresher.Refresh(ctx, s.auctionID)
	now := s.clock.Now()
	if err == nil {
		s.Apply(snap, now)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil && s.snap.Live() && Remaining(s.snap, s.offset, now) == 0 {
		err = errUnresolved
	}
	if err != nil {
		s.failures++
		delay := Backoff(s.cfg.BackoffBase, s.cfg.BackoffMax, s.failures)
		s.nextAttempt = now.Add(delay)
		log.Debug("Countdown refresh unresolved, backing off",
			zap.String("auctionID", s.auctionID.String()),
			zap.Int("failures", s.failures),
			zap.Duration("retryIn", delay),
			zap.Error(err),
		)
		return
	}
	s.failures = 0
	s.nextAttempt = time.Time{}
}

// Backoff is base doubled per earlier attempt, capped at ceiling.
func Backoff(base, ceiling time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt && d < ceiling; i++ {
		d *= 2
	}
	return min(d, ceiling)
}
