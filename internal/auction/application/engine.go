package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cristianortiz/liveAuction/internal/auction/domain"
	"github.com/cristianortiz/liveAuction/internal/shared/logger"
	"github.com/cristianortiz/liveAuction/internal/shared/metrics"
	"github.com/cristianortiz/liveAuction/internal/shared/pubsub"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

// errEvicted is returned from inside a lane when the copy it was handed is no longer the
// resident one.
var errEvicted = errors.New("auction copy evicted")

const defaultRetention = 10 * time.Minute

// EngineConfig carries the bidding policy and the engine's timeouts.
type EngineConfig struct {
	Policy         domain.Policy
	OvertimeWindow time.Duration // default for auctions created without one
	QueueDepth     int
	AdmissionWait  time.Duration
	StoreTimeout   time.Duration
	ArchiveTimeout time.Duration
	SweepInterval  time.Duration
	Workers        int
	Retention      time.Duration // how long a closed auction stays in memory
}

// Collaborators are the optional outbound ports. Nil fields are skipped.
type Collaborators struct {
	Archiver domain.Archiver
	Prices   domain.PriceBoard
}

// liveAuction is the in-memory copy of one auction. state and evicted are only read or
// written inside the auction's lane; view is the last committed snapshot for lock-free reads.
type liveAuction struct {
	state    *domain.Auction
	view     atomic.Pointer[domain.Snapshot]
	evicted  bool
	expiring atomic.Bool
}

func (la *liveAuction) swap(a *domain.Auction, now time.Time) {
	la.state = a
	snap := a.Snapshot(now)
	la.view.Store(&snap)
}

// Engine owns every live auction. It adjudicates bids and applies clock transitions
// through the gateway lanes, commits each result before it becomes visible and
// publishes the resulting events once the lane is released.
type Engine struct {
	clock     clockwork.Clock
	store     domain.AuctionStore
	broker    *pubsub.Broker
	metrics   *metrics.Metrics
	cfg       EngineConfig
	collab    Collaborators
	gateway   *Gateway
	scheduler *Scheduler

	mu   sync.RWMutex
	live map[uuid.UUID]*liveAuction

	background sync.WaitGroup
}

func NewEngine(clock clockwork.Clock, store domain.AuctionStore, broker *pubsub.Broker, m *metrics.Metrics, cfg EngineConfig, collab Collaborators) *Engine {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 3 * time.Second
	}
	if cfg.ArchiveTimeout <= 0 {
		cfg.ArchiveTimeout = 5 * time.Second
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	e := &Engine{
		clock:   clock,
		store:   store,
		broker:  broker,
		metrics: m,
		cfg:     cfg,
		collab:  collab,
		gateway: NewGateway(clock, cfg.QueueDepth, cfg.AdmissionWait, m),
		live:    make(map[uuid.UUID]*liveAuction),
	}
	e.scheduler = NewScheduler(clock, e, cfg.SweepInterval, cfg.Workers, m)
	return e
}

// Run drives clock transitions until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	return e.scheduler.Run(ctx)
}

// Close waits for outstanding archive and mirror writes.
func (e *Engine) Close() {
	e.background.Wait()
}

// Recover loads every auction that can still change and arms its timer. Auctions whose
// deadline passed while the process was down are settled by the scheduler right away.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	auctions, err := e.store.ListByStatus(ctx, domain.StatusScheduled, domain.StatusActive, domain.StatusOvertime)
	if err != nil {
		return 0, fmt.Errorf("failed to load live auctions: %w", err)
	}
	for _, a := range auctions {
		e.register(a)
		e.rearm(a)
	}
	log.Info("Live auctions recovered", zap.Int("count", len(auctions)))
	return len(auctions), nil
}

func (e *Engine) register(a *domain.Auction) *liveAuction {
	e.mu.Lock()
	defer e.mu.Unlock()
	if la, ok := e.live[a.ID]; ok {
		return la
	}

	la := &liveAuction{}
	la.swap(a, e.clock.Now())
	e.live[a.ID] = la

	snap, err := EncodeSnapshot(*la.view.Load())
	if err != nil {
		log.Error("Failed to encode initial snapshot", zap.String("auctionID", a.ID.String()), zap.Error(err))
	}
	e.broker.Open(a.ID.String(), a.EventSeq, snap)
	return la
}

func (e *Engine) lookup(ctx context.Context, auctionID uuid.UUID) (*liveAuction, error) {
	e.mu.RLock()
	la, ok := e.live[auctionID]
	e.mu.RUnlock()
	if ok {
		return la, nil
	}

	a, err := e.store.GetByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	la = e.register(a)
	e.rearm(a)
	return la, nil
}

// Create schedules a new auction. A zero overtime window takes the configured default.
func (e *Engine) Create(ctx context.Context, item domain.Item, startPrice float64, startTime, regularEndTime time.Time, overtime time.Duration) (domain.Snapshot, error) {
	if overtime <= 0 {
		overtime = e.cfg.OvertimeWindow
	}
	a, err := domain.NewAuction(uuid.New(), item, startPrice, startTime, regularEndTime, overtime, e.clock.Now())
	if err != nil {
		return domain.Snapshot{}, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()
	if err := e.store.Create(storeCtx, a); err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to create auction: %w", err)
	}

	la := e.register(a)
	e.rearm(a)
	log.Info("Auction scheduled",
		zap.String("auctionID", a.ID.String()),
		zap.Time("startTime", a.StartTime),
		zap.Time("regularEndTime", a.RegularEndTime),
	)
	return e.view(la), nil
}

// SubmitBid adjudicates one bid. Rejections are returned as outcomes with a nil error;
// errors mean the bid was not adjudicated (domain.ErrBusy) or not committed
// (domain.ErrAdjudicationFailed), and in both cases the auction is unchanged.
func (e *Engine) SubmitBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount float64, standingOK bool) (domain.Adjudication, error) {
	var (
		result    domain.Adjudication
		committed *domain.Auction
	)
	_, err := e.inLane(ctx, auctionID, e.gateway.Admit, func(la *liveAuction) error {
		now := e.clock.Now()
		staged := la.state.Clone()
		result = staged.Adjudicate(now, uuid.New(), bidderID, amount, e.cfg.Policy, standingOK)
		if err := e.commit(ctx, staged, result.Entry); err != nil {
			return err
		}
		la.swap(staged, now)
		committed = staged
		return nil
	})
	if err != nil {
		return domain.Adjudication{}, err
	}

	if e.metrics != nil {
		e.metrics.RecordAdjudication(string(result.Bid.Outcome))
	}
	log.Debug("Bid adjudicated",
		zap.String("auctionID", auctionID.String()),
		zap.String("bidderID", bidderID.String()),
		zap.Float64("amount", amount),
		zap.String("outcome", string(result.Bid.Outcome)),
		zap.Int64("ledgerSeq", result.Entry.Seq),
	)
	e.afterCommit(committed, result.Events, []domain.LedgerEntry{result.Entry})
	return result, nil
}

// Tick applies the clock transitions due for one auction.
func (e *Engine) Tick(ctx context.Context, auctionID uuid.UUID) error {
	var (
		events    []domain.Event
		committed *domain.Auction
	)
	_, err := e.inLane(ctx, auctionID, e.gateway.Run, func(la *liveAuction) error {
		now := e.clock.Now()
		staged := la.state.Clone()
		events = staged.Advance(now)
		if len(events) == 0 {
			committed = la.state
			return nil
		}
		if err := e.commit(ctx, staged); err != nil {
			return err
		}
		la.swap(staged, now)
		committed = staged
		return nil
	})
	if errors.Is(err, domain.ErrAuctionNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to advance auction %s: %w", auctionID, err)
	}

	for _, ev := range events {
		log.Info("Auction transition",
			zap.String("auctionID", auctionID.String()),
			zap.String("event", string(ev.Type)),
			zap.Int64("seq", ev.Sequence),
		)
	}
	e.afterCommit(committed, events, nil)
	return nil
}

// Cancel moves a SCHEDULED or ACTIVE auction to CANCELLED.
func (e *Engine) Cancel(ctx context.Context, auctionID uuid.UUID) (domain.Snapshot, error) {
	var (
		events    []domain.Event
		committed *domain.Auction
		cancelErr error
	)
	la, err := e.inLane(ctx, auctionID, e.gateway.Run, func(la *liveAuction) error {
		now := e.clock.Now()
		staged := la.state.Clone()
		events, cancelErr = staged.Cancel(now)
		if len(events) == 0 {
			committed = la.state
			return nil
		}
		if err := e.commit(ctx, staged); err != nil {
			return err
		}
		la.swap(staged, now)
		committed = staged
		return nil
	})
	if err != nil {
		return domain.Snapshot{}, err
	}

	e.afterCommit(committed, events, nil)
	if cancelErr != nil {
		return domain.Snapshot{}, cancelErr
	}
	log.Info("Auction cancelled", zap.String("auctionID", auctionID.String()))
	return e.view(la), nil
}

// Snapshot returns the last committed state of an auction without entering its lane.
func (e *Engine) Snapshot(ctx context.Context, auctionID uuid.UUID) (domain.Snapshot, error) {
	la, err := e.lookup(ctx, auctionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return e.view(la), nil
}

// Subscribe attaches an event consumer to an auction. See pubsub.Broker.Subscribe for
// the replay and resync rules.
func (e *Engine) Subscribe(ctx context.Context, auctionID uuid.UUID, subscriberID string, afterSeq int64) (*pubsub.Subscription, error) {
	for {
		if _, err := e.lookup(ctx, auctionID); err != nil {
			return nil, err
		}
		sub, err := e.broker.Subscribe(auctionID.String(), subscriberID, afterSeq)
		if errors.Is(err, pubsub.ErrUnknownTopic) {
			// evicted between the lookup and the subscribe
			continue
		}
		return sub, err
	}
}

// Resident is the number of auctions held in memory.
func (e *Engine) Resident() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.live)
}

// Subscribers is the number of live event consumers of an auction.
func (e *Engine) Subscribers(auctionID uuid.UUID) int {
	return e.broker.Subscribers(auctionID.String())
}

// Due lists the live auctions whose next transition is at or before now.
func (e *Engine) Due(now time.Time) []uuid.UUID {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var due []uuid.UUID
	for id, la := range e.live {
		deadline, ok := la.view.Load().NextDeadline()
		if ok && !now.Before(deadline) {
			due = append(due, id)
		}
	}
	return due
}

// inLane runs fn on the resident copy of an auction inside its lane. When the copy was
// evicted while fn waited for the lane, the auction is reloaded and fn runs on the new copy.
func (e *Engine) inLane(ctx context.Context, auctionID uuid.UUID, enter func(context.Context, uuid.UUID, func() error) error, fn func(la *liveAuction) error) (*liveAuction, error) {
	for {
		la, err := e.lookup(ctx, auctionID)
		if err != nil {
			return nil, err
		}
		err = enter(ctx, auctionID, func() error {
			if la.evicted {
				return errEvicted
			}
			return fn(la)
		})
		if errors.Is(err, errEvicted) {
			continue
		}
		return la, err
	}
}

func (e *Engine) view(la *liveAuction) domain.Snapshot {
	snap := *la.view.Load()
	snap.ServerTime = e.clock.Now().UTC()
	return snap
}

func (e *Engine) commit(ctx context.Context, staged *domain.Auction, entries ...domain.LedgerEntry) error {
	// an admitted attempt completes even if the caller goes away
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.StoreTimeout)
	defer cancel()

	if err := e.store.Commit(ctx, staged, entries...); err != nil {
		if e.metrics != nil {
			e.metrics.RecordCommitFailure()
		}
		log.Error("Failed to commit auction state, attempt aborted",
			zap.String("auctionID", staged.ID.String()),
			zap.Int64("eventSeq", staged.EventSeq),
			zap.Int64("ledgerSeq", staged.LedgerSeq),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", domain.ErrAdjudicationFailed, err)
	}
	return nil
}

// afterCommit runs outside the lane. a is never mutated again once committed: later
// attempts work on clones.
func (e *Engine) afterCommit(a *domain.Auction, events []domain.Event, entries []domain.LedgerEntry) {
	msgs := make([]pubsub.Message, 0, len(events))
	closed := false
	for _, ev := range events {
		msg, err := EncodeEvent(ev)
		if err != nil {
			log.Error("Failed to encode event, not broadcast", zap.String("auctionID", ev.AuctionID.String()), zap.Error(err))
			continue
		}
		msgs = append(msgs, msg)
		if ev.Type == domain.EventAuctionEnded || ev.Type == domain.EventAuctionCancelled {
			closed = true
		}
	}
	if len(msgs) > 0 {
		e.broker.Publish(msgs...)
	}

	e.rearm(a)

	if prices := e.collab.Prices; prices != nil && len(events) > 0 {
		snap := a.Snapshot(e.clock.Now())
		e.inBackground("price board update", a.ID, func(ctx context.Context) error {
			return prices.Publish(ctx, snap)
		})
	}

	archiver := e.collab.Archiver
	if archiver == nil {
		return
	}
	if len(entries) > 0 {
		e.inBackground("ledger archive", a.ID, func(ctx context.Context) error {
			return archiver.ArchiveEntries(ctx, entries)
		})
	}
	if closed {
		record := domain.NewArchiveRecord(a)
		e.inBackground("auction archive", a.ID, func(ctx context.Context) error {
			return archiver.ArchiveAuction(ctx, record)
		})
	}
}

func (e *Engine) rearm(a *domain.Auction) {
	deadline, ok := a.NextDeadline()
	if !ok {
		e.scheduler.Cancel(a.ID)
		e.expire(a.ID)
		return
	}
	e.scheduler.Schedule(a.ID, deadline)
}

// expire drops a closed auction from memory once the retention period has passed. Reads
// after that load it again from the store for another retention period.
func (e *Engine) expire(auctionID uuid.UUID) {
	e.mu.RLock()
	la, ok := e.live[auctionID]
	e.mu.RUnlock()
	if !ok || !la.expiring.CompareAndSwap(false, true) {
		return
	}
	e.clock.AfterFunc(e.cfg.Retention, func() { e.evict(auctionID, la) })
}

func (e *Engine) evict(auctionID uuid.UUID, la *liveAuction) {
	// attempts already in the lane finish first; later ones reload the auction
	_ = e.gateway.Run(context.Background(), auctionID, func() error {
		la.evicted = true
		return nil
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.live[auctionID] != la {
		return
	}
	delete(e.live, auctionID)
	e.gateway.Remove(auctionID)
	e.broker.Close(auctionID.String())
	log.Debug("Closed auction evicted from memory", zap.String("auctionID", auctionID.String()))
}

func (e *Engine) inBackground(what string, auctionID uuid.UUID, fn func(ctx context.Context) error) {
	e.background.Add(1)
	go func() {
		defer e.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ArchiveTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Warn("Background "+what+" failed",
				zap.String("auctionID", auctionID.String()),
				zap.Error(err),
			)
		}
	}()
}
