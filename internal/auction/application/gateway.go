package application

import (
	"context"
	"sync"
	"time"

	"github.com/cristianortiz/liveAuction/internal/auction/domain"
	"github.com/cristianortiz/liveAuction/internal/shared/metrics"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// lane is the single-writer critical section of one auction. pending bounds how many
// bids may wait for it; lock holds one token while an adjudication runs.
type lane struct {
	pending chan struct{}
	lock    chan struct{}
}

// Gateway admits work into per-auction lanes. Two auctions never share a lane, so a busy
// auction cannot slow down another one.
type Gateway struct {
	clock   clockwork.Clock
	depth   int
	wait    time.Duration
	metrics *metrics.Metrics

	mu    sync.Mutex
	lanes map[uuid.UUID]*lane
}

func NewGateway(clock clockwork.Clock, queueDepth int, admissionWait time.Duration, m *metrics.Metrics) *Gateway {
	return &Gateway{
		clock:   clock,
		depth:   queueDepth,
		wait:    admissionWait,
		metrics: m,
		lanes:   make(map[uuid.UUID]*lane),
	}
}

func (g *Gateway) lane(auctionID uuid.UUID) *lane {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.lanes[auctionID]
	if !ok {
		l = &lane{
			pending: make(chan struct{}, g.depth),
			lock:    make(chan struct{}, 1),
		}
		g.lanes[auctionID] = l
	}
	return l
}

// Remove forgets an auction's lane. Callers already holding the lane keep it until they
// leave; the next caller gets a new one.
func (g *Gateway) Remove(auctionID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.lanes, auctionID)
}

// Lanes is the number of lanes currently held.
func (g *Gateway) Lanes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.lanes)
}

// Admit runs fn inside the auction's lane. It fails fast with domain.ErrBusy when the
// lane's queue is full or the lane is not free within the admission wait; fn has not run
// in that case.
func (g *Gateway) Admit(ctx context.Context, auctionID uuid.UUID, fn func() error) error {
	l := g.lane(auctionID)

	select {
	case l.pending <- struct{}{}:
	default:
		g.reject(auctionID, "queue_full")
		return domain.ErrBusy
	}
	defer func() { <-l.pending }()

	start := g.clock.Now()
	select {
	case l.lock <- struct{}{}:
	default:
		timer := g.clock.NewTimer(g.wait)
		defer timer.Stop()
		select {
		case l.lock <- struct{}{}:
		case <-timer.Chan():
			g.reject(auctionID, "wait_timeout")
			return domain.ErrBusy
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	defer func() { <-l.lock }()

	if g.metrics != nil {
		g.metrics.RecordAdmissionWait(g.clock.Since(start))
	}
	return fn()
}

// Run runs fn inside the auction's lane without the queue bound or admission wait.
// Clock-driven transitions and administrative actions use it; only ctx limits the wait.
func (g *Gateway) Run(ctx context.Context, auctionID uuid.UUID, fn func() error) error {
	l := g.lane(auctionID)
	select {
	case l.lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.lock }()
	return fn()
}

func (g *Gateway) reject(auctionID uuid.UUID, reason string) {
	log.Warn("Bid refused by admission gateway",
		zap.String("auctionID", auctionID.String()),
		zap.String("reason", reason),
	)
	if g.metrics != nil {
		g.metrics.RecordAdmissionRejected(reason)
	}
}
