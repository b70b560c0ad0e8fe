package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cristianortiz/liveAuction/internal/auction/application"
	"github.com/cristianortiz/liveAuction/internal/auction/timersync"
	"github.com/cristianortiz/liveAuction/internal/shared/logger"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	reconnectBase = 500 * time.Millisecond
	reconnectMax  = 15 * time.Second
)

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type frame struct {
	ServerTime time.Time            `json:"server_time"`
	Event      application.EventDTO `json:"event"`
}

// stream keeps a websocket open to the auction and feeds every snapshot it carries to
// the countdown. It reconnects from the last sequence it saw.
type stream struct {
	clock     clockwork.Clock
	url       string
	countdown *timersync.Sync
	dialer    *websocket.Dialer
	lastSeq   int64
}

func newStream(clock clockwork.Clock, url string, countdown *timersync.Sync) *stream {
	return &stream{
		clock:     clock,
		url:       url,
		countdown: countdown,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

func (s *stream) Run(ctx context.Context) error {
	log := logger.GetLogger()
	for attempt := 0; ; attempt++ {
		err := s.follow(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			attempt = 0
		}
		delay := timersync.Backoff(reconnectBase, reconnectMax, attempt+1)
		log.Warn("Event stream lost, reconnecting",
			zap.Int64("afterSeq", s.lastSeq),
			zap.Duration("retryIn", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(delay):
		}
	}
}

// follow reads one connection until it breaks. A nil error means the connection was
// established before it broke.
func (s *stream) follow(ctx context.Context) error {
	url := s.url
	if s.lastSeq > 0 {
		url += "?after=" + strconv.FormatInt(s.lastSeq, 10)
	}
	conn, resp, err := s.dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", url, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil
		}
		snap, seq, ok := decodeSnapshot(data)
		if !ok {
			continue
		}
		s.countdown.Apply(snap, s.clock.Now())
		if seq > s.lastSeq {
			s.lastSeq = seq
		}
	}
}

// decodeSnapshot extracts the snapshot carried by an event message. Replies and errors
// are skipped.
func decodeSnapshot(data []byte) (timersync.Snapshot, int64, bool) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type != "server_auction_event" {
		return timersync.Snapshot{}, 0, false
	}
	var f frame
	if err := json.Unmarshal(env.Payload, &f); err != nil || len(f.Event.Snapshot) == 0 {
		return timersync.Snapshot{}, 0, false
	}
	var dto application.SnapshotDTO
	if err := json.Unmarshal(f.Event.Snapshot, &dto); err != nil {
		return timersync.Snapshot{}, 0, false
	}
	snap := timersync.FromDTO(dto)
	// the frame's send time is the freshest server reading
	snap.ServerTime = f.ServerTime
	return snap, f.Event.Sequence, true
}
