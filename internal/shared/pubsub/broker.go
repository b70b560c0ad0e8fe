// Package pubsub is an in-process, per-topic ordered broadcaster. Every topic delivers
// messages to all of its subscribers in sequence order, keeps a short history for
// reconnecting subscribers and the latest snapshot for those it cannot replay.
package pubsub

import (
	"errors"
	"sort"
	"sync"

	"github.com/cristianortiz/liveAuction/internal/shared/logger"
	"github.com/cristianortiz/liveAuction/internal/shared/metrics"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

// TypeSnapshot marks the synthetic message sent to a subscriber that must resync.
const TypeSnapshot = "SNAPSHOT"

var ErrUnknownTopic = errors.New("pubsub: unknown topic")

// Message is one sequenced payload. Snapshot carries the encoded state right after the
// message and becomes the topic's resync point once the message is delivered.
type Message struct {
	Topic    string
	Seq      int64
	Type     string
	Data     []byte
	Snapshot []byte
}

type Config struct {
	HistorySize      int // messages kept for replay
	SubscriberBuffer int // per-subscriber queue before it is dropped
	MaxPending       int // out-of-order messages held before skipping a gap
}

func DefaultConfig() Config {
	return Config{HistorySize: 512, SubscriberBuffer: 64, MaxPending: 1024}
}

// Broker holds the topics. Publish never blocks on a subscriber: a subscriber whose
// queue is full is dropped and has to resubscribe.
type Broker struct {
	cfg     Config
	metrics *metrics.Metrics

	mu     sync.RWMutex
	topics map[string]*topic
}

type topic struct {
	name string

	mu       sync.Mutex
	next     int64
	pending  map[int64]Message
	history  []Message
	snapshot []byte
	subs     map[*Subscription]struct{}
}

func NewBroker(cfg Config, m *metrics.Metrics) *Broker {
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = DefaultConfig().SubscriberBuffer
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultConfig().MaxPending
	}
	return &Broker{
		cfg:     cfg,
		metrics: m,
		topics:  make(map[string]*topic),
	}
}

// Open registers a topic whose last delivered sequence is lastSeq. Opening an existing
// topic is a no-op, so it is safe to call on every lookup.
func (b *Broker) Open(name string, lastSeq int64, snapshot []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.topics[name]; ok {
		return
	}
	b.topics[name] = &topic{
		name:     name,
		next:     lastSeq + 1,
		pending:  make(map[int64]Message),
		snapshot: snapshot,
		subs:     make(map[*Subscription]struct{}),
	}
	log.Debug("Topic opened", zap.String("topic", name), zap.Int64("lastSeq", lastSeq))
}

// Close removes a topic and closes the channel of each of its subscribers, who have to
// subscribe again. Closing an unknown topic is a no-op.
func (b *Broker) Close(name string) {
	b.mu.Lock()
	t, ok := b.topics[name]
	delete(b.topics, name)
	b.mu.Unlock()
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for sub := range t.subs {
		t.remove(b, sub, false)
	}
	log.Debug("Topic closed", zap.String("topic", name))
}

// Topics is the number of open topics.
func (b *Broker) Topics() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics)
}

// Publish hands messages to their topics. Messages may arrive out of order from
// concurrent publishers; each topic delivers them strictly by sequence and drops
// sequences it has already delivered.
func (b *Broker) Publish(msgs ...Message) {
	byTopic := make(map[string][]Message)
	for _, msg := range msgs {
		byTopic[msg.Topic] = append(byTopic[msg.Topic], msg)
	}

	for name, batch := range byTopic {
		b.mu.RLock()
		t, ok := b.topics[name]
		b.mu.RUnlock()
		if !ok {
			log.Warn("Publish to unknown topic, messages dropped", zap.String("topic", name), zap.Int("count", len(batch)))
			continue
		}
		t.publish(b, batch)
	}
}

func (t *topic) publish(b *Broker, batch []Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, msg := range batch {
		if msg.Seq < t.next {
			continue
		}
		t.pending[msg.Seq] = msg
	}

	for {
		msg, ok := t.pending[t.next]
		if !ok {
			break
		}
		delete(t.pending, t.next)
		t.deliver(b, msg)
		t.next++
	}

	if len(t.pending) > b.cfg.MaxPending {
		seqs := make([]int64, 0, len(t.pending))
		for seq := range t.pending {
			seqs = append(seqs, seq)
		}
		sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
		log.Warn("Sequence gap never filled, skipping ahead",
			zap.String("topic", t.name),
			zap.Int64("missing", t.next),
			zap.Int64("resumeAt", seqs[0]),
		)
		for _, seq := range seqs {
			if seq != seqs[0] && seq != t.next {
				break
			}
			t.deliver(b, t.pending[seq])
			delete(t.pending, seq)
			t.next = seq + 1
		}
	}
}

// deliver must be called with t.mu held.
func (t *topic) deliver(b *Broker, msg Message) {
	if len(msg.Snapshot) > 0 {
		t.snapshot = msg.Snapshot
	}
	if b.cfg.HistorySize > 0 {
		t.history = append(t.history, msg)
		if over := len(t.history) - b.cfg.HistorySize; over > 0 {
			t.history = append(t.history[:0:0], t.history[over:]...)
		}
	}
	if b.metrics != nil {
		b.metrics.RecordEvent(msg.Type)
	}

	for sub := range t.subs {
		select {
		case sub.ch <- msg:
		default:
			log.Warn("Subscriber queue full, dropping subscriber",
				zap.String("topic", t.name),
				zap.String("subscriberID", sub.ID),
				zap.Int64("seq", msg.Seq),
			)
			t.remove(b, sub, true)
		}
	}
}

// remove must be called with t.mu held.
func (t *topic) remove(b *Broker, sub *Subscription, dropped bool) {
	if _, ok := t.subs[sub]; !ok {
		return
	}
	delete(t.subs, sub)
	close(sub.ch)
	if b.metrics != nil {
		b.metrics.SubscriberClosed(dropped)
	}
}

// Subscribe attaches a subscriber that has seen everything up to afterSeq. When the
// history still covers the gap the missed messages are queued first; otherwise (or when
// afterSeq <= 0) a single TypeSnapshot message carrying the latest state is queued.
func (b *Broker) Subscribe(name, subscriberID string, afterSeq int64) (*Subscription, error) {
	b.mu.RLock()
	t, ok := b.topics[name]
	b.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownTopic
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	last := t.next - 1
	var backlog []Message
	switch {
	case afterSeq > 0 && afterSeq == last:
	case afterSeq > 0 && afterSeq < last && len(t.history) > 0 && t.history[0].Seq <= afterSeq+1:
		for _, msg := range t.history {
			if msg.Seq > afterSeq {
				backlog = append(backlog, msg)
			}
		}
	default:
		backlog = append(backlog, Message{Topic: t.name, Seq: last, Type: TypeSnapshot, Data: t.snapshot, Snapshot: t.snapshot})
	}

	sub := &Subscription{
		ID:     subscriberID,
		Topic:  name,
		ch:     make(chan Message, b.cfg.SubscriberBuffer+len(backlog)),
		topic:  t,
		broker: b,
	}
	for _, msg := range backlog {
		sub.ch <- msg
	}
	t.subs[sub] = struct{}{}
	if b.metrics != nil {
		b.metrics.SubscriberOpened()
	}

	log.Debug("Subscriber attached",
		zap.String("topic", name),
		zap.String("subscriberID", subscriberID),
		zap.Int64("afterSeq", afterSeq),
		zap.Int("backlog", len(backlog)),
	)
	return sub, nil
}

// Subscribers returns how many subscribers a topic currently has.
func (b *Broker) Subscribers(name string) int {
	b.mu.RLock()
	t, ok := b.topics[name]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Subscription is one consumer of a topic. Its channel is closed when the subscriber is
// dropped or closed.
type Subscription struct {
	ID    string
	Topic string

	ch     chan Message
	topic  *topic
	broker *Broker
}

func (s *Subscription) C() <-chan Message {
	return s.ch
}

// Close detaches the subscriber. It is safe to call more than once and after a drop.
func (s *Subscription) Close() {
	s.topic.mu.Lock()
	defer s.topic.mu.Unlock()
	s.topic.remove(s.broker, s, false)
}
