package pubsub

import (
	"fmt"
	"sync"
	"testing"

	"github.com/cristianortiz/liveAuction/internal/shared/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(topic string, seq int64) Message {
	return Message{
		Topic:    topic,
		Seq:      seq,
		Type:     "BID_ACCEPTED",
		Data:     []byte(fmt.Sprintf(`{"seq":%d}`, seq)),
		Snapshot: []byte(fmt.Sprintf(`{"sequence":%d}`, seq)),
	}
}

func drain(sub *Subscription) []Message {
	var out []Message
	for {
		select {
		case m, ok := <-sub.C():
			if !ok {
				return out
			}
			out = append(out, m)
		default:
			return out
		}
	}
}

func seqs(msgs []Message) []int64 {
	out := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Seq)
	}
	return out
}

func TestBroker_Ordering(t *testing.T) {
	t.Run("Out Of Order Publishes Are Delivered In Sequence", func(t *testing.T) {
		b := NewBroker(DefaultConfig(), metrics.New())
		b.Open("a", 0, []byte(`{}`))
		sub, err := b.Subscribe("a", "s1", 0)
		require.NoError(t, err)

		b.Publish(msg("a", 3))
		b.Publish(msg("a", 2))
		assert.Equal(t, []int64{0}, seqs(drain(sub)), "only the initial snapshot before seq 1 arrives")

		b.Publish(msg("a", 1))
		assert.Equal(t, []int64{1, 2, 3}, seqs(drain(sub)))
	})

	t.Run("Duplicates Are Dropped", func(t *testing.T) {
		b := NewBroker(DefaultConfig(), nil)
		b.Open("a", 0, nil)
		sub, err := b.Subscribe("a", "s1", 0)
		require.NoError(t, err)
		drain(sub)

		b.Publish(msg("a", 1), msg("a", 1), msg("a", 2))
		b.Publish(msg("a", 2))
		assert.Equal(t, []int64{1, 2}, seqs(drain(sub)))
	})

	t.Run("Concurrent Publishers Keep Every Subscriber In Order", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.SubscriberBuffer = 1000
		b := NewBroker(cfg, nil)
		b.Open("a", 0, nil)

		subs := make([]*Subscription, 5)
		for i := range subs {
			sub, err := b.Subscribe("a", fmt.Sprintf("s%d", i), 0)
			require.NoError(t, err)
			drain(sub)
			subs[i] = sub
		}

		var wg sync.WaitGroup
		for i := int64(1); i <= 200; i++ {
			wg.Add(1)
			go func(seq int64) {
				defer wg.Done()
				b.Publish(msg("a", seq))
			}(i)
		}
		wg.Wait()

		expected := make([]int64, 200)
		for i := range expected {
			expected[i] = int64(i + 1)
		}
		for _, sub := range subs {
			assert.Equal(t, expected, seqs(drain(sub)))
		}
	})

	t.Run("Topics Are Independent", func(t *testing.T) {
		b := NewBroker(DefaultConfig(), nil)
		b.Open("a", 0, nil)
		b.Open("b", 10, nil)
		subA, _ := b.Subscribe("a", "sa", 0)
		subB, _ := b.Subscribe("b", "sb", 0)
		drain(subA)
		drain(subB)

		b.Publish(msg("a", 1), msg("b", 11), msg("a", 2))
		assert.Equal(t, []int64{1, 2}, seqs(drain(subA)))
		assert.Equal(t, []int64{11}, seqs(drain(subB)))
	})
}

func TestBroker_Subscribe(t *testing.T) {
	t.Run("Unknown Topic", func(t *testing.T) {
		b := NewBroker(DefaultConfig(), nil)
		_, err := b.Subscribe("missing", "s1", 0)
		assert.ErrorIs(t, err, ErrUnknownTopic)
	})

	t.Run("Fresh Subscriber Gets Latest Snapshot", func(t *testing.T) {
		b := NewBroker(DefaultConfig(), nil)
		b.Open("a", 4, []byte(`{"sequence":4}`))
		b.Publish(msg("a", 5))

		sub, err := b.Subscribe("a", "s1", 0)
		require.NoError(t, err)
		got := drain(sub)
		require.Len(t, got, 1)
		assert.Equal(t, TypeSnapshot, got[0].Type)
		assert.Equal(t, int64(5), got[0].Seq)
		assert.JSONEq(t, `{"sequence":5}`, string(got[0].Data))
	})

	t.Run("Replay Covers The Gap", func(t *testing.T) {
		b := NewBroker(DefaultConfig(), nil)
		b.Open("a", 0, nil)
		b.Publish(msg("a", 1), msg("a", 2), msg("a", 3), msg("a", 4))

		sub, err := b.Subscribe("a", "s1", 2)
		require.NoError(t, err)
		assert.Equal(t, []int64{3, 4}, seqs(drain(sub)))
	})

	t.Run("Up To Date Subscriber Gets Nothing", func(t *testing.T) {
		b := NewBroker(DefaultConfig(), nil)
		b.Open("a", 0, nil)
		b.Publish(msg("a", 1), msg("a", 2))

		sub, err := b.Subscribe("a", "s1", 2)
		require.NoError(t, err)
		assert.Empty(t, drain(sub))
	})

	t.Run("History Too Short Falls Back To Snapshot", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.HistorySize = 2
		b := NewBroker(cfg, nil)
		b.Open("a", 0, nil)
		b.Publish(msg("a", 1), msg("a", 2), msg("a", 3), msg("a", 4))

		sub, err := b.Subscribe("a", "s1", 1)
		require.NoError(t, err)
		got := drain(sub)
		require.Len(t, got, 1)
		assert.Equal(t, TypeSnapshot, got[0].Type)
		assert.Equal(t, int64(4), got[0].Seq)
	})

	t.Run("Subscriber Ahead Of Topic Resyncs", func(t *testing.T) {
		b := NewBroker(DefaultConfig(), nil)
		b.Open("a", 3, []byte(`{"sequence":3}`))

		sub, err := b.Subscribe("a", "s1", 9)
		require.NoError(t, err)
		got := drain(sub)
		require.Len(t, got, 1)
		assert.Equal(t, TypeSnapshot, got[0].Type)
	})
}

func TestBroker_SlowSubscriber(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SubscriberBuffer = 2
	m := metrics.New()
	b := NewBroker(cfg, m)
	b.Open("a", 0, nil)

	slow, err := b.Subscribe("a", "slow", 0)
	require.NoError(t, err)
	fast, err := b.Subscribe("a", "fast", 0)
	require.NoError(t, err)
	drain(fast)
	assert.Equal(t, 2, b.Subscribers("a"))

	// slow never reads: its one snapshot plus two messages fill a buffer of 1+2
	var fastGot []int64
	for seq := int64(1); seq <= 4; seq++ {
		b.Publish(msg("a", seq))
		fastGot = append(fastGot, seqs(drain(fast))...)
	}

	assert.Equal(t, []int64{1, 2, 3, 4}, fastGot, "a slow subscriber never holds back the others")
	assert.Equal(t, 1, b.Subscribers("a"))

	got := drain(slow)
	assert.Equal(t, []int64{0, 1, 2}, seqs(got), "buffered messages are still readable before the close")
	_, open := <-slow.C()
	assert.False(t, open, "dropped subscriber channel is closed")

	slow.Close()
	fast.Close()
	fast.Close()
	assert.Equal(t, 0, b.Subscribers("a"))
}

func TestBroker_Close(t *testing.T) {
	b := NewBroker(DefaultConfig(), metrics.New())
	b.Open("a", 4, []byte(`{"sequence":4}`))
	b.Open("b", 0, nil)
	sub, err := b.Subscribe("a", "s1", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Topics())

	b.Close("a")
	b.Close("a")

	assert.Equal(t, 1, b.Topics())
	assert.Equal(t, []int64{4}, seqs(drain(sub)), "queued messages stay readable")
	_, open := <-sub.C()
	assert.False(t, open)
	sub.Close()

	_, err = b.Subscribe("a", "s2", 0)
	assert.ErrorIs(t, err, ErrUnknownTopic)

	// reopening starts from the sequence it is given
	b.Open("a", 6, []byte(`{"sequence":6}`))
	sub, err = b.Subscribe("a", "s3", 0)
	require.NoError(t, err)
	b.Publish(msg("a", 7))
	assert.Equal(t, []int64{6, 7}, seqs(drain(sub)))
}
