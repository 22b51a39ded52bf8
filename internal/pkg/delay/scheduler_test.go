package delay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"stocksaga/internal/pkg/mq"
	"stocksaga/internal/pkg/mq/mqtest"
)

type writerPool struct {
	mu      sync.Mutex
	writers map[string]*mqtest.Writer
}

func (p *writerPool) factory(topic string) mq.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writers == nil {
		p.writers = make(map[string]*mqtest.Writer)
	}
	w, ok := p.writers[topic]
	if !ok {
		w = mqtest.NewWriter()
		p.writers[topic] = w
	}
	return w
}

func (p *writerPool) sent(topic string) []kafka.Message {
	p.mu.Lock()
	w, ok := p.writers[topic]
	p.mu.Unlock()
	if !ok {
		return nil
	}
	return w.Messages()
}

func runScheduler(t *testing.T, s *Scheduler) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, s.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestScheduler_ForwardsDueMessageToRealTopic(t *testing.T) {
	reader := mqtest.NewReader("delay_topic_5s", kafka.Message{
		Key:   []byte("42"),
		Value: []byte(`{"orderId":42}`),
		Time:  time.Now().Add(-10 * time.Second),
		Headers: []kafka.Header{
			{Key: HeaderRealTopic, Value: []byte("order-reservation-timeout")},
			{Key: "x-custom", Value: []byte("kept")},
		},
	})
	pool := &writerPool{}
	runScheduler(t, NewScheduler("delay_topic_5s", 5*time.Second, reader, pool.factory))

	require.Eventually(t, func() bool { return len(reader.Committed()) == 1 }, 2*time.Second, 10*time.Millisecond)

	sent := pool.sent("order-reservation-timeout")
	require.Len(t, sent, 1)
	assert.Equal(t, []byte("42"), sent[0].Key)
	assert.Equal(t, "kept", mq.GetHeader(sent[0].Headers, "x-custom"))
	assert.Empty(t, mq.GetHeader(sent[0].Headers, HeaderRealTopic))
}

func TestScheduler_WaitsUntilDelayTimestamp(t *testing.T) {
	deliverAt := time.Now().Add(2 * time.Second)
	reader := mqtest.NewReader("delay_topic_1m", kafka.Message{
		Value: []byte("payload"),
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: HeaderRealTopic, Value: []byte("target")},
			{Key: HeaderDelayTimestamp, Value: []byte(deliverAt.UTC().Format(time.RFC3339))},
		},
	})
	pool := &writerPool{}
	runScheduler(t, NewScheduler("delay_topic_1m", time.Minute, reader, pool.factory))

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, reader.Committed(), "message must not be forwarded before it is due")

	require.Eventually(t, func() bool { return len(pool.sent("target")) == 1 }, 4*time.Second, 20*time.Millisecond)
	assert.False(t, time.Now().Before(deliverAt.Truncate(time.Second)))
}

func TestScheduler_SkipsMessageWithoutRealTopic(t *testing.T) {
	reader := mqtest.NewReader("delay_topic_5s", kafka.Message{Value: []byte("orphan"), Time: time.Now().Add(-time.Minute)})
	pool := &writerPool{}
	runScheduler(t, NewScheduler("delay_topic_5s", 5*time.Second, reader, pool.factory))

	require.Eventually(t, func() bool { return len(reader.Committed()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, pool.writers)
}

func TestEnqueue_SetsSchedulingHeaders(t *testing.T) {
	w := mqtest.NewWriter()
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, Enqueue(context.Background(), w, "order-reservation-timeout", []byte("7"), []byte("{}"), at))

	sent := w.Messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "order-reservation-timeout", mq.GetHeader(sent[0].Headers, HeaderRealTopic))
	assert.Equal(t, "2025-03-01T10:00:00Z", mq.GetHeader(sent[0].Headers, HeaderDelayTimestamp))
}
