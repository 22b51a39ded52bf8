package mq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"stocksaga/internal/pkg/mq/mqtest"
)

func TestKafkaHeaderCarrier_SetReplacesExistingKey(t *testing.T) {
	carrier := KafkaHeaderCarrier{{Key: "traceparent", Value: []byte("old")}}

	carrier.Set("traceparent", "new")
	carrier.Set("baggage", "k=v")

	assert.Equal(t, "new", carrier.Get("traceparent"))
	assert.Equal(t, "k=v", carrier.Get("baggage"))
	assert.ElementsMatch(t, []string{"traceparent", "baggage"}, carrier.Keys())
	assert.Empty(t, carrier.Get("missing"))
}

func TestProduceMessage_InjectsTraceContext(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())

	ctx, span := tp.Tracer("test").Start(context.Background(), "produce")
	defer span.End()

	w := mqtest.NewWriter()
	require.NoError(t, ProduceMessage(ctx, w, []byte("42"), []byte(`{"orderId":42}`)))

	msgs := w.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("42"), msgs[0].Key)
	assert.NotEmpty(t, GetHeader(msgs[0].Headers, "traceparent"))

	extracted := ExtractTraceContext(context.Background(), msgs[0].Headers)
	assert.Equal(t, span.SpanContext().TraceID(), trace.SpanContextFromContext(extracted).TraceID())
}

func TestFailureHandler_ForwardsToDeadLetterTopic(t *testing.T) {
	w := mqtest.NewWriter()
	h := NewFailureHandler(w)

	msg := kafka.Message{Topic: "reservation-request", Partition: 2, Offset: 17, Key: []byte("7"), Value: []byte("not json")}
	h.Handle(context.Background(), msg, errors.New("decode failed"))

	sent := w.Messages()
	require.Len(t, sent, 1)
	dlt := sent[0]
	assert.Equal(t, "reservation-request.dlt", dlt.Topic)
	assert.Equal(t, msg.Value, dlt.Value)
	assert.Equal(t, "reservation-request", GetHeader(dlt.Headers, HeaderOriginalTopic))
	assert.Equal(t, "2", GetHeader(dlt.Headers, HeaderOriginalPartition))
	assert.Equal(t, "17", GetHeader(dlt.Headers, HeaderOriginalOffset))
	assert.Equal(t, "decode failed", GetHeader(dlt.Headers, HeaderExceptionMessage))
	assert.NotEmpty(t, GetHeader(dlt.Headers, HeaderExceptionFqcn))

	// 死信消费者只记录，总是提交
	assert.NoError(t, LogDeadLetter(context.Background(), dlt))
}

func TestConsumer_CommitsEveryMessageAndDeadLettersFailures(t *testing.T) {
	reader := mqtest.NewReader("reservation-request",
		kafka.Message{Offset: 1, Value: []byte("ok")},
		kafka.Message{Offset: 2, Value: []byte("boom")},
		kafka.Message{Offset: 3, Value: []byte("ok")},
	)
	dltWriter := mqtest.NewWriter()

	var handled []string
	consumer := NewConsumer(reader, func(_ context.Context, msg kafka.Message) error {
		handled = append(handled, string(msg.Value))
		if string(msg.Value) == "boom" {
			return errors.New("handler failed")
		}
		return nil
	}, NewFailureHandler(dltWriter))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, consumer.Start(ctx))

	require.Eventually(t, func() bool { return len(reader.Committed()) == 3 }, 2*time.Second, 10*time.Millisecond)
	consumer.Stop(ctx)

	assert.Equal(t, []string{"ok", "boom", "ok"}, handled)
	dlt := dltWriter.Messages()
	require.Len(t, dlt, 1)
	assert.Equal(t, "reservation-request.dlt", dlt[0].Topic)
	assert.Equal(t, "2", GetHeader(dlt[0].Headers, HeaderOriginalOffset))
}

func TestConsumer_StopsOnContextCancel(t *testing.T) {
	reader := mqtest.NewReader("reservation-response")
	consumer := NewConsumer(reader, func(context.Context, kafka.Message) error { return nil }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, consumer.Start(ctx))
	cancel()

	done := make(chan struct{})
	go func() {
		consumer.Stop(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}
