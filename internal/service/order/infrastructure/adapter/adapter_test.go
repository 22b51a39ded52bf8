package adapter

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"stocksaga/internal/pkg/delay"
	"stocksaga/internal/pkg/event"
	"stocksaga/internal/pkg/mq"
	"stocksaga/internal/pkg/mq/mqtest"
	"stocksaga/internal/service/order/domain"
)

func testOrder() *domain.Order {
	return &domain.Order{
		ID:            42,
		CustomerID:    7,
		Items:         []event.Item{{ProductID: 101, Quantity: 2}},
		State:         domain.StateReservationFailed,
		StatusMessage: "Failed to reserve inventory",
		FailedItems:   []string{"Product not found: 101"},
	}
}

func TestReservationKafkaAdapter(t *testing.T) {
	requests, releases := mqtest.NewWriter(), mqtest.NewWriter()
	a := NewReservationKafkaAdapter(requests, releases)
	ctx := context.Background()

	require.NoError(t, a.RequestReservation(ctx, testOrder()))
	require.NoError(t, a.RequestRelease(ctx, testOrder(), "Order cancelled"))

	require.Len(t, requests.Messages(), 1)
	msg := requests.Messages()[0]
	assert.Equal(t, "42", string(msg.Key))
	assert.Equal(t, string(event.TypeReservationRequest), mq.GetHeader(msg.Headers, headerEventType))
	decoded, err := event.Decode(msg.Value)
	require.NoError(t, err)
	req := decoded.(*event.ReservationRequested)
	assert.Equal(t, int64(7), req.CustomerID)
	assert.Equal(t, EventSource, req.Source)
	assert.Equal(t, []event.Item{{ProductID: 101, Quantity: 2}}, req.Items)

	require.Len(t, releases.Messages(), 1)
	decoded, err = event.Decode(releases.Messages()[0].Value)
	require.NoError(t, err)
	rel := decoded.(*event.ReleaseRequested)
	assert.Equal(t, "Order cancelled", rel.Reason)
	assert.Equal(t, int64(42), rel.OrderID)

	require.NoError(t, a.Close())
	assert.True(t, requests.Closed())
	assert.True(t, releases.Closed())
}

func TestNotificationKafkaAdapter(t *testing.T) {
	w := mqtest.NewWriter()
	a := NewNotificationKafkaAdapter(w)
	require.NoError(t, a.Notify(context.Background(), testOrder()))

	msgs := w.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "42", string(msgs[0].Key))
	assert.JSONEq(t, `{
		"orderId": 42,
		"customerId": 7,
		"status": "RESERVATION_FAILED",
		"message": "Failed to reserve inventory",
		"failedItems": ["Product not found: 101"]
	}`, string(msgs[0].Value))
}

func TestSchedulerKafkaAdapter(t *testing.T) {
	w := mqtest.NewWriter()
	a := NewSchedulerKafkaAdapter(w, time.Minute)
	fixed := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }

	require.NoError(t, a.ScheduleReservationTimeout(context.Background(), 42, 2))

	msgs := w.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, TopicReservationTimeout, mq.GetHeader(msgs[0].Headers, delay.HeaderRealTopic))
	assert.Equal(t, "2025-03-01T10:01:00Z", mq.GetHeader(msgs[0].Headers, delay.HeaderDelayTimestamp))

	var check domain.ReservationTimeoutCheck
	require.NoError(t, json.Unmarshal(msgs[0].Value, &check))
	assert.Equal(t, int64(42), check.OrderID)
	assert.Equal(t, 2, check.Attempt)
	assert.True(t, fixed.Equal(check.ScheduledAt))
}
