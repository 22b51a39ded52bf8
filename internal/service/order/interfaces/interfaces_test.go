package interfaces

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"stocksaga/internal/pkg/event"
	"stocksaga/internal/pkg/mq/mqtest"
	"stocksaga/internal/service/order/application"
	"stocksaga/internal/service/order/domain"
	"stocksaga/internal/service/order/infrastructure"
	"stocksaga/internal/service/order/infrastructure/adapter"
)

type fixture struct {
	requests *mqtest.Writer
	releases *mqtest.Writer
	delayed  *mqtest.Writer
	svc      *application.OrderApplicationService
	outcomes *application.OutcomeHandler
	mux      *http.ServeMux
}

func newFixture() *fixture {
	tracer := noop.NewTracerProvider().Tracer("test")
	f := &fixture{
		requests: mqtest.NewWriter(),
		releases: mqtest.NewWriter(),
		delayed:  mqtest.NewWriter(),
		mux:      http.NewServeMux(),
	}
	repo := infrastructure.NewMemoryOrderRepository()
	emitter := adapter.NewReservationKafkaAdapter(f.requests, f.releases)
	scheduler := adapter.NewSchedulerKafkaAdapter(f.delayed, time.Minute)
	f.svc = application.NewOrderApplicationService(repo, emitter, scheduler, nil, 3, tracer)
	f.outcomes = application.NewOutcomeHandler(repo, emitter, nil, tracer)
	NewOrderHandler(f.svc).RegisterRoutes(f.mux)
	return f
}

func (f *fixture) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(method, target, &buf))
	return rec
}

func TestOrderHandler_PlaceAndQuery(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/orders", application.PlaceOrderRequest{
		CustomerID: 7,
		Items:      []event.Item{{ProductID: 101, Quantity: 2}},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var placed application.OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &placed))
	assert.Equal(t, domain.StateAwaitingReservation, placed.Status)
	assert.Len(t, f.requests.Messages(), 1)
	assert.Len(t, f.delayed.Messages(), 1)

	// 库存服务回复失败
	handle := event.KafkaHandler(NewOutcomeConsumer(f.outcomes))
	outcome := event.NewReservationResponded("inventory-service", placed.OrderID, false,
		"Failed to reserve inventory", []string{"Insufficient stock for product: 101 (Available: 1, Requested: 2)"})
	value, err := event.Encode(outcome)
	require.NoError(t, err)
	require.NoError(t, handle(context.Background(), kafka.Message{Value: value}))

	rec = f.do(t, http.MethodGet, "/api/orders?id="+strconv.FormatInt(placed.OrderID, 10), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got application.OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, domain.StateReservationFailed, got.Status)
	assert.Equal(t, []string{"Insufficient stock for product: 101 (Available: 1, Requested: 2)"}, got.FailedItems)

	rec = f.do(t, http.MethodPost, "/api/orders/cancel?id="+strconv.FormatInt(placed.OrderID, 10), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestOrderHandler_Errors(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/orders", application.PlaceOrderRequest{CustomerID: 7})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/orders?id=404", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/orders?id=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.requests.FailWith(assert.AnError)
	rec = f.do(t, http.MethodPost, "/api/orders", application.PlaceOrderRequest{
		CustomerID: 7,
		Items:      []event.Item{{ProductID: 101, Quantity: 2}},
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}

func TestOrderHandler_CancelReserved(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/api/orders", application.PlaceOrderRequest{
		CustomerID: 7,
		Items:      []event.Item{{ProductID: 101, Quantity: 2}},
	})
	var placed application.OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &placed))
	require.NoError(t, f.outcomes.Handle(context.Background(),
		event.NewReservationResponded("inventory-service", placed.OrderID, true, "Inventory reserved successfully", nil)))

	rec = f.do(t, http.MethodPost, "/api/orders/cancel?id="+strconv.FormatInt(placed.OrderID, 10)+"&reason=changed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.releases.Messages(), 1)
	decoded, err := event.Decode(f.releases.Messages()[0].Value)
	require.NoError(t, err)
	assert.Equal(t, "changed", decoded.(*event.ReleaseRequested).Reason)
}

func TestTimeoutHandler(t *testing.T) {
	f := newFixture()
	resp, err := f.svc.PlaceOrder(context.Background(), &application.PlaceOrderRequest{
		CustomerID: 7,
		Items:      []event.Item{{ProductID: 101, Quantity: 2}},
	})
	require.NoError(t, err)

	handle := TimeoutHandler(f.svc)
	value, err := json.Marshal(domain.ReservationTimeoutCheck{OrderID: resp.OrderID, Attempt: 1})
	require.NoError(t, err)
	require.NoError(t, handle(context.Background(), kafka.Message{Value: value}))
	assert.Len(t, f.requests.Messages(), 2, "request re-published")
	assert.Len(t, f.delayed.Messages(), 2)

	assert.Error(t, handle(context.Background(), kafka.Message{Value: []byte("{")}))
}
