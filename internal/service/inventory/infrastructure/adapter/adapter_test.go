package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"stocksaga/internal/pkg/event"
	"stocksaga/internal/pkg/httpclient"
	"stocksaga/internal/pkg/mq"
	"stocksaga/internal/pkg/mq/mqtest"
	"stocksaga/internal/pkg/redis"
	"stocksaga/internal/service/inventory/domain"
	"stocksaga/internal/service/inventory/domain/port"
)

func TestOutcomeKafkaAdapter(t *testing.T) {
	w := mqtest.NewWriter()
	a := NewOutcomeKafkaAdapter(w)

	outcome := event.NewReservationResponded("inventory-service", 101, false, "Failed to reserve inventory",
		[]string{"Product not found: 999"})
	require.NoError(t, a.PublishOutcome(context.Background(), outcome))

	msgs := w.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "101", string(msgs[0].Key))
	assert.Equal(t, string(event.TypeReservationResponse), mq.GetHeader(msgs[0].Headers, HeaderEventType))

	decoded, err := event.Decode(msgs[0].Value)
	require.NoError(t, err)
	got, ok := decoded.(*event.ReservationResponded)
	require.True(t, ok)
	assert.Equal(t, int64(101), got.OrderID)
	assert.Equal(t, []string{"Product not found: 999"}, got.FailedItems)

	require.NoError(t, a.Close())
	assert.True(t, w.Closed())
}

func TestAlertKafkaAdapter(t *testing.T) {
	w := mqtest.NewWriter()
	a := NewAlertKafkaAdapter(w)

	alert := domain.NewStockAlert(domain.NewStockLedgerEntry(101, 0, 5), domain.AlertOutOfStock, time.Now())
	alert.ID = 3
	require.NoError(t, a.PublishAlert(context.Background(), alert))

	msgs := w.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "101", string(msgs[0].Key))

	var body map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Value, &body))
	assert.Equal(t, "OUT_OF_STOCK", body["alertType"])
	assert.Equal(t, float64(101), body["productId"])
	assert.Equal(t, false, body["isResolved"])
}

func TestReceiptRedisAdapter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := redis.NewFromUniversal(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	require.NoError(t, err)
	cache := NewReceiptRedisAdapter(rdb, time.Hour)
	ctx := context.Background()

	got, err := cache.Get(ctx, 1, domain.ReceiptReserve)
	require.NoError(t, err)
	assert.Nil(t, got)

	first := &domain.Receipt{OrderID: 1, Kind: domain.ReceiptReserve, Success: true, Message: "Inventory reserved successfully"}
	require.NoError(t, cache.Put(ctx, first))
	// 首次写入的结果不会被覆盖
	require.NoError(t, cache.Put(ctx, &domain.Receipt{OrderID: 1, Kind: domain.ReceiptReserve, Message: "other"}))

	got, err = cache.Get(ctx, 1, domain.ReceiptReserve)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Success)
	assert.Equal(t, "Inventory reserved successfully", got.Message)

	release, err := cache.Get(ctx, 1, domain.ReceiptRelease)
	require.NoError(t, err)
	assert.Nil(t, release)

	mr.FastForward(2 * time.Hour)
	expired, err := cache.Get(ctx, 1, domain.ReceiptReserve)
	require.NoError(t, err)
	assert.Nil(t, expired)
}

type staticDiscoverer struct {
	ip   string
	port int
	err  error
}

func (d staticDiscoverer) DiscoverServiceInstance(string) (string, int, error) {
	return d.ip, d.port, d.err
}

func TestCatalogHTTPAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/products/101":
			w.Write([]byte(`{"productId":101,"stockQuantity":10,"minThreshold":3}`))
		case "/api/products/500":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := httpclient.NewClient(noop.NewTracerProvider().Tracer("test"))
	a := NewCatalogHTTPAdapter(client, srv.URL+"/", time.Second)
	ctx := context.Background()

	seed, err := a.Seed(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, &port.ProductSeed{ProductID: 101, StockQuantity: 10, MinThreshold: 3}, seed)

	_, err = a.Seed(ctx, 999)
	assert.ErrorIs(t, err, port.ErrUnknownProduct)

	_, err = a.Seed(ctx, 500)
	require.Error(t, err)
	assert.False(t, errors.Is(err, port.ErrUnknownProduct))
}

func TestCatalogHTTPAdapter_Discovery(t *testing.T) {
	client := httpclient.NewClient(noop.NewTracerProvider().Tracer("test"))
	a := NewDiscoveredCatalogAdapter(client, staticDiscoverer{err: errors.New("no healthy instance")}, "product-service", time.Second)

	_, err := a.Seed(context.Background(), 101)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve catalog address")
}
