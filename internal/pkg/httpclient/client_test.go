package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestClient_GetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/products/101":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"productId":101,"stockQuantity":10}`))
		case "/api/products/500":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(noop.NewTracerProvider().Tracer("test"))

	var body struct {
		ProductID     int64 `json:"productId"`
		StockQuantity int   `json:"stockQuantity"`
	}
	require.NoError(t, c.GetJSON(context.Background(), srv.URL+"/api/products/101", &body))
	assert.Equal(t, int64(101), body.ProductID)
	assert.Equal(t, 10, body.StockQuantity)

	err := c.GetJSON(context.Background(), srv.URL+"/api/products/999", &body)
	assert.True(t, errors.Is(err, ErrNotFound))

	err = c.GetJSON(context.Background(), srv.URL+"/api/products/500", &body)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}
