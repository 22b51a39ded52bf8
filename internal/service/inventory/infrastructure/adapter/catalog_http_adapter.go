package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"stocksaga/internal/pkg/httpclient"
	"stocksaga/internal/service/inventory/domain/port"
)

// ServiceDiscoverer 由 nacos.Client 实现
type ServiceDiscoverer interface {
	DiscoverServiceInstance(serviceName string) (string, int, error)
}

// CatalogHTTPAdapter 实现了 port.CatalogSeeder 接口：
// GET {baseURL}/api/products/{id} -> {productId, stockQuantity, minThreshold}，404 表示商品不存在
type CatalogHTTPAdapter struct {
	client  *httpclient.Client
	baseURL func() (string, error)
	timeout time.Duration
}

// NewCatalogHTTPAdapter 使用固定地址
func NewCatalogHTTPAdapter(client *httpclient.Client, baseURL string, timeout time.Duration) *CatalogHTTPAdapter {
	base := strings.TrimRight(baseURL, "/")
	return &CatalogHTTPAdapter{
		client:  client,
		baseURL: func() (string, error) { return base, nil },
		timeout: timeout,
	}
}

// NewDiscoveredCatalogAdapter 每次请求前通过注册中心选择一个健康实例
func NewDiscoveredCatalogAdapter(client *httpclient.Client, discoverer ServiceDiscoverer, serviceName string, timeout time.Duration) *CatalogHTTPAdapter {
	return &CatalogHTTPAdapter{
		client: client,
		baseURL: func() (string, error) {
			ip, p, err := discoverer.DiscoverServiceInstance(serviceName)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("http://%s:%d", ip, p), nil
		},
		timeout: timeout,
	}
}

func (a *CatalogHTTPAdapter) Seed(ctx context.Context, productID int64) (*port.ProductSeed, error) {
	base, err := a.baseURL()
	if err != nil {
		return nil, errors.Wrap(err, "resolve catalog address")
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	var seed port.ProductSeed
	err = a.client.GetJSON(ctx, fmt.Sprintf("%s/api/products/%d", base, productID), &seed)
	if err != nil {
		if errors.Is(err, httpclient.ErrNotFound) {
			return nil, port.ErrUnknownProduct
		}
		return nil, errors.Wrapf(err, "fetch product %d from catalog", productID)
	}
	if seed.ProductID == 0 {
		seed.ProductID = productID
	}
	return &seed, nil
}
