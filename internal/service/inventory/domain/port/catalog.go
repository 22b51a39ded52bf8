package port

import (
	"context"
	"errors"
)

// ErrUnknownProduct 商品目录中不存在该商品
var ErrUnknownProduct = errors.New("product unknown to catalog")

// ProductSeed 是商品目录提供的初始库存信息，只在首次建账时使用一次
type ProductSeed struct {
	ProductID     int64 `json:"productId"`
	StockQuantity int   `json:"stockQuantity"`
	MinThreshold  int   `json:"minThreshold"`
}

// CatalogSeeder 是商品目录服务的出站端口。
type CatalogSeeder interface {
	// Seed 查询商品的初始库存。商品不存在时返回 ErrUnknownProduct。
	Seed(ctx context.Context, productID int64) (*ProductSeed, error)
}
