// internal/pkg/redis/client.go
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Nil 透传 go-redis 的 key 不存在错误，调用方无需再引入 go-redis
var Nil = goredis.Nil

// Client 封装 UniversalClient：单地址时为单机客户端，多地址时为集群客户端
type Client struct {
	goredis.UniversalClient
}

// NewClient addrs 格式为 "host1:port1,host2:port2"
func NewClient(addrs string) (*Client, error) {
	rdb := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        strings.Split(addrs, ","),
		DialTimeout:  3 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	return newClient(rdb)
}

// NewFromUniversal 包装一个已有的客户端 (测试时配合 miniredis 使用)
func NewFromUniversal(rdb goredis.UniversalClient) (*Client, error) {
	return newClient(rdb)
}

func newClient(rdb goredis.UniversalClient) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &Client{UniversalClient: rdb}, nil
}
