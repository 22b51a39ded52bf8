package adapter

import (
	"context"

	"stocksaga/internal/pkg/logger"
	"stocksaga/internal/zookeeper"
)

// SweepLockZKAdapter 实现了 port.SweepLock 接口，多个库存实例之间串行执行告警扫描
type SweepLockZKAdapter struct {
	lock *zookeeper.DistributedLock
}

func NewSweepLockZKAdapter(conn *zookeeper.Conn, resourceID string) (*SweepLockZKAdapter, error) {
	lock, err := zookeeper.NewDistributedLock(conn, resourceID)
	if err != nil {
		return nil, err
	}
	return &SweepLockZKAdapter{lock: lock}, nil
}

func (a *SweepLockZKAdapter) Acquire(ctx context.Context) (func(), error) {
	if err := a.lock.Lock(ctx); err != nil {
		return nil, err
	}
	return func() {
		if err := a.lock.Unlock(); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("failed to release sweep lock")
		}
	}, nil
}
