package port

import "context"

// SweepLock 保证同一时刻只有一个实例在执行告警扫描。
type SweepLock interface {
	// Acquire 阻塞直到获得锁，返回的 release 用于释放锁
	Acquire(ctx context.Context) (release func(), err error)
}
