package port

import "context"

// DelayScheduler 是延迟任务调度器的出站端口。
type DelayScheduler interface {
	// ScheduleReservationTimeout 安排一次预占超时检查，attempt 是当前的请求次数
	ScheduleReservationTimeout(ctx context.Context, orderID int64, attempt int) error
}
