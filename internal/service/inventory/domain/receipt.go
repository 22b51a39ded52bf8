package domain

import "time"

// ReceiptKind 回执对应的消息类型
type ReceiptKind string

const (
	ReceiptReserve ReceiptKind = "RESERVE"
	ReceiptRelease ReceiptKind = "RELEASE"
)

// Receipt 记录某个订单的某类消息已处理及其结果，与库存变更在同一事务中写入，
// 重复投递的消息据此直接返回首次的结果
type Receipt struct {
	OrderID     int64
	Kind        ReceiptKind
	Success     bool
	Message     string
	FailedItems []string
	CreatedAt   time.Time
}
