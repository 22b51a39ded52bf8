package domain

// State 订单在库存预占 saga 中的状态
type State string

const (
	StateCreated             State = "CREATED"              // 已落库，尚未发出预占请求
	StateAwaitingReservation State = "AWAITING_RESERVATION" // 预占请求已发出，等待库存服务结果
	StateReserved            State = "RESERVED"
	StateReservationFailed   State = "RESERVATION_FAILED" // 终态
	StateCancelled           State = "CANCELLED"
)

var transitions = map[State][]State{
	StateCreated:             {StateAwaitingReservation, StateReservationFailed, StateCancelled},
	StateAwaitingReservation: {StateReserved, StateReservationFailed, StateCancelled},
	StateReserved:            {StateCancelled},
}

// CanTransition 判断 from -> to 是否合法
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal 终态不再接受任何迁移
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}
