package interfaces

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"stocksaga/internal/pkg/event"
	"stocksaga/internal/service/order/application"
	"stocksaga/internal/service/order/domain"
)

// OutcomeConsumer 消费 reservation-response
type OutcomeConsumer struct {
	event.Unhandled
	handler *application.OutcomeHandler
}

func NewOutcomeConsumer(handler *application.OutcomeHandler) *OutcomeConsumer {
	return &OutcomeConsumer{handler: handler}
}

func (c *OutcomeConsumer) OnReservationResponded(ctx context.Context, m *event.ReservationResponded) error {
	return c.handler.Handle(ctx, m)
}

// TimeoutHandler 返回 order-reservation-timeout 主题的 HandlerFunc
func TimeoutHandler(svc *application.OrderApplicationService) func(ctx context.Context, msg kafka.Message) error {
	return func(ctx context.Context, msg kafka.Message) error {
		var check domain.ReservationTimeoutCheck
		if err := json.Unmarshal(msg.Value, &check); err != nil {
			return errors.Wrap(err, "decode reservation timeout check")
		}
		return svc.ProcessReservationTimeout(ctx, &check)
	}
}
