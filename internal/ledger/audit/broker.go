package audit

import "context"

// Broker 审计事件的下游出口（风控、对账、告警消费）
type Broker interface {
	Publish(ctx context.Context, subject string, payload []byte) error
	Close() error
}
