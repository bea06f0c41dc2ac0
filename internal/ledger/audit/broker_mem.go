package audit

import (
	"context"
	"sync"
)

// MemBroker 未配置 NATS 时的进程内兜底，测试也用它断言事件
type MemBroker struct {
	mu   sync.RWMutex
	subs []chan Event
}

type Event struct {
	Subject string
	Payload []byte
}

func NewMemBroker() *MemBroker {
	return &MemBroker{}
}

func (b *MemBroker) Publish(ctx context.Context, subject string, payload []byte) error {
	b.mu.RLock()
	list := b.subs
	b.mu.RUnlock()

	// at-most-once：慢订阅者直接丢，审计真相在数据库行里
	ev := Event{Subject: subject, Payload: payload}
	for _, ch := range list {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

// Subscribe 返回事件通道（进程内消费）
func (b *MemBroker) Subscribe(buffer int) <-chan Event {
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

func (b *MemBroker) Close() error { return nil }
