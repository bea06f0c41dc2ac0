package audit

import (
	"context"

	"github.com/nats-io/nats.go"
)

type NatsBroker struct {
	nc *nats.Conn
}

func NewNatsBroker(url string, opts ...nats.Option) (*NatsBroker, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &NatsBroker{nc: nc}, nil
}

func (b *NatsBroker) Publish(ctx context.Context, subject string, payload []byte) error {
	return b.nc.Publish(subject, payload)
}

func (b *NatsBroker) Close() error {
	if b.nc != nil {
		b.nc.Drain()
		b.nc.Close()
	}
	return nil
}
