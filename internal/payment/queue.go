package payment

import (
	"context"
)

// Handler 处理来自待确认队列的交易签名。
type Handler func(ctx context.Context, signature string) error

// Producer 负责向待确认队列投递签名。
type Producer interface {
	Publish(ctx context.Context, signature string) error
	Close() error
}

// Consumer 负责从待确认队列中消费签名。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}
