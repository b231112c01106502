package payment

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryQueueRoundTrip(t *testing.T) {
	queue := NewMemoryQueue(16)
	defer queue.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	received := make(map[string]bool)
	done := make(chan struct{})

	go func() {
		_ = queue.Consume(ctx, 4, func(_ context.Context, signature string) error {
			mu.Lock()
			received[signature] = true
			if len(received) == 10 {
				close(done)
			}
			mu.Unlock()
			return nil
		})
	}()

	for i := 0; i < 10; i++ {
		if err := queue.Publish(ctx, "sig-"+string(rune('a'+i))); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		mu.Lock()
		t.Fatalf("消费不完整，只收到 %d 条", len(received))
	}
}

func TestMemoryQueueRejectsAfterClose(t *testing.T) {
	queue := NewMemoryQueue(1)
	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := queue.Publish(context.Background(), "sig"); err == nil {
		t.Fatalf("关闭后的队列应拒绝投递")
	}
}
