package messaging

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// GoRedisPubSub implements PubSub with a go-redis client.
type GoRedisPubSub struct {
	client *redis.Client
}

// NewGoRedisPubSub wraps client.
func NewGoRedisPubSub(client *redis.Client) *GoRedisPubSub {
	return &GoRedisPubSub{client: client}
}

// Publish implements PubSub.
func (p *GoRedisPubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, payload).Err()
}

// Subscribe implements PubSub. It waits for the subscription to be confirmed.
func (p *GoRedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan string, error) {
	sub := p.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan string, 64)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- m.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
