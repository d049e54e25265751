package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestPublishReturnsErrorFromUnreachableRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
	})
	defer client.Close()
	p := NewPublisher(client, "")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := p.Publish(ctx, HandoffEvent{GameID: "game-1", InviteID: "aaaaa"})
	if err == nil {
		t.Fatalf("expected an error publishing to an unreachable redis")
	}
}

func TestNewPublisherDefaultsQueueName(t *testing.T) {
	p := NewPublisher(nil, "")
	if p.queueName != DefaultQueueName {
		t.Fatalf("expected default queue name, got %q", p.queueName)
	}
}
