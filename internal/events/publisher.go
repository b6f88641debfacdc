package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type InvoiceCreatedEvent struct {
	InvoiceID string    `json:"invoice_id"`
	StoreID   string    `json:"store_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Publisher delivers invoice lifecycle events. Fire-and-forget from the
// creation pipeline's perspective; delivery guarantees belong to the
// implementation.
type Publisher interface {
	PublishInvoiceCreated(ctx context.Context, event InvoiceCreatedEvent) error
}

type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) PublishInvoiceCreated(ctx context.Context, event InvoiceCreatedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode invoice created event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish invoice created event: %w", err)
	}
	return nil
}

// NoopPublisher drops events. Used in tests and when redis is not configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishInvoiceCreated(context.Context, InvoiceCreatedEvent) error {
	return nil
}
