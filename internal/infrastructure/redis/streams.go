package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cassiomorais/relay/internal/broker"
	"github.com/cassiomorais/relay/internal/routing"
	"github.com/redis/go-redis/v9"
)

// DLQStream receives the causing error for every negatively acknowledged
// message. The message itself stays pending on its source stream for
// broker-level redelivery.
const DLQStream = "relay:dlq"

const payloadField = "payload"

// StreamPublisher is an outbound channel handle bound to one Redis stream.
type StreamPublisher struct {
	client    *redis.Client
	stream    string
	published atomic.Bool
}

var _ broker.Publisher = (*StreamPublisher)(nil)

func NewStreamPublisher(client *redis.Client, stream string) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream}
}

func (p *StreamPublisher) Channel() string {
	return p.stream
}

func (p *StreamPublisher) Publish(ctx context.Context, env routing.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	_, err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			payloadField: string(payload),
			"timestamp":  time.Now().Unix(),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.stream, err)
	}
	p.published.Store(true)
	return nil
}

// Cancelled reports whether the stream this handle fed has been deleted out
// from under it. A handle that never published is not considered cancelled.
func (p *StreamPublisher) Cancelled(ctx context.Context) bool {
	if !p.published.Load() {
		return false
	}
	n, err := p.client.Exists(ctx, p.stream).Result()
	if err != nil {
		return false
	}
	return n == 0
}

// StreamBinder creates stream-backed publishers for the channel registry.
type StreamBinder struct {
	client *redis.Client
}

var _ broker.Binder = (*StreamBinder)(nil)

func NewStreamBinder(client *redis.Client) *StreamBinder {
	return &StreamBinder{client: client}
}

func (b *StreamBinder) Bind(ctx context.Context, channel string) (broker.Publisher, error) {
	if channel == "" {
		return nil, fmt.Errorf("empty channel name")
	}
	if err := b.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("bind channel %s: %w", channel, err)
	}
	return NewStreamPublisher(b.client, channel), nil
}

// StreamConsumer reads batches from one stream through a consumer group.
type StreamConsumer struct {
	client        *redis.Client
	stream        string
	group         string
	consumer      string
	batchSize     int64
	blockDuration time.Duration
	claimMinIdle  time.Duration
}

func NewStreamConsumer(
	client *redis.Client,
	stream string,
	group string,
	consumer string,
	batchSize int64,
	blockDuration time.Duration,
	claimMinIdle time.Duration,
) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		batchSize:     batchSize,
		blockDuration: blockDuration,
		claimMinIdle:  claimMinIdle,
	}
}

func (c *StreamConsumer) CreateGroup(ctx context.Context) error {
	// Create stream if it doesn't exist
	const busyGroupMsg = "BUSYGROUP"
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), busyGroupMsg) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Read returns the next batch of deliveries. Ack is XACK; Nack records the
// cause on the DLQ stream and leaves the entry pending so the group
// redelivers it.
func (c *StreamConsumer) Read(ctx context.Context) ([]broker.Delivery, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.batchSize,
		Block:    c.blockDuration,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			// No new messages
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var deliveries []broker.Delivery
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			deliveries = append(deliveries, c.toDelivery(msg))
		}
	}
	return deliveries, nil
}

// ClaimStale takes over entries any group member left pending longer than
// the configured idle threshold. This is the redelivery path for nacked or
// crashed-over batches: Nack leaves entries pending, ClaimStale hands them
// to a live consumer.
func (c *StreamConsumer) ClaimStale(ctx context.Context) ([]broker.Delivery, error) {
	messages, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  c.claimMinIdle,
		Start:    "0-0",
		Count:    c.batchSize,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim stale messages: %w", err)
	}

	deliveries := make([]broker.Delivery, 0, len(messages))
	for _, msg := range messages {
		deliveries = append(deliveries, c.toDelivery(msg))
	}
	return deliveries, nil
}

func (c *StreamConsumer) toDelivery(msg redis.XMessage) broker.Delivery {
	env := routing.Envelope{}
	if raw, ok := msg.Values[payloadField].(string); ok {
		_ = json.Unmarshal([]byte(raw), &env)
	}

	ack := func(ctx context.Context) error {
		if err := c.client.XAck(ctx, c.stream, c.group, msg.ID).Err(); err != nil {
			return fmt.Errorf("ack message %s: %w", msg.ID, err)
		}
		return nil
	}
	nack := func(ctx context.Context, cause error) error {
		reason := "unknown"
		if cause != nil {
			reason = cause.Error()
		}
		err := c.client.XAdd(ctx, &redis.XAddArgs{
			Stream: DLQStream,
			Values: map[string]any{
				"source":     c.stream,
				"message_id": msg.ID,
				"reason":     reason,
				"timestamp":  time.Now().Unix(),
			},
		}).Err()
		if err != nil {
			return fmt.Errorf("record nack for %s: %w", msg.ID, err)
		}
		return nil
	}

	return broker.NewDelivery(msg.ID, c.stream, env, ack, nack)
}
