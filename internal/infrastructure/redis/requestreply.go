package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/relay/internal/broker"
	domainErrors "github.com/cassiomorais/relay/internal/domain/errors"
	"github.com/cassiomorais/relay/internal/routing"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const replyKeyPrefix = "relay:reply:"

// replyKeyTTL bounds how long an undelivered reply lingers after the
// requester gave up.
const replyKeyTTL = time.Minute

// ListRequester implements synchronous request/reply over streams + lists:
// the request goes onto the address stream carrying a unique reply key, and
// the requester blocks on that key until the responder pushes the reply.
type ListRequester struct {
	client *redis.Client
}

var _ broker.Requester = (*ListRequester)(nil)

func NewListRequester(client *redis.Client) *ListRequester {
	return &ListRequester{client: client}
}

func (r *ListRequester) Request(ctx context.Context, address string, env routing.Envelope) (routing.Envelope, error) {
	replyKey := replyKeyPrefix + uuid.NewString()

	out := env.Clone()
	out[routing.FieldProxyReplyAddress] = replyKey

	payload, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: address,
		Values: map[string]any{
			payloadField: string(payload),
			"timestamp":  time.Now().Unix(),
		},
	}).Err()
	if err != nil {
		return nil, fmt.Errorf("send request to %s: %w", address, err)
	}

	timeout := time.Duration(0) // block until ctx deadline by default
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, domainErrors.ErrReplyTimeout
		}
	}

	vals, err := r.client.BLPop(ctx, timeout, replyKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.DeadlineExceeded) {
			return nil, domainErrors.ErrReplyTimeout
		}
		return nil, fmt.Errorf("await reply on %s: %w", replyKey, err)
	}
	// BLPOP returns [key, value]
	if len(vals) < 2 {
		return nil, fmt.Errorf("malformed reply on %s", replyKey)
	}

	var reply routing.Envelope
	if err := json.Unmarshal([]byte(vals[1]), &reply); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	return reply, nil
}

// ListResponder pushes replies to the list key named by the request.
type ListResponder struct {
	client *redis.Client
}

var _ broker.Responder = (*ListResponder)(nil)

func NewListResponder(client *redis.Client) *ListResponder {
	return &ListResponder{client: client}
}

func (r *ListResponder) Respond(ctx context.Context, replyAddress string, env routing.Envelope) error {
	if replyAddress == "" {
		return domainErrors.ErrMissingReplyAddress
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, replyAddress, string(payload))
	pipe.Expire(ctx, replyAddress, replyKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deliver reply to %s: %w", replyAddress, err)
	}
	return nil
}
