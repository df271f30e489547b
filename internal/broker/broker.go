// Package broker defines the binding between the core and the underlying
// message broker: named channels, batched consumption with explicit
// acknowledgement, and synchronous request/reply addressing.
package broker

import (
	"context"

	"github.com/cassiomorais/relay/internal/routing"
)

// Publisher is a handle capable of sending messages to one channel.
// Handles are obtained from the channel registry.
type Publisher interface {
	// Channel returns the logical channel name the handle is bound to.
	Channel() string

	// Publish sends one envelope to the channel.
	Publish(ctx context.Context, env routing.Envelope) error

	// Cancelled reports whether the underlying channel has gone away, e.g.
	// because its consumer closed. Cancelled handles are evicted.
	Cancelled(ctx context.Context) bool
}

// Binder creates publishers for logical channel names.
type Binder interface {
	Bind(ctx context.Context, channel string) (Publisher, error)
}

// Delivery is one inbound message. It must be acknowledged exactly once:
// Ack on success, Nack with the causing error to request redelivery.
type Delivery struct {
	ID       string
	Channel  string
	Envelope routing.Envelope

	ack  func(ctx context.Context) error
	nack func(ctx context.Context, cause error) error
}

// NewDelivery builds a delivery with the given ack/nack callbacks.
func NewDelivery(id, channel string, env routing.Envelope, ack func(context.Context) error, nack func(context.Context, error) error) Delivery {
	return Delivery{ID: id, Channel: channel, Envelope: env, ack: ack, nack: nack}
}

func (d Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

func (d Delivery) Nack(ctx context.Context, cause error) error {
	if d.nack == nil {
		return nil
	}
	return d.nack(ctx, cause)
}

// Requester issues a synchronous request/reply call to a logical address and
// waits for the reply up to the context deadline.
type Requester interface {
	Request(ctx context.Context, address string, env routing.Envelope) (routing.Envelope, error)
}

// Responder delivers a reply to the address a request named.
type Responder interface {
	Respond(ctx context.Context, replyAddress string, env routing.Envelope) error
}
