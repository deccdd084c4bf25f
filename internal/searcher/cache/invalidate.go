package cache

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/kafka"
)

// InvalidateEventType is the event-type header of invalidation messages.
const InvalidateEventType = "cache.invalidate"

// Invalidation asks every navigator instance to drop a cache scope.
// An empty Scope means the whole cache.
type Invalidation struct {
	Scope  string `json:"scope"`
	Origin string `json:"origin,omitempty"`
}

// Publisher is the subset of kafka.Producer used to broadcast invalidations.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Broadcaster invalidates the local cache and announces the invalidation to
// the other instances. Messages carrying its own origin are ignored.
type Broadcaster struct {
	cache     *Cache
	publisher Publisher
	origin    string
}

func NewBroadcaster(c *Cache, p Publisher, origin string) *Broadcaster {
	return &Broadcaster{cache: c, publisher: p, origin: origin}
}

// Invalidate drops scope locally, then publishes it. A publish failure is
// returned after the local invalidation has already happened.
func (b *Broadcaster) Invalidate(ctx context.Context, scope string) (int64, error) {
	deleted, err := b.cache.Invalidate(ctx, scope)
	if err != nil {
		return deleted, err
	}
	if b.publisher == nil {
		return deleted, nil
	}
	err = b.publisher.Publish(ctx, kafka.Event{
		Key:   scope,
		Type:  InvalidateEventType,
		Value: Invalidation{Scope: scope, Origin: b.origin},
	})
	if err != nil {
		return deleted, fmt.Errorf("broadcasting invalidation: %w", err)
	}
	return deleted, nil
}

// HandleMessage applies an invalidation received from another instance.
func (b *Broadcaster) HandleMessage(ctx context.Context, msg kafka.Message) error {
	if msg.Type != "" && msg.Type != InvalidateEventType {
		return fmt.Errorf("unexpected event type %q: %w", msg.Type, kafka.ErrPoison)
	}
	inv, err := kafka.DecodeJSON[Invalidation](msg.Value)
	if err != nil {
		return err
	}
	if inv.Origin != "" && inv.Origin == b.origin {
		return nil
	}
	_, err = b.cache.Invalidate(ctx, inv.Scope)
	return err
}
