package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/vibes-market-backend/pkg/redis"
)

// Claim is the outcome of claiming a delivered event id.
type Claim int

const (
	// ClaimAcquired means this delivery should process the event.
	ClaimAcquired Claim = iota
	// ClaimInFlight means another delivery is processing it right now.
	ClaimInFlight
	// ClaimDone means an earlier delivery already processed it.
	ClaimDone
)

const (
	markerProcessing = "processing"
	markerDone       = "done"
	// processingTTL frees the claim if the worker dies mid-event.
	processingTTL = 2 * time.Minute
)

// IdempotencyGuard tracks event ids so concurrent or repeated deliveries of
// the same event are processed once.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl <= 0:
		return nil, errors.New("ttl must be positive")
	case scope == "":
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope}, nil
}

func (g *IdempotencyGuard) key(eventID string) string {
	return g.store.IdempotencyKey(g.scope, eventID)
}

// Claim marks eventID as processing unless another delivery holds it.
func (g *IdempotencyGuard) Claim(ctx context.Context, eventID string) (Claim, error) {
	if eventID == "" {
		return 0, errors.New("event id is required")
	}
	key := g.key(eventID)
	acquired, err := g.store.SetNX(ctx, key, markerProcessing, processingTTL)
	if err != nil {
		return 0, fmt.Errorf("claim event: %w", err)
	}
	if acquired {
		return ClaimAcquired, nil
	}
	marker, err := g.store.Get(ctx, key)
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("read event claim: %w", err)
	}
	if marker == markerDone {
		return ClaimDone, nil
	}
	// A claim that expired between the two calls is reported as in flight;
	// the gateway's next retry acquires it.
	return ClaimInFlight, nil
}

// Complete records eventID as processed for the guard's TTL.
func (g *IdempotencyGuard) Complete(ctx context.Context, eventID string) error {
	key := g.key(eventID)
	if err := g.store.Del(ctx, key); err != nil {
		return fmt.Errorf("clear event claim: %w", err)
	}
	if _, err := g.store.SetNX(ctx, key, markerDone, g.ttl); err != nil {
		return fmt.Errorf("mark event done: %w", err)
	}
	return nil
}

// Release drops the claim so the gateway's retry is processed.
func (g *IdempotencyGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.key(eventID))
}
